package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// MemoryRepository is an in-memory domain.Repository for tests and for
// running without a database. Stored aggregates are copy-on-write: reads
// hand out clones, so callers can never mutate the store in place.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[types.ID]*domain.Report
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reports: make(map[types.ID]*domain.Report)}
}

func (r *MemoryRepository) Create(ctx context.Context, rep *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[rep.ID]; ok {
		return errors.Conflict("report already exists")
	}
	r.reports[rep.ID] = rep.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id types.ID) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.reports[id]
	if !ok {
		return nil, errors.NotFound("report", id.String())
	}
	return rep.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, rep *domain.Report, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.reports[rep.ID]
	if !ok {
		return errors.NotFound("report", rep.ID.String())
	}
	if stored.Version != expectedVersion {
		return errors.Conflict("report was modified concurrently")
	}
	r.reports[rep.ID] = rep.Clone()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Report, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Report
	for _, rep := range r.reports {
		if f.Status != nil && rep.Status != *f.Status {
			continue
		}
		if f.ReporterID != nil && rep.ReporterID != *f.ReporterID {
			continue
		}
		if f.AssignedReviewerID != nil {
			if rep.AssignedReviewerID == nil || *rep.AssignedReviewerID != *f.AssignedReviewerID {
				continue
			}
		}
		if f.From != nil && rep.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !rep.CreatedAt.Before(*f.To) {
			continue
		}
		matched = append(matched, rep.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	limit := 50
	if f.Limit > 0 && f.Limit <= 100 {
		limit = f.Limit
	}
	if f.Offset >= len(matched) {
		return []*domain.Report{}, total, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, total, nil
}
