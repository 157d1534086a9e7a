package audit

import (
	"context"
	"sync"

	"github.com/medwatch/platform/internal/shared/types"
)

// MemoryRepository is an in-memory audit store for tests and for running
// without a database. The chain semantics match the PostgreSQL store.
type MemoryRepository struct {
	mu       sync.Mutex
	entries  []Entry
	lastHash string
}

// NewMemoryRepository creates an empty in-memory audit store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()
	entry.Sequence = int64(len(r.entries)) + 1

	r.entries = append(r.entries, *entry)
	r.lastHash = entry.Hash
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter.ReportID != nil && e.ReportID != *filter.ReportID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		if filter.StartTime != nil && e.OccurredAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && e.OccurredAt.After(*filter.EndTime) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	if filter.Offset >= len(matched) {
		return []Entry{}, total, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, total, nil
}

func (r *MemoryRepository) ByReport(ctx context.Context, reportID types.ID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, _, err := r.List(ctx, ListFilter{ReportID: &reportID, Limit: limit})
	return entries, err
}

// VerifyChain verifies the in-memory chain end to end.
func (r *MemoryRepository) VerifyChain(ctx context.Context, limit int) (*VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &VerifyResult{Valid: true}

	var prevHash string
	for _, e := range r.entries {
		if !e.VerifyHash() {
			result.ContentInvalid++
			result.Valid = false
		} else {
			result.ContentValid++
		}

		if result.Checked > 0 {
			if e.PrevHash != prevHash {
				result.LinkageInvalid++
				result.Valid = false
			} else {
				result.LinkageValid++
			}
		}

		prevHash = e.Hash
		result.Checked++
	}

	return result, nil
}
