package domain

import (
	"context"
	"time"

	"github.com/medwatch/platform/internal/shared/types"
)

// Filter narrows report listings.
type Filter struct {
	Status             *Status
	ReporterID         *types.ID
	AssignedReviewerID *types.ID
	From               *time.Time
	To                 *time.Time
	Limit              int
	Offset             int
}

// Repository is the persistence port for report aggregates.
//
// Update is optimistic: the implementation must match on the version the
// aggregate held when it was read, and return ErrStoreUnavailable-wrapped
// errors only for infrastructure faults, never for contention.
type Repository interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id types.ID) (*Report, error)
	// Update persists r, expecting the stored row to still be at
	// expectedVersion. A version mismatch is a conflict.
	Update(ctx context.Context, r *Report, expectedVersion int64) error
	// List returns one page of matching reports plus the total match
	// count before pagination.
	List(ctx context.Context, f Filter) ([]*Report, int, error)
}
