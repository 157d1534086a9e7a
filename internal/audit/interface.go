package audit

import (
	"context"

	"github.com/medwatch/platform/internal/shared/types"
)

// Repository is the append-only storage port for the audit trail.
// Append must chain the entry to the previous one and assign the sequence.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)
	ByReport(ctx context.Context, reportID types.ID, limit int) ([]Entry, error)
}
