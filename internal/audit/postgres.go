package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// PostgresRepository provides append-only audit storage
type PostgresRepository struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastHash string
}

// NewPostgresRepository creates a new audit repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Initialize loads the chain head from the database
func (r *PostgresRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM reports.audit_entries
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&hash)

	if err != nil && !strings.Contains(err.Error(), "no rows") {
		return errors.Wrap(err, "failed to get last audit hash")
	}

	r.lastHash = hash
	return nil
}

// Append appends a new audit entry (thread-safe)
func (r *PostgresRepository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	query := `
		INSERT INTO reports.audit_entries (
			id, report_id, occurred_at,
			actor_id, actor_role, operation,
			from_status, to_status, reason,
			hash, prev_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		) RETURNING sequence`

	err := r.pool.QueryRow(ctx, query,
		entry.ID, entry.ReportID, entry.OccurredAt,
		entry.ActorID, entry.ActorRole, entry.Operation,
		entry.FromStatus, entry.ToStatus, entry.Reason,
		entry.Hash, entry.PrevHash,
	).Scan(&entry.Sequence)

	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	return nil
}

// List lists audit entries with filters (read-only)
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ReportID != nil {
		conditions = append(conditions, fmt.Sprintf("report_id = $%d", argNum))
		args = append(args, *filter.ReportID)
		argNum++
	}

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argNum))
		args = append(args, *filter.ActorID)
		argNum++
	}

	if filter.Operation != "" {
		conditions = append(conditions, fmt.Sprintf("operation = $%d", argNum))
		args = append(args, filter.Operation)
		argNum++
	}

	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", argNum))
		args = append(args, *filter.StartTime)
		argNum++
	}

	if filter.EndTime != nil {
		conditions = append(conditions, fmt.Sprintf("occurred_at <= $%d", argNum))
		args = append(args, *filter.EndTime)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM reports.audit_entries %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count audit entries")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, sequence, report_id, occurred_at,
			actor_id, actor_role, operation,
			from_status, to_status, reason,
			hash, prev_hash
		FROM reports.audit_entries
		%s
		ORDER BY sequence DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.Sequence, &e.ReportID, &e.OccurredAt,
			&e.ActorID, &e.ActorRole, &e.Operation,
			&e.FromStatus, &e.ToStatus, &e.Reason,
			&e.Hash, &e.PrevHash,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, e)
	}

	return entries, total, nil
}

// ByReport gets the audit trail of a single report, newest first
func (r *PostgresRepository) ByReport(ctx context.Context, reportID types.ID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	entries, _, err := r.List(ctx, ListFilter{ReportID: &reportID, Limit: limit})
	return entries, err
}

// VerifyResult contains chain verification results
type VerifyResult struct {
	Valid          bool     `json:"valid"`
	Checked        int      `json:"checked"`
	ContentValid   int      `json:"content_valid"`
	ContentInvalid int      `json:"content_invalid"`
	LinkageValid   int      `json:"linkage_valid"`
	LinkageInvalid int      `json:"linkage_invalid"`
	Violations     []string `json:"violations,omitempty"`
}

// VerifyChain verifies the most recent part of the audit chain. Two checks
// per entry: the stored hash must match the recalculated content hash, and
// each entry's hash must match its successor's prev_hash.
func (r *PostgresRepository) VerifyChain(ctx context.Context, limit int) (*VerifyResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence, report_id, occurred_at,
			actor_id, actor_role, operation,
			from_status, to_status, reason,
			hash, prev_hash
		FROM reports.audit_entries
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.Sequence, &e.ReportID, &e.OccurredAt,
			&e.ActorID, &e.ActorRole, &e.Operation,
			&e.FromStatus, &e.ToStatus, &e.Reason,
			&e.Hash, &e.PrevHash,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, e)
	}

	result := &VerifyResult{Valid: true}

	// Entries are in DESC order: expectedHash is the prev_hash claimed by
	// the entry that follows the current one in time.
	var expectedHash string

	for i, e := range entries {
		if !e.VerifyHash() {
			result.ContentInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("content tampered: entry %s (seq %d)", e.ID, e.Sequence))
		} else {
			result.ContentValid++
		}

		if i > 0 {
			if expectedHash != "" && e.Hash != expectedHash {
				result.LinkageInvalid++
				result.Valid = false
				result.Violations = append(result.Violations,
					fmt.Sprintf("chain broken: entry %s (seq %d)", e.ID, e.Sequence))
			} else {
				result.LinkageValid++
			}
		}

		expectedHash = e.PrevHash
		result.Checked++
	}

	return result, nil
}
