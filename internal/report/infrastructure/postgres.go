package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create saves a new report
func (r *PostgresRepository) Create(ctx context.Context, rep *domain.Report) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO reports.reports (
			id, status, reporter_id, assigned_reviewer_id,
			medication_name, description, severity,
			reclamation_reason, additional_info_request, additional_info_response,
			chat_open, in_revision, version,
			created_at, updated_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err = tx.Exec(ctx, query,
		rep.ID, rep.Status, rep.ReporterID, rep.AssignedReviewerID,
		rep.MedicationName, rep.Description, rep.Severity,
		rep.ReclamationReason, rep.AdditionalInfoRequest, rep.AdditionalInfoResponse,
		rep.ChatOpen, rep.InRevision, rep.Version,
		rep.CreatedAt, rep.UpdatedAt, rep.ResolvedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("report already exists")
		}
		return errors.StoreUnavailable(err)
	}

	if err := r.saveMessages(ctx, tx, rep.ID, rep.Messages, 0); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.StoreUnavailable(err)
	}

	return nil
}

// Get finds a report by ID, messages included
func (r *PostgresRepository) Get(ctx context.Context, id types.ID) (*domain.Report, error) {
	query := `
		SELECT id, status, reporter_id, assigned_reviewer_id,
			medication_name, description, severity,
			reclamation_reason, additional_info_request, additional_info_response,
			chat_open, in_revision, version,
			created_at, updated_at, resolved_at
		FROM reports.reports
		WHERE id = $1`

	rep := &domain.Report{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rep.ID, &rep.Status, &rep.ReporterID, &rep.AssignedReviewerID,
		&rep.MedicationName, &rep.Description, &rep.Severity,
		&rep.ReclamationReason, &rep.AdditionalInfoRequest, &rep.AdditionalInfoResponse,
		&rep.ChatOpen, &rep.InRevision, &rep.Version,
		&rep.CreatedAt, &rep.UpdatedAt, &rep.ResolvedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("report", id.String())
	}
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	messages, err := r.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	rep.Messages = messages

	return rep, nil
}

// Update persists a mutated report. The WHERE clause matches the version
// the caller read; zero affected rows means either the row is gone or a
// concurrent writer got there first.
func (r *PostgresRepository) Update(ctx context.Context, rep *domain.Report, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reports.reports SET
			status = $2, assigned_reviewer_id = $3,
			reclamation_reason = $4, additional_info_request = $5, additional_info_response = $6,
			chat_open = $7, in_revision = $8, version = $9,
			updated_at = $10, resolved_at = $11
		WHERE id = $1 AND version = $12`

	result, err := tx.Exec(ctx, query,
		rep.ID, rep.Status, rep.AssignedReviewerID,
		rep.ReclamationReason, rep.AdditionalInfoRequest, rep.AdditionalInfoResponse,
		rep.ChatOpen, rep.InRevision, rep.Version,
		rep.UpdatedAt, rep.ResolvedAt,
		expectedVersion,
	)

	if err != nil {
		return errors.StoreUnavailable(err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports.reports WHERE id = $1)`, rep.ID).Scan(&exists); err != nil {
			return errors.StoreUnavailable(err)
		}
		if !exists {
			return errors.NotFound("report", rep.ID.String())
		}
		return errors.Conflict("report was modified concurrently")
	}

	// Messages are append-only: positions below the expected count are
	// already stored.
	var stored int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM reports.messages WHERE report_id = $1`, rep.ID).Scan(&stored); err != nil {
		return errors.StoreUnavailable(err)
	}
	if err := r.saveMessages(ctx, tx, rep.ID, rep.Messages, stored); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.StoreUnavailable(err)
	}

	return nil
}

// List lists one page of reports matching the filter, newest first,
// plus the total match count
func (r *PostgresRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Report, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.ReporterID != nil {
		conditions = append(conditions, fmt.Sprintf("reporter_id = $%d", argNum))
		args = append(args, *filter.ReporterID)
		argNum++
	}

	if filter.AssignedReviewerID != nil {
		conditions = append(conditions, fmt.Sprintf("assigned_reviewer_id = $%d", argNum))
		args = append(args, *filter.AssignedReviewerID)
		argNum++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filter.From)
		argNum++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argNum))
		args = append(args, *filter.To)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM reports.reports %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.StoreUnavailable(err)
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, status, reporter_id, assigned_reviewer_id,
			medication_name, description, severity,
			reclamation_reason, additional_info_request, additional_info_response,
			chat_open, in_revision, version,
			created_at, updated_at, resolved_at
		FROM reports.reports
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.StoreUnavailable(err)
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		rep := &domain.Report{Messages: []domain.ChatMessage{}}
		err := rows.Scan(
			&rep.ID, &rep.Status, &rep.ReporterID, &rep.AssignedReviewerID,
			&rep.MedicationName, &rep.Description, &rep.Severity,
			&rep.ReclamationReason, &rep.AdditionalInfoRequest, &rep.AdditionalInfoResponse,
			&rep.ChatOpen, &rep.InRevision, &rep.Version,
			&rep.CreatedAt, &rep.UpdatedAt, &rep.ResolvedAt,
		)
		if err != nil {
			return nil, 0, errors.StoreUnavailable(err)
		}
		reports = append(reports, rep)
	}

	return reports, total, nil
}

func (r *PostgresRepository) saveMessages(ctx context.Context, tx pgx.Tx, reportID types.ID, messages []domain.ChatMessage, from int) error {
	query := `
		INSERT INTO reports.messages (
			id, report_id, position, sender, body, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	for i := from; i < len(messages); i++ {
		m := messages[i]
		_, err := tx.Exec(ctx, query, m.ID, reportID, i, m.Sender, m.Text, m.Timestamp)
		if err != nil {
			return errors.StoreUnavailable(err)
		}
	}

	return nil
}

func (r *PostgresRepository) getMessages(ctx context.Context, reportID types.ID) ([]domain.ChatMessage, error) {
	query := `
		SELECT id, sender, body, sent_at
		FROM reports.messages
		WHERE report_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, errors.StoreUnavailable(err)
		}
		messages = append(messages, m)
	}

	return messages, nil
}
