// Package his pulls adverse-event rows out of a legacy hospital
// information system. The HIS only speaks SQL Server, so the adapter
// polls its event table and submits anything new through the workflow
// engine as a regular report.
package his

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/identity"
	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/report/workflow"
	"github.com/medwatch/platform/internal/shared/config"
	"github.com/medwatch/platform/internal/shared/types"
)

// Adapter polls the HIS adverse-event table and feeds the workflow engine
type Adapter struct {
	db     *sql.DB
	cfg    config.IntakeConfig
	engine *workflow.Engine
	dir    identity.Directory
	logger zerolog.Logger

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// New creates a new HIS intake adapter
func New(cfg config.IntakeConfig, engine *workflow.Engine, dir identity.Directory, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		engine: engine,
		dir:    dir,
		logger: logger.With().Str("component", "his-intake").Logger(),
	}
}

// Start opens the HIS connection and begins polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host,
		a.cfg.Port,
		a.cfg.Database,
		a.cfg.User,
		a.cfg.Password,
	)

	if a.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open HIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping HIS database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.pollInterval())

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	a.logger.Info().
		Str("table", a.cfg.Table).
		Dur("interval", a.pollInterval()).
		Msg("HIS intake started")

	return nil
}

// Stop stops polling and closes the connection
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks HIS connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}
	return a.db.PingContext(ctx)
}

func (a *Adapter) pollInterval() time.Duration {
	seconds := a.cfg.PollSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			lastPoll := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollEvents(ctx, lastPoll); err != nil {
				a.logger.Error().Err(err).Msg("HIS poll failed")
			}
		}
	}
}

// adverseEventRow is one unimported row from the HIS event table
type adverseEventRow struct {
	EventID        string
	PatientCode    string
	MedicationName string
	Description    sql.NullString
	Severity       sql.NullString
	RecordedAt     time.Time
}

// pollEvents imports adverse events recorded since the last poll
func (a *Adapter) pollEvents(ctx context.Context, since time.Time) error {
	batch := a.cfg.BatchSize
	if batch <= 0 || batch > 500 {
		batch = 100
	}

	query := fmt.Sprintf(`
		SELECT TOP (@batch)
			EventID,
			PatientCode,
			MedicationName,
			Description,
			Severity,
			RecordedAt
		FROM %s
		WHERE RecordedAt > @since
		ORDER BY RecordedAt ASC
	`, a.cfg.Table)

	rows, err := a.db.QueryContext(ctx, query,
		sql.Named("batch", batch),
		sql.Named("since", since),
	)
	if err != nil {
		return fmt.Errorf("failed to query adverse events: %w", err)
	}
	defer rows.Close()

	var events []adverseEventRow
	for rows.Next() {
		var row adverseEventRow
		err := rows.Scan(
			&row.EventID,
			&row.PatientCode,
			&row.MedicationName,
			&row.Description,
			&row.Severity,
			&row.RecordedAt,
		)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to scan adverse event row")
			continue
		}
		events = append(events, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read adverse events: %w", err)
	}

	for _, row := range events {
		if err := a.importEvent(ctx, row); err != nil {
			a.logger.Error().Err(err).
				Str("his_event_id", row.EventID).
				Msg("failed to import adverse event")
		}
	}

	if len(events) > 0 {
		a.logger.Info().Int("count", len(events)).Msg("imported HIS adverse events")
	}

	return nil
}

// importEvent submits one HIS row as a report on behalf of the patient.
// Unknown patients get a directory entry first, keyed by their HIS code.
func (a *Adapter) importEvent(ctx context.Context, row adverseEventRow) error {
	username := "his:" + row.PatientCode

	user, err := a.dir.FindByUsername(ctx, username)
	if err != nil {
		now := time.Now().UTC()
		user = &identity.User{
			ID:        types.NewID(),
			Username:  username,
			Role:      identity.RolePatient,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.dir.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to register HIS patient %s: %w", row.PatientCode, err)
		}
	}

	input := workflow.CreateInput{
		MedicationName: row.MedicationName,
		Severity:       mapSeverity(row.Severity.String),
		Source:         "his",
	}
	if row.Description.Valid {
		input.Description = row.Description.String
	}

	_, err = a.engine.Create(ctx, user.ID, input)
	return err
}

// mapSeverity maps HIS severity codes to the platform scale
func mapSeverity(code string) domain.Severity {
	switch strings.ToLower(code) {
	case "severe", "serious", "3":
		return domain.SeveritySevere
	case "moderate", "2":
		return domain.SeverityModerate
	default:
		return domain.SeverityMild
	}
}
