// Package workflow drives adverse-effect reports through the review
// pipeline. Every operation follows the same path: resolve the actor's
// role, authorize, serialize on the report, mutate the aggregate, persist
// with a version check, then announce the change on the event bus.
package workflow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/identity"
	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/metrics"
	"github.com/medwatch/platform/internal/shared/types"
)

// Engine executes workflow operations against report aggregates
type Engine struct {
	repo     domain.Repository
	resolver *identity.Resolver
	bus      events.EventBus
	locks    *lockTable
	logger   zerolog.Logger
}

// NewEngine creates a workflow engine
func NewEngine(repo domain.Repository, resolver *identity.Resolver, bus events.EventBus, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:     repo,
		resolver: resolver,
		bus:      bus,
		locks:    newLockTable(),
		logger:   logger.With().Str("component", "workflow").Logger(),
	}
}

// CreateInput is the submission payload for a new report
type CreateInput struct {
	MedicationName string
	Description    string
	Severity       domain.Severity
	// Source labels where the submission entered the system, "api" for
	// direct submissions and "his" for legacy intake.
	Source string
}

// Create submits a new report on behalf of actorID. Submission is a
// patient act: reviewing roles never own reports.
func (e *Engine) Create(ctx context.Context, actorID types.ID, input CreateInput) (*domain.Report, error) {
	role, err := e.resolver.ResolveRole(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if role != identity.RolePatient {
		metrics.RecordAuthorization("submit_report", string(role), "denied")
		return nil, errors.Forbidden("role " + role.String() + " may not submit reports")
	}

	rep, err := domain.NewReport(actorID, input.MedicationName, input.Description, input.Severity)
	if err != nil {
		return nil, err
	}

	if err := e.repo.Create(ctx, rep); err != nil {
		return nil, err
	}

	source := input.Source
	if source == "" {
		source = "api"
	}
	metrics.RecordReportCreated(string(rep.Severity), source)

	event := events.NewEvent(events.TypeReportCreated, source, map[string]any{
		"to_status": rep.Status.String(),
		"severity":  string(rep.Severity),
		"version":   rep.Version,
	}).WithActor(actorID, string(role)).WithReport(rep.ID)
	e.publish(ctx, event)

	e.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("severity", string(rep.Severity)).
		Str("source", source).
		Msg("report submitted")

	return rep, nil
}

// StartReview moves a submitted or info-provided report under review.
func (e *Engine) StartReview(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpStartReview, events.TypeReportTransitioned,
		func(rep *domain.Report, caller domain.Caller) error {
			return rep.StartReview(caller.ID)
		})
}

// RequestAdditionalInfo asks the reporter for more detail.
func (e *Engine) RequestAdditionalInfo(ctx context.Context, actorID, reportID types.ID, request string) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpRequestAdditionalInfo, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.RequestAdditionalInfo(request)
		})
}

// ProvideAdditionalInfo records the reporter's response.
func (e *Engine) ProvideAdditionalInfo(ctx context.Context, actorID, reportID types.ID, response string) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpProvideAdditionalInfo, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.ProvideAdditionalInfo(response)
		})
}

// ApproveReport finalizes a report as approved.
func (e *Engine) ApproveReport(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpApproveReport, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.Approve()
		})
}

// RejectReport finalizes a report as rejected.
func (e *Engine) RejectReport(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpRejectReport, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.Reject()
		})
}

// StartReclamation opens an appeal against a finalized report.
func (e *Engine) StartReclamation(ctx context.Context, actorID, reportID types.ID, reason string) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpStartReclamation, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.StartReclamation(reason)
		}, withEventData("reason", reason))
}

// ApproveReclamation upholds an appeal.
func (e *Engine) ApproveReclamation(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpApproveReclamation, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.ApproveReclamation()
		})
}

// RejectReclamation dismisses an appeal.
func (e *Engine) RejectReclamation(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpRejectReclamation, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.RejectReclamation()
		})
}

// RevertStatus rolls a report back to a prior state with an audited reason.
func (e *Engine) RevertStatus(ctx context.Context, actorID, reportID types.ID, target domain.Status, reason string) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpRevertStatus, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.Revert(target, reason)
		}, withEventData("reason", reason))
}

// AssignReviewer sets or reassigns the reviewer on a reviewable report.
func (e *Engine) AssignReviewer(ctx context.Context, actorID, reportID, reviewerID types.ID) (*domain.Report, error) {
	// The reviewer has to be a known professional or supervisor before
	// assignment is attempted.
	reviewerRole, err := e.resolver.ResolveRole(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if reviewerRole != identity.RoleProfessional && reviewerRole != identity.RoleSupervisor {
		return nil, errors.Validation("reviewer must be a professional or supervisor",
			map[string]string{"reviewer_id": "invalid role"})
	}

	return e.execute(ctx, actorID, reportID, domain.OpAssignReviewer, events.TypeReportTransitioned,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.AssignReviewer(reviewerID)
		})
}

// SendMessage appends a chat entry. The sender label comes from the
// actor's resolved role, never from the request.
func (e *Engine) SendMessage(ctx context.Context, actorID, reportID types.ID, text string) (*domain.Report, error) {
	rep, err := e.execute(ctx, actorID, reportID, domain.OpSendMessage, events.TypeReportMessageAdded,
		func(rep *domain.Report, caller domain.Caller) error {
			sender := domain.SenderProfessional
			if caller.Role == identity.RolePatient {
				sender = domain.SenderPatient
			}
			return rep.AppendMessage(sender, text)
		})
	if err != nil {
		return nil, err
	}

	last := rep.Messages[len(rep.Messages)-1]
	metrics.RecordChatMessage(string(last.Sender))
	return rep, nil
}

// CloseChat permanently closes a report's message thread.
func (e *Engine) CloseChat(ctx context.Context, actorID, reportID types.ID) (*domain.Report, error) {
	return e.execute(ctx, actorID, reportID, domain.OpCloseChat, events.TypeReportChatClosed,
		func(rep *domain.Report, _ domain.Caller) error {
			return rep.CloseChat()
		})
}

// Get loads a single report.
func (e *Engine) Get(ctx context.Context, id types.ID) (*domain.Report, error) {
	return e.repo.Get(ctx, id)
}

// List loads one page of reports matching the filter plus the total
// match count.
func (e *Engine) List(ctx context.Context, f domain.Filter) ([]*domain.Report, int, error) {
	return e.repo.List(ctx, f)
}

type executeOption func(data map[string]any)

// withEventData attaches an extra field to the published event.
func withEventData(key string, value any) executeOption {
	return func(data map[string]any) {
		data[key] = value
	}
}

func (e *Engine) execute(
	ctx context.Context,
	actorID, reportID types.ID,
	op domain.Operation,
	eventType string,
	mutate func(*domain.Report, domain.Caller) error,
	opts ...executeOption,
) (*domain.Report, error) {
	role, err := e.resolver.ResolveRole(ctx, actorID)
	if err != nil {
		return nil, err
	}
	caller := domain.Caller{ID: actorID, Role: role}

	unlock := e.locks.acquire(reportID)
	defer unlock()

	rep, err := e.repo.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}

	// Authorization is decided before the state machine even looks at
	// the current status: a forbidden caller learns nothing about it.
	if err := domain.Authorize(caller, op, rep); err != nil {
		metrics.RecordAuthorization(op.String(), string(role), "denied")
		metrics.RecordTransition(op.String(), "forbidden")
		return nil, err
	}
	metrics.RecordAuthorization(op.String(), string(role), "allowed")

	from := rep.Status
	expectedVersion := rep.Version

	if err := mutate(rep, caller); err != nil {
		metrics.RecordTransition(op.String(), outcomeOf(err))
		return nil, err
	}

	if err := e.repo.Update(ctx, rep, expectedVersion); err != nil {
		metrics.RecordTransition(op.String(), "error")
		return nil, err
	}

	metrics.RecordTransition(op.String(), "accepted")

	data := map[string]any{
		"operation":   op.String(),
		"from_status": from.String(),
		"to_status":   rep.Status.String(),
		"version":     rep.Version,
		"chat_open":   rep.ChatOpen,
	}
	for _, opt := range opts {
		opt(data)
	}
	event := events.NewEvent(eventType, "workflow", data).
		WithActor(actorID, string(role)).WithReport(rep.ID)
	e.publish(ctx, event)

	e.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("operation", op.String()).
		Str("from", from.String()).
		Str("to", rep.Status.String()).
		Int64("version", rep.Version).
		Msg("operation accepted")

	return rep, nil
}

// publish is best-effort: a bus outage never fails an accepted operation.
func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("event_type", event.Type).Msg("event publish failed")
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, errors.ErrIllegalState):
		return "illegal_state"
	case errors.Is(err, errors.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
