package audit

import (
	"context"
	"fmt"

	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/metrics"
)

// Subscriber listens to workflow events and appends audit entries
type Subscriber struct {
	repo Repository
	bus  events.EventBus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo Repository, bus events.EventBus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to all report events
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, "report.*", "audit-report-subscriber", s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to report events: %w", err)
	}
	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.RecordAuditEntry()
	return nil
}

func (s *Subscriber) eventToEntry(event events.Event) *Entry {
	if event.ReportID.IsZero() {
		return nil
	}

	operation := stringField(event.Data, "operation")
	if operation == "" {
		switch event.Type {
		case events.TypeReportCreated:
			operation = "submit_report"
		default:
			return nil
		}
	}

	// PrevHash and Hash are sealed by the repository at append time.
	return NewEntry(
		event.ReportID,
		event.ActorID,
		event.ActorRole,
		operation,
		stringField(event.Data, "from_status"),
		stringField(event.Data, "to_status"),
		stringField(event.Data, "reason"),
		"",
	)
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
