// Package events carries workflow domain events between the engine and its
// consumers (audit trail, refresh signal).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medwatch/platform/internal/shared/types"
)

// Workflow event types.
const (
	TypeReportCreated      = "report.created"
	TypeReportTransitioned = "report.transitioned"
	TypeReportMessageAdded = "report.message_added"
	TypeReportChatClosed   = "report.chat_closed"
)

// Event represents a domain event
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	// Actor information
	ActorID   types.ID `json:"actor_id,omitempty"`
	ActorRole string   `json:"actor_role,omitempty"`

	// Subject report
	ReportID types.ID `json:"report_id,omitempty"`

	// Event data
	Data map[string]any `json:"data,omitempty"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID types.ID, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// WithReport sets the subject report
func (e Event) WithReport(reportID types.ID) Event {
	e.ReportID = reportID
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error
