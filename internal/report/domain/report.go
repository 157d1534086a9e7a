// Package domain holds the adverse-effect report aggregate and its
// workflow rules.
package domain

import (
	"time"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// ChatMessage is one entry in a report's message thread. Entries are
// immutable once appended.
type ChatMessage struct {
	ID        types.ID  `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the aggregate root for one adverse-effect submission and its
// full review history.
type Report struct {
	ID     types.ID `json:"id"`
	Status Status   `json:"status"`

	// Ownership and assignment
	ReporterID         types.ID  `json:"reporter_id"`
	AssignedReviewerID *types.ID `json:"assigned_reviewer_id,omitempty"`

	// Submission content, immutable after creation
	MedicationName string   `json:"medication_name"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`

	// Transition-populated fields
	ReclamationReason      string `json:"reclamation_reason,omitempty"`
	AdditionalInfoRequest  string `json:"additional_info_request,omitempty"`
	AdditionalInfoResponse string `json:"additional_info_response,omitempty"`

	// Message thread
	Messages []ChatMessage `json:"messages"`
	ChatOpen bool          `json:"chat_open"`

	// InRevision marks a report whose thread was closed by a reviewer.
	// It is orthogonal to Status: the pipeline state survives closeChat.
	InRevision bool `json:"in_revision"`

	// Version increases by exactly 1 on every accepted mutation; stale
	// views compare it against the refresh signal to decide on a re-fetch.
	Version int64 `json:"version"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewReport creates a report in the initial SUBMITTED state.
func NewReport(reporterID types.ID, medicationName, description string, severity Severity) (*Report, error) {
	if reporterID.IsZero() {
		return nil, apperrors.Validation("reporter is required", map[string]string{"reporter_id": "required"})
	}
	if medicationName == "" {
		return nil, apperrors.Validation("medication name is required", map[string]string{"medication_name": "required"})
	}
	if severity == "" {
		severity = SeverityMild
	}
	if !severity.IsValid() {
		return nil, apperrors.Validation("invalid severity", map[string]string{"severity": "unknown"})
	}

	now := time.Now().UTC()
	return &Report{
		ID:             types.NewID(),
		Status:         StatusSubmitted,
		ReporterID:     reporterID,
		MedicationName: medicationName,
		Description:    description,
		Severity:       severity,
		Messages:       []ChatMessage{},
		ChatOpen:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// touch records an accepted mutation
func (r *Report) touch() {
	r.Version++
	r.UpdatedAt = time.Now().UTC()
}

// requireStatus validates the pipeline-state precondition of op
func (r *Report) requireStatus(op Operation) error {
	rule, ok := transitionTable[op]
	if !ok {
		return apperrors.InvalidTransition(op.String())
	}
	if !rule.allowsFrom(r.Status) {
		return apperrors.IllegalState(op.String(), r.Status.String())
	}
	return nil
}

// StartReview moves the report under review, assigning the reviewer if no
// assignment exists yet.
func (r *Report) StartReview(reviewerID types.ID) error {
	if err := r.requireStatus(OpStartReview); err != nil {
		return err
	}

	if r.AssignedReviewerID == nil {
		assigned := reviewerID
		r.AssignedReviewerID = &assigned
	}
	r.Status = StatusUnderReview
	r.touch()
	return nil
}

// RequestAdditionalInfo asks the patient for more detail.
func (r *Report) RequestAdditionalInfo(request string) error {
	if err := r.requireStatus(OpRequestAdditionalInfo); err != nil {
		return err
	}

	r.AdditionalInfoRequest = request
	r.Status = StatusInfoRequested
	r.touch()
	return nil
}

// ProvideAdditionalInfo records the patient's response.
func (r *Report) ProvideAdditionalInfo(response string) error {
	if err := r.requireStatus(OpProvideAdditionalInfo); err != nil {
		return err
	}
	if response == "" {
		return apperrors.Validation("additional info is required", map[string]string{"additional_info": "required"})
	}

	r.AdditionalInfoResponse = response
	r.Status = StatusInfoProvided
	r.touch()
	return nil
}

// Approve finalizes the report as approved.
func (r *Report) Approve() error {
	if err := r.requireStatus(OpApproveReport); err != nil {
		return err
	}

	r.Status = StatusApproved
	r.resolve()
	r.touch()
	return nil
}

// Reject finalizes the report as rejected.
func (r *Report) Reject() error {
	if err := r.requireStatus(OpRejectReport); err != nil {
		return err
	}

	r.Status = StatusRejected
	r.resolve()
	r.touch()
	return nil
}

// StartReclamation opens a patient appeal against a finalized report.
func (r *Report) StartReclamation(reason string) error {
	if err := r.requireStatus(OpStartReclamation); err != nil {
		return err
	}
	if reason == "" {
		return apperrors.Validation("reclamation reason is required", map[string]string{"reclamation_reason": "required"})
	}

	r.ReclamationReason = reason
	r.Status = StatusReclamationPending
	r.ResolvedAt = nil
	r.touch()
	return nil
}

// ApproveReclamation upholds the appeal.
func (r *Report) ApproveReclamation() error {
	if err := r.requireStatus(OpApproveReclamation); err != nil {
		return err
	}

	r.Status = StatusReclamationApproved
	r.resolve()
	r.touch()
	return nil
}

// RejectReclamation dismisses the appeal.
func (r *Report) RejectReclamation() error {
	if err := r.requireStatus(OpRejectReclamation); err != nil {
		return err
	}

	r.Status = StatusReclamationRejected
	r.resolve()
	r.touch()
	return nil
}

// Revert is the supervisor escape hatch: it rolls the pipeline back to a
// caller-specified prior state. It is the only transition that breaks
// forward progress, so the reason is mandatory and audited.
func (r *Report) Revert(target Status, reason string) error {
	if r.Status == StatusSubmitted {
		return apperrors.IllegalState(OpRevertStatus.String(), r.Status.String())
	}
	if !target.IsValid() {
		return apperrors.Validation("unknown target status", map[string]string{"status": string(target)})
	}
	if target == r.Status {
		return apperrors.IllegalState(OpRevertStatus.String(), r.Status.String())
	}
	if reason == "" {
		return apperrors.Validation("revert reason is required", map[string]string{"reason": "required"})
	}

	r.Status = target
	if target.IsTerminal() {
		r.resolve()
	} else {
		r.ResolvedAt = nil
	}
	r.touch()
	return nil
}

// AssignReviewer sets (or reassigns) the reviewer. There is no clearing
// operation; reassignment is only possible while the report is reviewable.
func (r *Report) AssignReviewer(reviewerID types.ID) error {
	if err := r.requireStatus(OpAssignReviewer); err != nil {
		return err
	}
	if reviewerID.IsZero() {
		return apperrors.Validation("reviewer is required", map[string]string{"reviewer_id": "required"})
	}

	assigned := reviewerID
	r.AssignedReviewerID = &assigned
	r.touch()
	return nil
}

// AppendMessage adds a chat entry to an open thread.
func (r *Report) AppendMessage(sender Sender, text string) error {
	if !r.ChatOpen {
		return apperrors.IllegalState(OpSendMessage.String(), "CHAT_CLOSED")
	}
	if text == "" {
		return apperrors.Validation("message text is required", map[string]string{"text": "required"})
	}

	r.Messages = append(r.Messages, ChatMessage{
		ID:        types.NewID(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	r.touch()
	return nil
}

// CloseChat closes the thread: exactly one system message is appended, the
// thread can never reopen, and the report is marked in revision. The
// pipeline Status is deliberately left untouched.
func (r *Report) CloseChat() error {
	if !r.ChatOpen {
		return apperrors.IllegalState(OpCloseChat.String(), "CHAT_CLOSED")
	}

	r.Messages = append(r.Messages, ChatMessage{
		ID:        types.NewID(),
		Sender:    SenderSystem,
		Text:      "Chat closed by the reviewing professional",
		Timestamp: time.Now().UTC(),
	})
	r.ChatOpen = false
	r.InRevision = true
	r.touch()
	return nil
}

func (r *Report) resolve() {
	now := time.Now().UTC()
	r.ResolvedAt = &now
}

// Clone returns a deep copy, used by the copy-on-write in-memory store.
func (r *Report) Clone() *Report {
	copied := *r
	if r.AssignedReviewerID != nil {
		id := *r.AssignedReviewerID
		copied.AssignedReviewerID = &id
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		copied.ResolvedAt = &t
	}
	copied.Messages = make([]ChatMessage, len(r.Messages))
	copy(copied.Messages, r.Messages)
	return &copied
}
