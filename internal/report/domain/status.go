package domain

// Status is the approval-pipeline state of a report.
//
// The chat thread has its own orthogonal state (Report.ChatOpen and the
// Report.InRevision marker); closing the chat never rewrites Status.
type Status string

const (
	StatusSubmitted           Status = "SUBMITTED"
	StatusUnderReview         Status = "UNDER_REVIEW"
	StatusInfoRequested       Status = "INFO_REQUESTED"
	StatusInfoProvided        Status = "INFO_PROVIDED"
	StatusApproved            Status = "APPROVED"
	StatusRejected            Status = "REJECTED"
	StatusReclamationPending  Status = "RECLAMATION_PENDING"
	StatusReclamationApproved Status = "RECLAMATION_APPROVED"
	StatusReclamationRejected Status = "RECLAMATION_REJECTED"
)

var validStatuses = map[Status]bool{
	StatusSubmitted:           true,
	StatusUnderReview:         true,
	StatusInfoRequested:       true,
	StatusInfoProvided:        true,
	StatusApproved:            true,
	StatusRejected:            true,
	StatusReclamationPending:  true,
	StatusReclamationApproved: true,
	StatusReclamationRejected: true,
}

// Terminal states have no outgoing transitions except the reclamation path
// out of APPROVED/REJECTED and the supervisor escape hatch.
var terminalStatuses = map[Status]bool{
	StatusApproved:            true,
	StatusRejected:            true,
	StatusReclamationApproved: true,
	StatusReclamationRejected: true,
}

// IsValid reports whether s is a defined pipeline status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether s finalizes the pipeline
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// Severity grades the reported adverse effect.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// IsValid reports whether v is a defined severity
func (v Severity) IsValid() bool {
	return v == SeverityMild || v == SeverityModerate || v == SeveritySevere
}

// Sender identifies which side of the thread a chat message came from.
type Sender string

const (
	SenderPatient      Sender = "patient"
	SenderProfessional Sender = "professional"
	SenderSystem       Sender = "system"
)
