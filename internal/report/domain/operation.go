package domain

import (
	"github.com/medwatch/platform/internal/identity"
)

// Operation is a named workflow transition.
type Operation string

const (
	OpStartReview           Operation = "start_review"
	OpRequestAdditionalInfo Operation = "request_additional_info"
	OpProvideAdditionalInfo Operation = "provide_additional_info"
	OpApproveReport         Operation = "approve_report"
	OpRejectReport          Operation = "reject_report"
	OpStartReclamation      Operation = "start_reclamation"
	OpApproveReclamation    Operation = "approve_reclamation"
	OpRejectReclamation     Operation = "reject_reclamation"
	OpRevertStatus          Operation = "revert_status"
	OpAssignReviewer        Operation = "assign_reviewer"
	OpSendMessage           Operation = "send_message"
	OpCloseChat             Operation = "close_chat"
)

// String returns the string representation
func (o Operation) String() string {
	return string(o)
}

// transitionRule captures the allow set and state precondition of one
// operation. fromStatuses nil means the rule does not gate on pipeline
// status (chat operations gate on ChatOpen instead; revert_status gates on
// "any non-initial" and is checked in the aggregate).
type transitionRule struct {
	allowedRoles []identity.Role
	ownerOnly    bool
	fromStatuses []Status
}

// transitionTable is the single source of truth for which role may fire
// which operation from which state. Role hierarchies are written out
// explicitly; nothing here is inherited.
var transitionTable = map[Operation]transitionRule{
	OpStartReview: {
		allowedRoles: []identity.Role{identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusSubmitted, StatusInfoProvided},
	},
	OpRequestAdditionalInfo: {
		allowedRoles: []identity.Role{identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusUnderReview},
	},
	OpProvideAdditionalInfo: {
		allowedRoles: []identity.Role{identity.RolePatient},
		ownerOnly:    true,
		fromStatuses: []Status{StatusInfoRequested},
	},
	OpApproveReport: {
		allowedRoles: []identity.Role{identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusUnderReview},
	},
	OpRejectReport: {
		allowedRoles: []identity.Role{identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusUnderReview},
	},
	OpStartReclamation: {
		allowedRoles: []identity.Role{identity.RolePatient},
		ownerOnly:    true,
		fromStatuses: []Status{StatusApproved, StatusRejected},
	},
	OpApproveReclamation: {
		allowedRoles: []identity.Role{identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusReclamationPending},
	},
	OpRejectReclamation: {
		allowedRoles: []identity.Role{identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusReclamationPending},
	},
	OpRevertStatus: {
		allowedRoles: []identity.Role{identity.RoleSupervisor, identity.RoleAdmin},
	},
	OpAssignReviewer: {
		allowedRoles: []identity.Role{identity.RoleSupervisor, identity.RoleAdmin},
		fromStatuses: []Status{StatusSubmitted, StatusUnderReview},
	},
	OpSendMessage: {
		allowedRoles: []identity.Role{identity.RolePatient, identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
		// patient side is additionally owner-gated in Authorize
	},
	OpCloseChat: {
		allowedRoles: []identity.Role{identity.RoleProfessional, identity.RoleSupervisor, identity.RoleAdmin},
	},
}

// Defined reports whether the operation exists in the workflow at all
func (o Operation) Defined() bool {
	_, ok := transitionTable[o]
	return ok
}

// allowsFrom reports whether the rule permits firing from the given status
func (r transitionRule) allowsFrom(s Status) bool {
	if r.fromStatuses == nil {
		return true
	}
	for _, from := range r.fromStatuses {
		if from == s {
			return true
		}
	}
	return false
}

func (r transitionRule) allowsRole(role identity.Role) bool {
	for _, allowed := range r.allowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}
