package domain

import (
	"github.com/medwatch/platform/internal/identity"
	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// Caller is the resolved actor of a workflow request.
type Caller struct {
	ID   types.ID
	Role identity.Role
}

// Authorize decides whether the caller may fire the operation on the
// report. It is a pure function: role-set membership and ownership checks
// only, no state-machine knowledge. Authorization failures are reported
// before any state validity check so an unauthorized caller learns nothing
// about the report's current state.
func Authorize(caller Caller, op Operation, r *Report) error {
	rule, ok := transitionTable[op]
	if !ok {
		return apperrors.InvalidTransition(op.String())
	}

	if !rule.allowsRole(caller.Role) {
		return apperrors.Forbidden("role " + caller.Role.String() + " may not perform " + op.String())
	}

	// Ownership: operations reserved to the reporting patient, plus the
	// patient side of the message thread.
	ownerGated := rule.ownerOnly || (op == OpSendMessage && caller.Role == identity.RolePatient)
	if ownerGated && r.ReporterID != caller.ID {
		return apperrors.Forbidden("only the reporting patient may perform " + op.String())
	}

	return nil
}
