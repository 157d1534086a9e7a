package domain

import (
	"testing"

	"github.com/medwatch/platform/internal/identity"
	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// TestAuthorizeRoleSets tests the per-operation allow sets
func TestAuthorizeRoleSets(t *testing.T) {
	owner := types.NewID()
	r, _ := NewReport(owner, "Aspirin", "dizziness", SeverityMild)

	tests := []struct {
		name    string
		caller  Caller
		op      Operation
		allowed bool
	}{
		{"Patient cannot start review", Caller{owner, identity.RolePatient}, OpStartReview, false},
		{"Professional starts review", Caller{types.NewID(), identity.RoleProfessional}, OpStartReview, true},
		{"Supervisor starts review", Caller{types.NewID(), identity.RoleSupervisor}, OpStartReview, true},
		{"Admin starts review", Caller{types.NewID(), identity.RoleAdmin}, OpStartReview, true},

		{"Patient cannot approve", Caller{owner, identity.RolePatient}, OpApproveReport, false},
		{"Professional approves", Caller{types.NewID(), identity.RoleProfessional}, OpApproveReport, true},

		{"Professional cannot decide reclamation", Caller{types.NewID(), identity.RoleProfessional}, OpApproveReclamation, false},
		{"Supervisor decides reclamation", Caller{types.NewID(), identity.RoleSupervisor}, OpApproveReclamation, true},
		{"Admin decides reclamation", Caller{types.NewID(), identity.RoleAdmin}, OpRejectReclamation, true},

		{"Professional cannot revert", Caller{types.NewID(), identity.RoleProfessional}, OpRevertStatus, false},
		{"Supervisor reverts", Caller{types.NewID(), identity.RoleSupervisor}, OpRevertStatus, true},

		{"Professional cannot assign", Caller{types.NewID(), identity.RoleProfessional}, OpAssignReviewer, false},
		{"Supervisor assigns", Caller{types.NewID(), identity.RoleSupervisor}, OpAssignReviewer, true},

		{"Professional closes chat", Caller{types.NewID(), identity.RoleProfessional}, OpCloseChat, true},
		{"Patient cannot close chat", Caller{owner, identity.RolePatient}, OpCloseChat, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.caller, tt.op, r)
			if tt.allowed && err != nil {
				t.Errorf("Expected allowed, got %v", err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatal("Expected forbidden but got none")
				}
				if !apperrors.Is(err, apperrors.ErrForbidden) {
					t.Errorf("Expected forbidden error, got %v", err)
				}
			}
		})
	}
}

// TestAuthorizeOwnership tests patient ownership gating
func TestAuthorizeOwnership(t *testing.T) {
	owner := types.NewID()
	stranger := types.NewID()
	r, _ := NewReport(owner, "Aspirin", "dizziness", SeverityMild)

	tests := []struct {
		name    string
		caller  Caller
		op      Operation
		allowed bool
	}{
		{"Owner provides info", Caller{owner, identity.RolePatient}, OpProvideAdditionalInfo, true},
		{"Other patient cannot provide info", Caller{stranger, identity.RolePatient}, OpProvideAdditionalInfo, false},
		{"Owner starts reclamation", Caller{owner, identity.RolePatient}, OpStartReclamation, true},
		{"Other patient cannot reclaim", Caller{stranger, identity.RolePatient}, OpStartReclamation, false},
		{"Owner sends message", Caller{owner, identity.RolePatient}, OpSendMessage, true},
		{"Other patient cannot message", Caller{stranger, identity.RolePatient}, OpSendMessage, false},
		{"Any professional may message", Caller{stranger, identity.RoleProfessional}, OpSendMessage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.caller, tt.op, r)
			if tt.allowed && err != nil {
				t.Errorf("Expected allowed, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("Expected forbidden but got none")
			}
		})
	}
}

// TestAuthorizeBeforeState tests that a forbidden caller gets 403 even
// when the operation would also be invalid for the current state
func TestAuthorizeBeforeState(t *testing.T) {
	owner := types.NewID()
	r, _ := NewReport(owner, "Aspirin", "dizziness", SeverityMild)

	// approve_report from SUBMITTED is an illegal state, but for a
	// patient the authorization failure must win.
	err := Authorize(Caller{owner, identity.RolePatient}, OpApproveReport, r)
	if !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden error, got %v", err)
	}
}

// TestAuthorizeUnknownOperation tests the undefined-operation error
func TestAuthorizeUnknownOperation(t *testing.T) {
	r, _ := NewReport(types.NewID(), "Aspirin", "dizziness", SeverityMild)

	err := Authorize(Caller{types.NewID(), identity.RoleAdmin}, Operation("launch_missiles"), r)
	if !apperrors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("Expected invalid-transition error, got %v", err)
	}
}
