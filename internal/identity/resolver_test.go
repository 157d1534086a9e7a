package identity

import (
	"context"
	"net/http"
	"testing"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

func TestResolveRole(t *testing.T) {
	dir := NewMemoryDirectory()
	resolver := NewResolver(dir)
	ctx := context.Background()

	tests := []struct {
		username string
		role     Role
	}{
		{"ana", RolePatient},
		{"dr-petrov", RoleProfessional},
		{"chief", RoleSupervisor},
		{"root", RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			id := dir.Seed(tt.username, tt.role)
			role, err := resolver.ResolveRole(ctx, id)
			if err != nil {
				t.Fatalf("Failed to resolve role: %v", err)
			}
			if role != tt.role {
				t.Errorf("Expected role %s, got %s", tt.role, role)
			}
		})
	}
}

func TestResolveRoleUnknownIdentity(t *testing.T) {
	resolver := NewResolver(NewMemoryDirectory())

	_, err := resolver.ResolveRole(context.Background(), types.NewID())
	if err == nil {
		t.Fatal("Expected error for unknown identity")
	}

	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("Expected AppError, got %T", err)
	}
	if appErr.Code != "UNKNOWN_IDENTITY" {
		t.Errorf("Expected code UNKNOWN_IDENTITY, got %s", appErr.Code)
	}
	if appErr.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", appErr.HTTPStatus)
	}
}

func TestDirectoryUsernameUniqueness(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()
	dir.Seed("ana", RolePatient)

	err := dir.Create(ctx, &User{ID: types.NewID(), Username: "ana", Role: RolePatient})
	if !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected conflict on duplicate username, got %v", err)
	}
}

func TestDirectorySetRole(t *testing.T) {
	dir := NewMemoryDirectory()
	resolver := NewResolver(dir)
	ctx := context.Background()

	id := dir.Seed("dr-petrov", RoleProfessional)
	if err := dir.SetRole(ctx, id, RoleSupervisor); err != nil {
		t.Fatalf("Failed to set role: %v", err)
	}

	role, err := resolver.ResolveRole(ctx, id)
	if err != nil {
		t.Fatalf("Failed to resolve role: %v", err)
	}
	if role != RoleSupervisor {
		t.Errorf("Expected role %s, got %s", RoleSupervisor, role)
	}
}
