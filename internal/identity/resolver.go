package identity

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// User is an entry in the identity directory.
type User struct {
	ID        types.ID  `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Directory is the durable store of users and their roles.
type Directory interface {
	FindByID(ctx context.Context, id types.ID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, role *Role) ([]User, error)
	Create(ctx context.Context, u *User) error
	SetRole(ctx context.Context, id types.ID, role Role) error
}

// Resolver maps an authenticated identity to its role.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over a directory
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveRole resolves the role of an identity. An identity the directory
// does not know is fatal to the request: there is no default role.
func (r *Resolver) ResolveRole(ctx context.Context, id types.ID) (Role, error) {
	u, err := r.dir.FindByID(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return "", UnknownIdentity(id)
		}
		return "", err
	}
	return u.Role, nil
}

// UnknownIdentity builds the error returned when an authenticated subject
// has no directory entry.
func UnknownIdentity(id types.ID) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        apperrors.ErrUnauthorized,
		Message:    "identity cannot be resolved to a role",
		Code:       "UNKNOWN_IDENTITY",
		HTTPStatus: http.StatusUnauthorized,
		Details:    map[string]string{"identity": id.String()},
	}
}
