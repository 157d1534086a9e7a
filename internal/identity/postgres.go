package identity

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// PostgresDirectory implements Directory using PostgreSQL
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgreSQL directory
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id types.ID) (*User, error) {
	return d.findOne(ctx, `SELECT id, username, role, created_at, updated_at FROM reports.users WHERE id = $1`, id)
}

func (d *PostgresDirectory) FindByUsername(ctx context.Context, username string) (*User, error) {
	return d.findOne(ctx, `SELECT id, username, role, created_at, updated_at FROM reports.users WHERE username = $1`, username)
}

func (d *PostgresDirectory) findOne(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	err := d.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("user", "")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find user")
	}
	return u, nil
}

func (d *PostgresDirectory) List(ctx context.Context, role *Role) ([]User, error) {
	query := `SELECT id, username, role, created_at, updated_at FROM reports.users`
	args := []any{}
	if role != nil {
		query += ` WHERE role = $1`
		args = append(args, *role)
	}
	query += ` ORDER BY username`

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *PostgresDirectory) Create(ctx context.Context, u *User) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO reports.users (id, username, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return apperrors.Conflict("username already taken")
		}
		return apperrors.Wrap(err, "failed to create user")
	}
	return nil
}

func (d *PostgresDirectory) SetRole(ctx context.Context, id types.ID, role Role) error {
	result, err := d.pool.Exec(ctx,
		`UPDATE reports.users SET role = $2, updated_at = $3 WHERE id = $1`,
		id, role, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to set role")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("user", id.String())
	}
	return nil
}

var _ Directory = (*PostgresDirectory)(nil)
