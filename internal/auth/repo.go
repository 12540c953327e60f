package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const userColumns = `id, username, email, password_hash, COALESCE(full_name, ''), role, is_active, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByLogin fetches a user by username or email.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 OR email = LOWER($1) LIMIT 1`, login)
	return scanUser(row, login)
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, id)
}

// CreateUser inserts user and fills generated fields.
func (r *PGRepository) CreateUser(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, full_name, role, is_active)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.PasswordHash, user.FullName, string(user.Role), user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if shared.IsUniqueViolation(err) {
		return shared.Conflict("username or email already registered")
	}
	return err
}

// UpdatePassword stores a new password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user %v not found", id)
	}
	return nil
}

func scanUser(row pgx.Row, key any) (*User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FullName, &role,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound("user %v not found", key)
	}
	if err != nil {
		return nil, err
	}
	user.Role = rbac.Role(role)
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
