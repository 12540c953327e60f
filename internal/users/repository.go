package users

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crm-ims/crm-ims/internal/auth"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const userColumns = `id, username, email, COALESCE(full_name, ''), role, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns users matching filter.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (username ILIKE $` + n + ` OR email ILIKE $` + n + ` OR full_name ILIKE $` + n + `)`
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where += ` AND role = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := []auth.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateRole stores a new role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role rbac.Role) (auth.User, error) {
	return r.update(ctx, id, `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2 RETURNING `+userColumns, string(role), id)
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (auth.User, error) {
	return r.update(ctx, id, `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING `+userColumns, active, id)
}

func (r *Repository) update(ctx context.Context, id int64, query string, args ...any) (auth.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, shared.NotFound("user %v not found", id)
	}
	return user, err
}

func scanUser(row pgx.Row) (auth.User, error) {
	var (
		user auth.User
		role string
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	user.Role = rbac.Role(role)
	return user, err
}
