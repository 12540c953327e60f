package leads

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Repository persists leads.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Lead, int, error)
	Get(ctx context.Context, id int64) (Lead, error)
	Create(ctx context.Context, l Lead) (Lead, error)
	Update(ctx context.Context, l Lead) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the postgres repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const (
	leadColumns    = `id, COALESCE(customer_id, 0), source, status, priority, estimated_value, notes, COALESCE(assigned_to, 0), created_at, updated_at`
	msgNotFound    = "lead %d not found"
	msgMissingLink = "lead references a missing customer or user"
)

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.CustomerID, &l.Source, &l.Status, &l.Priority, &l.EstimatedValue, &l.Notes, &l.AssignedTo, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func mapWriteError(err error) error {
	if shared.IsForeignKeyViolation(err) {
		return &shared.Error{Kind: shared.KindValidation, Message: msgMissingLink, Cause: err}
	}
	return err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Lead, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.AssignedTo > 0 {
		args = append(args, filter.AssignedTo)
		where += ` AND assigned_to = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (source ILIKE $` + n + ` OR notes ILIKE $` + n + `)`
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + leadColumns + ` FROM leads` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Lead, error) {
	l, err := scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		return Lead{}, mdshared.MapReadError(err, msgNotFound, id)
	}
	return l, nil
}

func (r *repository) Create(ctx context.Context, l Lead) (Lead, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO leads (customer_id, source, status, priority, estimated_value, notes, assigned_to, created_at, updated_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $8) RETURNING id`,
		l.CustomerID, l.Source, l.Status, l.Priority, l.EstimatedValue, l.Notes, l.AssignedTo, now).Scan(&l.ID)
	if err != nil {
		return Lead{}, mapWriteError(err)
	}
	l.CreatedAt, l.UpdatedAt = now, now
	return l, nil
}

func (r *repository) Update(ctx context.Context, l Lead) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET customer_id = NULLIF($1, 0), source = $2, status = $3, priority = $4,
estimated_value = $5, notes = $6, assigned_to = NULLIF($7, 0), updated_at = NOW() WHERE id = $8`,
		l.CustomerID, l.Source, l.Status, l.Priority, l.EstimatedValue, l.Notes, l.AssignedTo, l.ID)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, l.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, id)
	}
	return nil
}
