package users

import (
	"context"
	"log/slog"
	"strings"

	"github.com/crm-ims/crm-ims/internal/auth"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// ListFilter narrows the user listing.
type ListFilter struct {
	Search string
	Role   rbac.Role
	Limit  int
	Offset int
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, int, error)
	UpdateRole(ctx context.Context, id int64, role rbac.Role) (auth.User, error)
	SetActive(ctx context.Context, id int64, active bool) (auth.User, error)
}

// Registrar creates accounts; satisfied by auth.Service.
type Registrar interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.User, error)
}

// Service handles user administration.
type Service struct {
	repo      RepositoryPort
	registrar Registrar
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, registrar Registrar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, registrar: registrar, logger: logger}
}

// ListUsers returns accounts ordered by id.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, shared.Validation("invalid %s", "role")
	}
	out, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, 0, shared.Internal("list users", err)
	}
	return out, total, nil
}

// CreateUser registers a new account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, in auth.RegisterInput) (auth.User, error) {
	return s.registrar.Register(ctx, in)
}

// UpdateRole changes a user's role. Administrators cannot change their own role.
func (s *Service) UpdateRole(ctx context.Context, id int64, role rbac.Role) (auth.User, error) {
	if id <= 0 {
		return auth.User{}, shared.Validation("invalid %s", "id")
	}
	if !role.Valid() {
		return auth.User{}, shared.Validation("invalid %s", "role")
	}
	if id == shared.ActorID(ctx) {
		return auth.User{}, shared.Conflict("you cannot change your own role")
	}
	user, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return auth.User{}, shared.WrapInternal("update role", err)
	}
	s.logger.InfoContext(ctx, "user role changed",
		slog.Int64("user_id", id),
		slog.String("role", string(role)),
		slog.Int64("actor_id", shared.ActorID(ctx)))
	return user, nil
}

// Deactivate disables login for a user. Administrators cannot deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, id int64) (auth.User, error) {
	return s.setActive(ctx, id, false)
}

// Activate re-enables a deactivated user.
func (s *Service) Activate(ctx context.Context, id int64) (auth.User, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (auth.User, error) {
	if id <= 0 {
		return auth.User{}, shared.Validation("invalid %s", "id")
	}
	if !active && id == shared.ActorID(ctx) {
		return auth.User{}, shared.Conflict("you cannot deactivate your own account")
	}
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return auth.User{}, shared.WrapInternal("set user active", err)
	}
	s.logger.InfoContext(ctx, "user activation changed",
		slog.Int64("user_id", id),
		slog.Bool("active", active),
		slog.Int64("actor_id", shared.ActorID(ctx)))
	return user, nil
}
