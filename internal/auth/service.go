package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByLogin(ctx context.Context, login string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

var errInactiveAccount = &shared.Error{Kind: shared.KindUnauthorized, Message: "account is inactive"}

// Service wraps authentication business rules.
type Service struct {
	repo       Repository
	tokens     *TokenIssuer
	logger     *slog.Logger
	bcryptCost int
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost, used by tests.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// Login validates username-or-email credentials and issues an access token.
func (s *Service) Login(ctx context.Context, login, password string) (Token, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Token{}, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Token{}, shared.Internal("find user", err)
		}
		return Token{}, shared.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Token{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return Token{}, shared.Forbidden("account is inactive")
	}
	signed, expiresAt, err := s.tokens.Issue(*user)
	if err != nil {
		return Token{}, shared.Internal("sign token", err)
	}
	s.logger.InfoContext(ctx, "user logged in", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expiresAt, User: *user}, nil
}

// Me returns the account behind the current principal.
func (s *Service) Me(ctx context.Context) (User, error) {
	id := shared.ActorID(ctx)
	if id == 0 {
		return User{}, shared.ErrAuthenticationRequired
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, shared.WrapInternal("find user", err)
	}
	if !user.IsActive {
		return User{}, shared.Forbidden("account is inactive")
	}
	return *user, nil
}

// ResolvePrincipal reloads the account behind a token. Missing or inactive accounts are
// rejected and the stored role replaces the role claimed by the token.
func (s *Service) ResolvePrincipal(ctx context.Context, claimed shared.Principal) (shared.Principal, error) {
	user, err := s.repo.FindByID(ctx, claimed.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.ErrAuthenticationRequired
		}
		return shared.Principal{}, shared.Internal("resolve principal", err)
	}
	if !user.IsActive {
		return shared.Principal{}, errInactiveAccount
	}
	return shared.Principal{UserID: user.ID, Username: user.Username, Role: string(user.Role)}, nil
}

// ChangePassword replaces the current user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	id := shared.ActorID(ctx)
	if id == 0 {
		return shared.ErrAuthenticationRequired
	}
	if len(newPassword) < minPasswordLength {
		return shared.Validation("password must be at least %d characters", minPasswordLength)
	}
	if len(newPassword) > maxPasswordLength {
		return shared.Validation("password must be at most %d characters", maxPasswordLength)
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return shared.WrapInternal("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return shared.Validation("current password is incorrect")
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return shared.Internal("hash password", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return shared.WrapInternal("update password", err)
	}
	s.logger.InfoContext(ctx, "password changed", slog.Int64("user_id", id))
	return nil
}

// Register creates an active account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" {
		return User{}, shared.Validation("%s is required", "username")
	}
	if err := validate.Var(in.Email, "required,email"); err != nil {
		return User{}, shared.Validation("invalid %s", "email")
	}
	if len(in.Password) < minPasswordLength {
		return User{}, shared.Validation("password must be at least %d characters", minPasswordLength)
	}
	if len(in.Password) > maxPasswordLength {
		return User{}, shared.Validation("password must be at most %d characters", maxPasswordLength)
	}
	if in.Role == "" {
		in.Role = rbac.RoleViewer
	}
	if !in.Role.Valid() {
		return User{}, shared.Validation("invalid %s", "role")
	}
	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return User{}, shared.Internal("hash password", err)
	}
	user := User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return User{}, shared.WrapInternal("create user", err)
	}
	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
		slog.Int64("actor_id", shared.ActorID(ctx)))
	return user, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
