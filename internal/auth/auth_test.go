package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/crm-ims/crm-ims/internal/auth"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
	_ "github.com/crm-ims/crm-ims/testing"
)

type stubRepo struct {
	mu    sync.Mutex
	users []auth.User
}

func (s *stubRepo) FindByLogin(_ context.Context, login string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == login || u.Email == strings.ToLower(login) {
			u := u
			return &u, nil
		}
	}
	return nil, shared.NotFound("user %v not found", login)
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, shared.NotFound("user %v not found", id)
}

func (s *stubRepo) CreateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return shared.Conflict("username or email already registered")
		}
	}
	user.ID = int64(len(s.users) + 1)
	s.users = append(s.users, *user)
	return nil
}

func (s *stubRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	return s.update(id, func(u *auth.User) { u.PasswordHash = hash })
}

func (s *stubRepo) update(id int64, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			fn(&s.users[i])
			return nil
		}
	}
	return shared.NotFound("user %v not found", id)
}

func (s *stubRepo) deactivate(id int64) {
	_ = s.update(id, func(u *auth.User) { u.IsActive = false })
}

func newService(t *testing.T) (*auth.Service, *auth.TokenIssuer, *stubRepo) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	repo := &stubRepo{}
	svc := auth.NewService(repo, tokens, nil).WithBcryptCost(bcrypt.MinCost)
	_, err = svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct-horse",
		Role:     rbac.RoleAdmin,
	})
	require.NoError(t, err)
	return svc, tokens, repo
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, tokens, _ := newService(t)

	for _, login := range []string{"alice", "alice@example.com"} {
		token, err := svc.Login(context.Background(), login, "correct-horse")
		require.NoError(t, err)
		require.Equal(t, "Bearer", token.TokenType)
		require.NotEmpty(t, token.AccessToken)

		principal, err := tokens.Parse(token.AccessToken)
		require.NoError(t, err)
		require.Equal(t, int64(1), principal.UserID)
		require.Equal(t, "admin", principal.Role)
		require.Equal(t, "alice", principal.Username)
	}
}

func TestLoginRejections(t *testing.T) {
	svc, _, repo := newService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "wrong-password")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = svc.Login(ctx, "bob", "correct-horse")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	repo.deactivate(1)
	_, err = svc.Login(ctx, "alice", "correct-horse")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := []auth.RegisterInput{
		{Username: "", Email: "x@example.com", Password: "long-enough"},
		{Username: "bob", Email: "not-an-email", Password: "long-enough"},
		{Username: "bob", Email: "bob@example.com", Password: "short"},
		{Username: "bob", Email: "bob@example.com", Password: "long-enough", Role: "owner"},
	}
	for _, in := range cases {
		_, err := svc.Register(ctx, in)
		require.ErrorIs(t, err, shared.ErrValidation, in)
	}

	_, err := svc.Register(ctx, auth.RegisterInput{Username: "alice", Email: "other@example.com", Password: "long-enough"})
	require.ErrorIs(t, err, shared.ErrConflict)

	user, err := svc.Register(ctx, auth.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "long-enough"})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleViewer, user.Role)
	require.True(t, user.IsActive)
}

func TestTokenParseRejections(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	tokens.WithClock(func() time.Time { return issued })
	raw, _, err := tokens.Issue(auth.User{ID: 5, Username: "carol", Role: rbac.RoleSales})
	require.NoError(t, err)

	_, err = tokens.Parse(raw)
	require.NoError(t, err)

	tokens.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = tokens.Parse(raw)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	other, err := auth.NewTokenIssuer("another-secret", time.Hour)
	require.NoError(t, err)
	other.WithClock(func() time.Time { return issued })
	_, err = other.Parse(raw)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = tokens.Parse("not.a.token")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = auth.NewTokenIssuer("", time.Hour)
	require.Error(t, err)
}

func newRouter(t *testing.T) (http.Handler, *auth.Service, *stubRepo) {
	t.Helper()
	svc, tokens, repo := newService(t)
	r := chi.NewRouter()
	r.Use(auth.Bearer(tokens, svc))
	r.Route("/auth", auth.NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)
	return r, svc, repo
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLoginMeRegister(t *testing.T) {
	router, _, _ := newRouter(t)

	rec := call(router, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"nope-nope"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(router, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token auth.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	require.NotContains(t, rec.Body.String(), "password_hash")

	rec = call(router, http.MethodGet, "/auth/me", token.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me auth.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "alice", me.Username)

	rec = call(router, http.MethodGet, "/auth/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(router, http.MethodGet, "/auth/me", "garbage", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := `{"username":"dave","email":"dave@example.com","password":"long-enough","role":"sales"}`
	rec = call(router, http.MethodPost, "/auth/register", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(router, http.MethodPost, "/auth/register", token.AccessToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(router, http.MethodPost, "/auth/login", "", `{"username":"dave","password":"long-enough"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	rec = call(router, http.MethodPost, "/auth/register", token.AccessToken,
		`{"username":"erin","email":"erin@example.com","password":"long-enough"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBearerReflectsStoredAccount(t *testing.T) {
	router, svc, repo := newRouter(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, auth.RegisterInput{Username: "frank", Email: "frank@example.com", Password: "long-enough", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	token, err := svc.Login(ctx, "frank", "long-enough")
	require.NoError(t, err)

	body := `{"username":"gina","email":"gina@example.com","password":"long-enough"}`
	require.NoError(t, repo.update(2, func(u *auth.User) { u.Role = rbac.RoleViewer }))
	rec := call(router, http.MethodPost, "/auth/register", token.AccessToken, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(router, http.MethodGet, "/auth/me", token.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me auth.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, rbac.RoleViewer, me.Role)

	repo.deactivate(2)
	rec = call(router, http.MethodGet, "/auth/me", token.AccessToken, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolvePrincipal(t *testing.T) {
	svc, _, repo := newService(t)
	ctx := context.Background()

	got, err := svc.ResolvePrincipal(ctx, shared.Principal{UserID: 1, Role: "viewer"})
	require.NoError(t, err)
	require.Equal(t, "admin", got.Role)
	require.Equal(t, "alice", got.Username)

	_, err = svc.ResolvePrincipal(ctx, shared.Principal{UserID: 42, Role: "admin"})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	repo.deactivate(1)
	_, err = svc.ResolvePrincipal(ctx, shared.Principal{UserID: 1, Role: "admin"})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	router, svc, _ := newRouter(t)
	ctx := context.Background()
	token, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	rec := call(router, http.MethodPost, "/auth/change-password", "", `{"old_password":"correct-horse","new_password":"battery-staple"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(router, http.MethodPost, "/auth/change-password", token.AccessToken, `{"old_password":"wrong-horse","new_password":"battery-staple"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPost, "/auth/change-password", token.AccessToken, `{"old_password":"correct-horse","new_password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPost, "/auth/change-password", token.AccessToken, `{"old_password":"correct-horse","new_password":"battery-staple"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	_, err = svc.Login(ctx, "alice", "correct-horse")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = svc.Login(ctx, "alice", "battery-staple")
	require.NoError(t, err)

	actor := shared.ContextWithPrincipal(ctx, shared.Principal{UserID: 1, Role: "admin"})
	err = svc.ChangePassword(actor, "battery-staple", strings.Repeat("x", 73))
	require.ErrorIs(t, err, shared.ErrValidation)
}
