package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	_ "github.com/odyssey-erp/odyssey-iam/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindBySubject(ctx context.Context, subject string) (*auth.User, error) {
	if s.user == nil || s.user.Subject != subject {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 7, Subject: "user-7", Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}
}

func newSessions(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

func serveWithSession(t *testing.T, sm *shared.SessionManager, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	h(res, req)
	return res, sess
}

func loginRouter(t *testing.T, repo auth.Repository, sm *shared.SessionManager) http.HandlerFunc {
	t.Helper()
	handler := auth.NewHandler(nil, auth.NewService(repo, nil), sm, shared.NewCSRFManager("csrfsecret"))
	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	return router.ServeHTTP
}

func TestLoginBindsSession(t *testing.T) {
	sm := newSessions(t)
	serve := loginRouter(t, &stubRepo{user: newUser(t)}, sm)

	body := `{"email":"user@test.local","password":"correctpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	res, sess := serveWithSession(t, sm, serve, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "7", sess.User())
	var p shared.Principal
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &p))
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, "user-7", p.Subject)
}

func TestLoginInvalidCredentials(t *testing.T) {
	sm := newSessions(t)
	serve := loginRouter(t, &stubRepo{user: newUser(t)}, sm)

	body := `{"email":"user@test.local","password":"wrongpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	res, sess := serveWithSession(t, sm, serve, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Empty(t, sess.User())
}

func TestLoginValidation(t *testing.T) {
	sm := newSessions(t)
	serve := loginRouter(t, &stubRepo{user: newUser(t)}, sm)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	res, _ := serveWithSession(t, sm, serve, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "P1")
}

func TestCSRFTokenIssued(t *testing.T) {
	sm := newSessions(t)
	serve := loginRouter(t, &stubRepo{}, sm)

	req := httptest.NewRequest(http.MethodGet, "/auth/csrf", nil)
	res, sess := serveWithSession(t, sm, serve, req)

	require.Equal(t, http.StatusOK, res.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	assert.NotEmpty(t, out["csrfToken"])
	assert.Equal(t, sess.Get(shared.CSRFSessionKey), out["csrfToken"])
}

func TestMeRequiresPrincipal(t *testing.T) {
	sm := newSessions(t)
	serve := loginRouter(t, &stubRepo{}, sm)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res, _ := serveWithSession(t, sm, serve, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "SYS4")
}
