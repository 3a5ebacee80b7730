package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

func principalEcho() (http.Handler, *shared.Principal) {
	var seen shared.Principal
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &seen
}

func TestMiddlewareResolvesBearerSubject(t *testing.T) {
	verifier := auth.NewTokenVerifier("jwt-secret", "odyssey-iam")
	svc := auth.NewService(&stubRepo{user: newUser(t)}, verifier)
	token, err := verifier.Issue("user-7", time.Minute)
	require.NoError(t, err)

	next, seen := principalEcho()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware(svc, nil)(next).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(7), seen.UserID)
	assert.Equal(t, "user-7", seen.Subject)
}

func TestMiddlewareRejectsInvalidBearer(t *testing.T) {
	verifier := auth.NewTokenVerifier("jwt-secret", "")
	other := auth.NewTokenVerifier("other-secret", "")
	svc := auth.NewService(&stubRepo{user: newUser(t)}, verifier)

	forged, err := other.Issue("user-7", time.Minute)
	require.NoError(t, err)
	unknown, err := verifier.Issue("nobody", time.Minute)
	require.NoError(t, err)
	expired, err := verifier.Issue("user-7", -time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"forged":  forged,
		"unknown": unknown,
		"expired": expired,
		"garbage": "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			next, seen := principalEcho()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			res := httptest.NewRecorder()
			auth.Middleware(svc, nil)(next).ServeHTTP(res, req)

			assert.Equal(t, http.StatusUnauthorized, res.Code)
			assert.Contains(t, res.Body.String(), "AUTH1")
			assert.Zero(t, seen.UserID)
		})
	}
}

func TestMiddlewareFallsBackToSession(t *testing.T) {
	sm := newSessions(t)
	svc := auth.NewService(&stubRepo{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SetUser("42")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	next, seen := principalEcho()
	res := httptest.NewRecorder()
	auth.Middleware(svc, nil)(next).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(42), seen.UserID)
}

func TestMiddlewareAnonymous(t *testing.T) {
	svc := auth.NewService(&stubRepo{}, nil)
	next, seen := principalEcho()
	res := httptest.NewRecorder()
	auth.Middleware(svc, nil)(next).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Zero(t, seen.UserID)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := auth.BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer abc")
	token, ok := auth.BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = auth.BearerToken(req)
	assert.False(t, ok)
}
