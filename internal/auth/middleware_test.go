package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elitegames/backend-store/internal/common"
)

func loginFixture(t *testing.T, store *memUserStore) (*Service, LoginResult) {
	t.Helper()
	svc := newTestService(t, store)
	ctx := context.Background()
	_, err := svc.Register(ctx, "Alice", "a@example.com", "password123")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "a@example.com", "password123", "ua", "")
	require.NoError(t, err)
	return svc, result
}

func TestRequireAuth(t *testing.T) {
	svc, login := loginFixture(t, newMemUserStore())
	mw := Middleware{Service: svc}

	var gotUserID string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, login.User.ID, gotUserID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateIsOptional(t *testing.T) {
	svc, login := loginFixture(t, newMemUserStore())
	mw := Middleware{Service: svc}

	var gotUserID string
	var hadUserID bool
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, hadUserID = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, hadUserID)
	require.Equal(t, login.User.ID, gotUserID)

	// No token still serves the page, just anonymously.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, hadUserID)

	// A garbage token degrades to anonymous instead of failing the request.
	req = httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, hadUserID)
}

func TestRequireRole(t *testing.T) {
	store := newMemUserStore()
	svc, login := loginFixture(t, store)
	mw := Middleware{Service: svc}

	handler := mw.RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	id := uuid.MustParse(login.User.ID)
	row := store.users[id]
	row.Roles = append(row.Roles, RoleAdmin)
	row.UpdatedAt = time.Now()
	store.users[id] = row

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
