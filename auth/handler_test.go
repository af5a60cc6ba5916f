package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taja/auth"
	"taja/database"
	"taja/loader"
	"taja/model"
)

func setup(t *testing.T) (*sqlx.DB, *auth.Issuer, http.Handler) {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "auth.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, loader.InitDatabase(ctx, conn))

	iss := auth.NewIssuer("test-secret", 15*time.Minute, 24*time.Hour)
	r := chi.NewRouter()
	r.Post("/login/", auth.LoginHandler(conn, iss))
	r.Post("/refresh/", auth.RefreshHandler(conn, iss))
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(conn, iss))
		r.Get("/whoami/", func(w http.ResponseWriter, r *http.Request) {
			u, _ := auth.UserFromContext(r.Context())
			w.Write([]byte(u.Username))
		})
		r.With(auth.RequireStaff()).Get("/staff/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return conn, iss, r
}

func createUser(t *testing.T, conn *sqlx.DB, username string, role model.Role, active bool) model.User {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	u := &model.User{Username: username, Email: username + "@example.com", PasswordHash: hash, Role: role, IsActive: active}
	require.NoError(t, database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
		return database.CreateUserInTx(ctx, tx, u)
	}))
	return *u
}

func do(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginFlow(t *testing.T) {
	conn, _, h := setup(t)
	createUser(t, conn, "admin", model.RoleAdmin, true)

	rec := do(h, http.MethodPost, "/login/", `{"email":"ADMIN@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		User    struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "admin", body.User.Username)
	assert.Equal(t, "admin", body.User.Role)

	u, err := database.GetUserByEmail(context.Background(), conn, "admin@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u.LastLogin)

	rec = do(h, http.MethodGet, "/whoami/", "", body.Access)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	rec = do(h, http.MethodGet, "/whoami/", "", body.Refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are not access tokens")

	rec = do(h, http.MethodPost, "/refresh/", `{"refresh":"`+body.Refresh+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access"`)

	rec = do(h, http.MethodPost, "/refresh/", `{"refresh":"`+body.Access+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	conn, _, h := setup(t)
	createUser(t, conn, "agent", model.RoleAgent, true)
	createUser(t, conn, "gone", model.RoleAgent, false)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"wrong password", `{"email":"agent@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"who@example.com","password":"password123"}`, http.StatusUnauthorized},
		{"inactive user", `{"email":"gone@example.com","password":"password123"}`, http.StatusUnauthorized},
		{"missing fields", `{}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/login/", tt.body, "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestAuthenticateReloadsUser(t *testing.T) {
	conn, iss, h := setup(t)
	u := createUser(t, conn, "agent", model.RoleAgent, true)
	token, err := iss.Issue(u, auth.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/whoami/", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/whoami/", "", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/staff/", "", token).Code)

	ctx := context.Background()
	u.IsActive = false
	require.NoError(t, database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
		return database.UpdateUserInTx(ctx, tx, u)
	}))
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/whoami/", "", token).Code)
}

func TestRequireStaffAllowsAdmin(t *testing.T) {
	conn, iss, h := setup(t)
	u := createUser(t, conn, "dev", model.RoleDeveloper, true)
	token, err := iss.Issue(u, auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodGet, "/staff/", "", token).Code)
}
