package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taja/auth"
	"taja/dashboard"
	"taja/database"
	"taja/loader"
	"taja/model"
)

func TestStartOfDay(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	got := dashboard.StartOfDay(time.Date(2024, 5, 2, 0, 30, 0, 0, lagos))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestStatsHandlerScopes(t *testing.T) {
	ctx := context.Background()
	conn, err := database.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "stats.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, loader.InitDatabase(ctx, conn))

	agent := model.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x", IsActive: true}
	profile := model.AgentProfile{IsActive: true}
	require.NoError(t, database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
		if err := database.CreateAgentInTx(ctx, tx, &agent, &profile); err != nil {
			return err
		}
		for _, s := range []model.Shop{
			{Name: "A", CreatedBy: &agent.ID, IsActive: true},
			{Name: "B", IsActive: true, VerificationStatus: model.StatusVerified},
		} {
			s := s
			if err := database.CreateShopInTx(ctx, tx, &s); err != nil {
				return err
			}
		}
		return nil
	}))

	call := func(u model.User) (int, map[string]int) {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(auth.WithUser(ctx, u))
		rec := httptest.NewRecorder()
		dashboard.StatsHandler(conn).ServeHTTP(rec, req)
		var body map[string]int
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		}
		return rec.Code, body
	}

	code, body := call(model.User{ID: 99, Role: model.RoleAdmin})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body["total_shops"])
	assert.Equal(t, 1, body["verified_shops"])
	assert.Equal(t, 2, body["shops_captured_today"])
	assert.Equal(t, 1, body["total_agents"])
	assert.Equal(t, 1, body["active_agents"])

	agent.Role = model.RoleAgent
	code, body = call(agent)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body["total_shops"])
	assert.Equal(t, 1, body["pending_reviews"])
	assert.Equal(t, 0, body["total_agents"])

	code, body = call(model.User{ID: 100, Role: model.RoleStoreOwner})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, body["total_shops"])

	code, _ = call(model.User{ID: 101, Role: model.RoleCallCenter})
	assert.Equal(t, http.StatusForbidden, code)
}
