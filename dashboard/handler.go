package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"taja/auth"
	"taja/database"
	"taja/model"
	"taja/render"
)

// StatsHandler returns shop counts for the caller's scope. Agent totals are
// only reported to staff.
func StatsHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())

		var f model.ShopFilters
		id := u.ID
		switch {
		case u.Role.IsStaff():
		case u.Role == model.RoleAgent:
			f.CreatedBy = &id
		case u.Role == model.RoleStoreOwner:
			f.OwnerID = &id
		default:
			render.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
			return
		}

		stats, err := Compute(r.Context(), conn, f, u.Role.IsStaff(), time.Now())
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, stats)
	}
}

// Compute aggregates the counts for f as of now. "Today" is the UTC
// calendar day containing now.
func Compute(ctx context.Context, conn *sqlx.DB, f model.ShopFilters, withAgents bool, now time.Time) (model.ShopStats, error) {
	stats, err := database.GetShopStats(ctx, conn, f, StartOfDay(now))
	if err != nil {
		return model.ShopStats{}, err
	}
	if withAgents {
		stats.TotalAgents, stats.ActiveAgents, err = database.CountAgents(ctx, conn)
		if err != nil {
			return model.ShopStats{}, err
		}
	}
	return stats, nil
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
