package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"taja/model"
)

// GetShopStats counts the shops visible under the scope of f. Shops with a
// date_created at or after todayStart count as captured today.
func GetShopStats(ctx context.Context, q sqlx.ExtContext, f model.ShopFilters, todayStart time.Time) (model.ShopStats, error) {
	where, args := shopWhere(f)
	query := `
		SELECT COUNT(*) AS total_shops,
		       COALESCE(SUM(CASE WHEN s.is_active THEN 1 ELSE 0 END), 0) AS active_shops,
		       COALESCE(SUM(CASE WHEN s.is_active THEN 0 ELSE 1 END), 0) AS inactive_shops,
		       COALESCE(SUM(CASE WHEN s.verification_status = ? THEN 1 ELSE 0 END), 0) AS pending_reviews,
		       COALESCE(SUM(CASE WHEN s.verification_status = ? THEN 1 ELSE 0 END), 0) AS verified_shops,
		       COALESCE(SUM(CASE WHEN s.verification_status = ? THEN 1 ELSE 0 END), 0) AS rejected_reviews,
		       COALESCE(SUM(CASE WHEN s.date_created >= ? THEN 1 ELSE 0 END), 0) AS shops_captured_today
		FROM shops s` + where

	allArgs := append([]interface{}{
		model.StatusPending, model.StatusVerified, model.StatusRejected, todayStart.UTC(),
	}, args...)

	var stats model.ShopStats
	if err := sqlx.GetContext(ctx, q, &stats, q.Rebind(query), allArgs...); err != nil {
		return model.ShopStats{}, fmt.Errorf("failed to aggregate shop stats: %w", err)
	}
	return stats, nil
}
