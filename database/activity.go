package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"taja/model"
)

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

func InsertActivityLogInTx(ctx context.Context, tx *sqlx.Tx, l *model.ActivityLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = now()
	}
	if l.Changes == "" {
		l.Changes = "{}"
	}
	const q = `
		INSERT INTO activity_logs (shop_id, shop_name, actor_id, actor_name, action_type, changes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := tx.QueryRowxContext(ctx, tx.Rebind(q),
		l.ShopID, l.ShopName, l.ActorID, l.ActorName, l.ActionType, l.Changes, l.Timestamp,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("InsertActivityLogInTx (Shop: %d, Action: %s) failed: %w", l.ShopID, l.ActionType, err)
	}
	return nil
}

// ListActivityLogs returns entries matching f, newest first.
func ListActivityLogs(ctx context.Context, q sqlx.ExtContext, f model.LogFilters) ([]model.ActivityLog, error) {
	var sb strings.Builder
	var args []interface{}
	sb.WriteString(`SELECT l.id, l.shop_id, l.shop_name, l.actor_id, l.actor_name, l.action_type, l.changes, l.timestamp
		FROM activity_logs l WHERE 1=1`)

	if f.ShopID != nil {
		sb.WriteString(` AND l.shop_id = ?`)
		args = append(args, *f.ShopID)
	}
	if f.ActionType != "" {
		sb.WriteString(` AND l.action_type = ?`)
		args = append(args, f.ActionType)
	}
	if f.ActorID != nil {
		sb.WriteString(` AND l.actor_id = ?`)
		args = append(args, *f.ActorID)
	}
	if f.ShopCreatedBy != nil {
		sb.WriteString(` AND (l.actor_id = ? OR l.shop_id IN (SELECT id FROM shops WHERE created_by = ?))`)
		args = append(args, *f.ShopCreatedBy, *f.ShopCreatedBy)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	sb.WriteString(` ORDER BY l.timestamp DESC, l.id DESC LIMIT ?`)
	args = append(args, limit)

	logs := []model.ActivityLog{}
	if err := sqlx.SelectContext(ctx, q, &logs, q.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	return logs, nil
}
