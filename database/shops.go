package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"taja/model"
)

const shopSelect = `
	SELECT s.id, s.owner_id, s.created_by, s.name, s.phone_number, s.address, s.latitude, s.longitude,
	       s.state, s.local_government_area, s.description, s.is_active, s.verification_status,
	       s.rejection_reason, s.search_text, s.date_created, s.date_updated,
	       COALESCE(o.username, '') AS owner_username,
	       COALESCE(c.username, '') AS creator_username,
	       COALESCE(c.first_name, '') AS creator_first_name,
	       COALESCE(c.last_name, '') AS creator_last_name,
	       COALESCE(cp.agent_id, '') AS creator_agent_id
	FROM shops s
	LEFT JOIN users o ON o.id = s.owner_id
	LEFT JOIN users c ON c.id = s.created_by
	LEFT JOIN agent_profiles cp ON cp.user_id = s.created_by`

func shopSearchText(s *model.Shop) string {
	return FoldSearchText(s.Name, s.Address, s.PhoneNumber)
}

// CreateShopInTx inserts s and sets its ID and timestamps.
func CreateShopInTx(ctx context.Context, tx *sqlx.Tx, s *model.Shop) error {
	if s.DateCreated.IsZero() {
		s.DateCreated = now()
	}
	s.DateUpdated = s.DateCreated
	if s.VerificationStatus == "" {
		s.VerificationStatus = model.StatusPending
	}
	s.SearchText = shopSearchText(s)

	const q = `
		INSERT INTO shops (owner_id, created_by, name, phone_number, address, latitude, longitude, state,
			local_government_area, description, is_active, verification_status, rejection_reason,
			search_text, date_created, date_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := tx.QueryRowxContext(ctx, tx.Rebind(q),
		s.OwnerID, s.CreatedBy, s.Name, s.PhoneNumber, s.Address, s.Latitude, s.Longitude, s.State,
		s.LocalGovernmentArea, s.Description, s.IsActive, s.VerificationStatus, s.RejectionReason,
		s.SearchText, s.DateCreated, s.DateUpdated,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("CreateShopInTx (Name: %s) failed: %w", s.Name, err)
	}
	return nil
}

// UpdateShopInTx writes every mutable column of s and bumps date_updated.
func UpdateShopInTx(ctx context.Context, tx *sqlx.Tx, s *model.Shop) error {
	s.DateUpdated = now()
	s.SearchText = shopSearchText(s)
	const q = `
		UPDATE shops SET owner_id = ?, name = ?, phone_number = ?, address = ?, latitude = ?, longitude = ?,
			state = ?, local_government_area = ?, description = ?, is_active = ?, verification_status = ?,
			rejection_reason = ?, search_text = ?, date_updated = ?
		WHERE id = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(q),
		s.OwnerID, s.Name, s.PhoneNumber, s.Address, s.Latitude, s.Longitude,
		s.State, s.LocalGovernmentArea, s.Description, s.IsActive, s.VerificationStatus,
		s.RejectionReason, s.SearchText, s.DateUpdated, s.ID)
	if err != nil {
		return fmt.Errorf("UpdateShopInTx (ID: %d) failed: %w", s.ID, err)
	}
	return expectOneRow(res, s.ID)
}

// TouchShopInTx bumps date_updated for changes that only touch photos.
func TouchShopInTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE shops SET date_updated = ? WHERE id = ?`), now(), id)
	if err != nil {
		return fmt.Errorf("TouchShopInTx (ID: %d) failed: %w", id, err)
	}
	return nil
}

func DeleteShopInTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM shops WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete shop %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

func GetShop(ctx context.Context, q sqlx.ExtContext, id int64) (model.ShopRecord, error) {
	var s model.ShopRecord
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(shopSelect+` WHERE s.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShopRecord{}, ErrNotFound
		}
		return model.ShopRecord{}, fmt.Errorf("failed to get shop %d: %w", id, err)
	}
	return s, nil
}

// ListShops returns the shops matching f, newest first.
func ListShops(ctx context.Context, q sqlx.ExtContext, f model.ShopFilters) ([]model.ShopRecord, error) {
	where, args := shopWhere(f)
	query := shopSelect + where + ` ORDER BY s.date_created DESC, s.id DESC`

	shops := []model.ShopRecord{}
	if err := sqlx.SelectContext(ctx, q, &shops, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	return shops, nil
}

func shopWhere(f model.ShopFilters) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	sb.WriteString(` WHERE 1=1`)

	if f.CreatedBy != nil {
		sb.WriteString(` AND s.created_by = ?`)
		args = append(args, *f.CreatedBy)
	}
	if f.OwnerID != nil {
		sb.WriteString(` AND s.owner_id = ?`)
		args = append(args, *f.OwnerID)
	}
	if f.VerifiedActiveOnly {
		sb.WriteString(` AND s.verification_status = ? AND s.is_active = ?`)
		args = append(args, model.StatusVerified, true)
	}
	if f.VerificationStatus != "" {
		sb.WriteString(` AND s.verification_status = ?`)
		args = append(args, f.VerificationStatus)
	}
	if f.IsActive != nil {
		sb.WriteString(` AND s.is_active = ?`)
		args = append(args, *f.IsActive)
	}
	if f.State != "" {
		sb.WriteString(` AND LOWER(s.state) = ?`)
		args = append(args, strings.ToLower(f.State))
	}
	if f.LocalGovernmentArea != "" {
		sb.WriteString(` AND LOWER(s.local_government_area) = ?`)
		args = append(args, strings.ToLower(f.LocalGovernmentArea))
	}
	if f.AgentID != "" {
		sb.WriteString(` AND s.created_by IN (SELECT user_id FROM agent_profiles WHERE agent_id = ?)`)
		args = append(args, f.AgentID)
	}
	if folded := FoldSearchText(f.Search); folded != "" {
		sb.WriteString(` AND s.search_text LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(folded))
	}
	if f.DateFrom != nil {
		sb.WriteString(` AND s.date_created >= ?`)
		args = append(args, f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		sb.WriteString(` AND s.date_created < ?`)
		args = append(args, f.DateTo.UTC())
	}
	return sb.String(), args
}
