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

const agentSelect = `
	SELECT p.user_id, p.agent_id, p.phone_number, p.address, p.assigned_region, p.is_active,
	       p.date_created, p.date_updated,
	       u.id AS "user.id", u.username AS "user.username", u.email AS "user.email",
	       u.password_hash AS "user.password_hash", u.first_name AS "user.first_name",
	       u.last_name AS "user.last_name", u.role AS "user.role", u.is_active AS "user.is_active",
	       u.date_joined AS "user.date_joined", u.last_login AS "user.last_login"
	FROM agent_profiles p
	JOIN users u ON u.id = p.user_id`

// CreateAgentInTx creates the agent login and its profile, minting the next
// agent id unless the profile already carries one.
func CreateAgentInTx(ctx context.Context, tx *sqlx.Tx, u *model.User, p *model.AgentProfile) error {
	u.Role = model.RoleAgent
	if err := CreateUserInTx(ctx, tx, u); err != nil {
		return err
	}

	if p.AgentID == "" {
		agentID, err := nextAgentIDInTx(ctx, tx)
		if err != nil {
			return err
		}
		p.AgentID = agentID
	}
	p.UserID = u.ID
	p.DateCreated = now()
	p.DateUpdated = p.DateCreated

	const q = `
		INSERT INTO agent_profiles (user_id, agent_id, phone_number, address, assigned_region, is_active, date_created, date_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, tx.Rebind(q),
		p.UserID, p.AgentID, p.PhoneNumber, p.Address, p.AssignedRegion, p.IsActive, p.DateCreated, p.DateUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agent %s: %w", p.AgentID, ErrConflict)
		}
		return fmt.Errorf("CreateAgentInTx (AgentID: %s) failed: %w", p.AgentID, err)
	}
	return nil
}

func ListAgents(ctx context.Context, q sqlx.ExtContext, f model.AgentFilters) ([]model.Agent, error) {
	query := agentSelect + ` WHERE 1=1`
	var args []interface{}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := containsPattern(strings.ToLower(s))
		query += ` AND (LOWER(u.username) LIKE ? ESCAPE '\' OR LOWER(u.email) LIKE ? ESCAPE '\'
			OR LOWER(u.first_name) LIKE ? ESCAPE '\' OR LOWER(u.last_name) LIKE ? ESCAPE '\'
			OR LOWER(p.agent_id) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}
	if f.IsActive != nil {
		query += ` AND p.is_active = ?`
		args = append(args, *f.IsActive)
	}
	if f.AssignedRegion != "" {
		query += ` AND LOWER(p.assigned_region) = ?`
		args = append(args, strings.ToLower(f.AssignedRegion))
	}
	query += ` ORDER BY p.agent_id`

	agents := []model.Agent{}
	if err := sqlx.SelectContext(ctx, q, &agents, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

func GetAgentByAgentID(ctx context.Context, q sqlx.ExtContext, agentID string) (model.Agent, error) {
	var a model.Agent
	err := sqlx.GetContext(ctx, q, &a, q.Rebind(agentSelect+` WHERE p.agent_id = ?`), agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, fmt.Errorf("failed to get agent %s: %w", agentID, err)
	}
	return a, nil
}

func GetAgentByUserID(ctx context.Context, q sqlx.ExtContext, userID int64) (model.Agent, error) {
	var a model.Agent
	err := sqlx.GetContext(ctx, q, &a, q.Rebind(agentSelect+` WHERE p.user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, fmt.Errorf("failed to get agent for user %d: %w", userID, err)
	}
	return a, nil
}

// UpdateAgentProfileInTx writes the mutable profile columns and bumps date_updated.
func UpdateAgentProfileInTx(ctx context.Context, tx *sqlx.Tx, p *model.AgentProfile) error {
	p.DateUpdated = now()
	const q = `
		UPDATE agent_profiles
		SET phone_number = ?, address = ?, assigned_region = ?, is_active = ?, date_updated = ?
		WHERE user_id = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(q), p.PhoneNumber, p.Address, p.AssignedRegion, p.IsActive, p.DateUpdated, p.UserID)
	if err != nil {
		return fmt.Errorf("UpdateAgentProfileInTx (AgentID: %s) failed: %w", p.AgentID, err)
	}
	return expectOneRow(res, p.UserID)
}

// CountAgents returns the number of agent profiles and how many are active.
func CountAgents(ctx context.Context, q sqlx.ExtContext) (total, active int, err error) {
	var row struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	const query = `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN p.is_active AND u.is_active THEN 1 ELSE 0 END), 0) AS active
		FROM agent_profiles p
		JOIN users u ON u.id = p.user_id`
	if err := sqlx.GetContext(ctx, q, &row, query); err != nil {
		return 0, 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return row.Total, row.Active, nil
}
