package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taja/model"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, role, is_active, date_joined, last_login`

// CreateUserInTx inserts u and sets its ID and DateJoined.
func CreateUserInTx(ctx context.Context, tx *sqlx.Tx, u *model.User) error {
	if u.DateJoined.IsZero() {
		u.DateJoined = now()
	}
	u.Email = NormalizeEmail(u.Email)
	const q = `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role, is_active, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := tx.QueryRowxContext(ctx, tx.Rebind(q),
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.IsActive, u.DateJoined,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Username, ErrConflict)
		}
		return fmt.Errorf("CreateUserInTx (Username: %s) failed: %w", u.Username, err)
	}
	return nil
}

func GetUserByID(ctx context.Context, q sqlx.ExtContext, id int64) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

func GetUserByEmail(ctx context.Context, q sqlx.ExtContext, email string) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// EmailTaken reports whether another user than exceptID already uses email.
func EmailTaken(ctx context.Context, q sqlx.ExtContext, email string, exceptID int64) (bool, error) {
	var exists int
	err := q.QueryRowxContext(ctx, q.Rebind(`SELECT 1 FROM users WHERE email = ? AND id <> ? LIMIT 1`), NormalizeEmail(email), exceptID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("EmailTaken failed: %w", err)
	}
	return true, nil
}

func UsernameTaken(ctx context.Context, q sqlx.ExtContext, username string) (bool, error) {
	var exists int
	err := q.QueryRowxContext(ctx, q.Rebind(`SELECT 1 FROM users WHERE username = ? LIMIT 1`), username).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("UsernameTaken failed: %w", err)
	}
	return true, nil
}

// UpdateUserInTx writes the mutable user columns.
func UpdateUserInTx(ctx context.Context, tx *sqlx.Tx, u model.User) error {
	const q = `UPDATE users SET email = ?, first_name = ?, last_name = ?, is_active = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(q), NormalizeEmail(u.Email), u.FirstName, u.LastName, u.IsActive, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("UpdateUserInTx (ID: %d) failed: %w", u.ID, err)
	}
	return expectOneRow(res, u.ID)
}

func TouchLastLogin(ctx context.Context, conn *sqlx.DB, id int64, at time.Time) error {
	_, err := conn.ExecContext(ctx, conn.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last_login for user %d: %w", id, err)
	}
	return nil
}

// ListUsersByRole is used by the import commands to resolve shop owners and agents.
func ListUsersByRole(ctx context.Context, q sqlx.ExtContext, role model.Role) ([]model.User, error) {
	var users []model.User
	err := sqlx.SelectContext(ctx, q, &users, q.Rebind(`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY id`), role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with role %s: %w", role, err)
	}
	return users, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}
