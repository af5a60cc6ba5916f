package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleDeveloper      Role = "developer"
	RoleAdmin          Role = "admin"
	RoleAgent          Role = "agent"
	RoleCallCenter     Role = "call_center"
	RoleDeliveryPerson Role = "delivery_person"
	RoleStoreOwner     Role = "store_owner"
)

var AllRoles = []Role{
	RoleDeveloper,
	RoleAdmin,
	RoleAgent,
	RoleCallCenter,
	RoleDeliveryPerson,
	RoleStoreOwner,
}

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role administers the whole platform.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDeveloper
}

type User struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Role         Role       `db:"role"`
	IsActive     bool       `db:"is_active"`
	DateJoined   time.Time  `db:"date_joined"`
	LastLogin    *time.Time `db:"last_login"`
}

// DisplayName is the name shown in activity logs and shop listings.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	if u.Email != "" {
		return u.Email
	}
	return u.Username
}

type AgentProfile struct {
	UserID         int64     `db:"user_id"`
	AgentID        string    `db:"agent_id"`
	PhoneNumber    string    `db:"phone_number"`
	Address        string    `db:"address"`
	AssignedRegion string    `db:"assigned_region"`
	IsActive       bool      `db:"is_active"`
	DateCreated    time.Time `db:"date_created"`
	DateUpdated    time.Time `db:"date_updated"`
}

// Agent is a profile joined with its login.
type Agent struct {
	AgentProfile
	User User `db:"user"`
}

type AgentFilters struct {
	Search         string
	IsActive       *bool
	AssignedRegion string
}
