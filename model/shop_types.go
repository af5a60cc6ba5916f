package model

import "time"

type VerificationStatus string

const (
	StatusPending  VerificationStatus = "PENDING"
	StatusVerified VerificationStatus = "VERIFIED"
	StatusRejected VerificationStatus = "REJECTED"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

type Shop struct {
	ID                  int64              `db:"id"`
	OwnerID             *int64             `db:"owner_id"`
	CreatedBy           *int64             `db:"created_by"`
	Name                string             `db:"name"`
	PhoneNumber         string             `db:"phone_number"`
	Address             string             `db:"address"`
	Latitude            *float64           `db:"latitude"`
	Longitude           *float64           `db:"longitude"`
	State               string             `db:"state"`
	LocalGovernmentArea string             `db:"local_government_area"`
	Description         string             `db:"description"`
	IsActive            bool               `db:"is_active"`
	VerificationStatus  VerificationStatus `db:"verification_status"`
	RejectionReason     string             `db:"rejection_reason"`
	SearchText          string             `db:"search_text"`
	DateCreated         time.Time          `db:"date_created"`
	DateUpdated         time.Time          `db:"date_updated"`
}

// ShopRecord is a shop with the display names of the users it points at.
type ShopRecord struct {
	Shop
	OwnerUsername    string `db:"owner_username"`
	CreatorUsername  string `db:"creator_username"`
	CreatorFirstName string `db:"creator_first_name"`
	CreatorLastName  string `db:"creator_last_name"`
	CreatorAgentID   string `db:"creator_agent_id"`
}

type ShopPhoto struct {
	ID          int64     `db:"id"`
	ShopID      int64     `db:"shop_id"`
	ObjectKey   string    `db:"object_key"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	DateCreated time.Time `db:"date_created"`
}

// ShopFilters narrows shop queries. The scope fields (CreatedBy, OwnerID,
// VerifiedActiveOnly) come from the caller's role, the rest from the query string.
type ShopFilters struct {
	CreatedBy          *int64
	OwnerID            *int64
	VerifiedActiveOnly bool

	VerificationStatus  VerificationStatus
	IsActive            *bool
	State               string
	LocalGovernmentArea string
	AgentID             string
	Search              string
	DateFrom            *time.Time
	DateTo              *time.Time
}

type ShopStats struct {
	TotalShops         int `db:"total_shops" json:"total_shops"`
	ActiveShops        int `db:"active_shops" json:"active_shops"`
	InactiveShops      int `db:"inactive_shops" json:"inactive_shops"`
	PendingReviews     int `db:"pending_reviews" json:"pending_reviews"`
	VerifiedShops      int `db:"verified_shops" json:"verified_shops"`
	RejectedReviews    int `db:"rejected_reviews" json:"rejected_reviews"`
	ShopsCapturedToday int `db:"shops_captured_today" json:"shops_captured_today"`
	TotalAgents        int `db:"-" json:"total_agents"`
	ActiveAgents       int `db:"-" json:"active_agents"`
}
