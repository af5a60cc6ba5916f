package mappers

import (
	"encoding/json"
	"strings"
	"time"

	"taja/model"
)

type UserView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
}

// AgentView is the profile with its login nested under "user".
type AgentView struct {
	User           UserView  `json:"user"`
	AgentID        string    `json:"agent_id"`
	PhoneNumber    string    `json:"phone_number"`
	Address        string    `json:"address"`
	AssignedRegion string    `json:"assigned_region"`
	IsActive       bool      `json:"is_active"`
	DateCreated    time.Time `json:"date_created"`
	DateUpdated    time.Time `json:"date_updated"`
}

type PhotoView struct {
	ID    int64  `json:"id"`
	Photo string `json:"photo"`
}

// ShopView is the shop as returned by the API. Owner and CreatedBy carry
// usernames; CreatedByName the capturing agent's display name.
type ShopView struct {
	ID                  int64                    `json:"id"`
	Name                string                   `json:"name"`
	PhoneNumber         string                   `json:"phone_number"`
	Address             string                   `json:"address"`
	Latitude            *float64                 `json:"latitude"`
	Longitude           *float64                 `json:"longitude"`
	State               string                   `json:"state"`
	LocalGovernmentArea string                   `json:"local_government_area"`
	Description         string                   `json:"description"`
	IsActive            bool                     `json:"is_active"`
	VerificationStatus  model.VerificationStatus `json:"verification_status"`
	RejectionReason     string                   `json:"rejection_reason"`
	DateCreated         time.Time                `json:"date_created"`
	DateUpdated         time.Time                `json:"date_updated"`
	Owner               *string                  `json:"owner"`
	CreatedBy           *string                  `json:"created_by"`
	CreatedByName       string                   `json:"created_by_name"`
	AgentID             string                   `json:"agent_id"`
	Photos              []PhotoView              `json:"photos"`
}

type LogView struct {
	ID         int64            `json:"id"`
	ShopID     int64            `json:"shop_id"`
	ShopName   string           `json:"shop_name"`
	ActionType model.ActionType `json:"action_type"`
	ActorID    *int64           `json:"actor_id"`
	ActorName  string           `json:"actor_name"`
	Timestamp  time.Time        `json:"timestamp"`
	Changes    json.RawMessage  `json:"changes"`
}

func ToUserView(u model.User) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func ToAgentView(a model.Agent) AgentView {
	return AgentView{
		User:           ToUserView(a.User),
		AgentID:        a.AgentID,
		PhoneNumber:    a.PhoneNumber,
		Address:        a.Address,
		AssignedRegion: a.AssignedRegion,
		IsActive:       a.IsActive,
		DateCreated:    a.DateCreated,
		DateUpdated:    a.DateUpdated,
	}
}

func ToAgentViews(agents []model.Agent) []AgentView {
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, ToAgentView(a))
	}
	return views
}

// ToShopView converts a shop row and its photos. urlFor resolves a photo's
// object key to its public URL.
func ToShopView(s model.ShopRecord, photos []model.ShopPhoto, urlFor func(key string) string) ShopView {
	v := ShopView{
		ID:                  s.ID,
		Name:                s.Name,
		PhoneNumber:         s.PhoneNumber,
		Address:             s.Address,
		Latitude:            s.Latitude,
		Longitude:           s.Longitude,
		State:               s.State,
		LocalGovernmentArea: s.LocalGovernmentArea,
		Description:         s.Description,
		IsActive:            s.IsActive,
		VerificationStatus:  s.VerificationStatus,
		RejectionReason:     s.RejectionReason,
		DateCreated:         s.DateCreated,
		DateUpdated:         s.DateUpdated,
		AgentID:             s.CreatorAgentID,
		Photos:              make([]PhotoView, 0, len(photos)),
	}
	if s.OwnerID != nil && s.OwnerUsername != "" {
		owner := s.OwnerUsername
		v.Owner = &owner
	}
	if s.CreatedBy != nil && s.CreatorUsername != "" {
		creator := s.CreatorUsername
		v.CreatedBy = &creator
		v.CreatedByName = creatorDisplayName(s)
	}
	for _, p := range photos {
		v.Photos = append(v.Photos, PhotoView{ID: p.ID, Photo: urlFor(p.ObjectKey)})
	}
	return v
}

// ToShopViews converts a page of shops; photos are keyed by shop id.
func ToShopViews(shops []model.ShopRecord, photos map[int64][]model.ShopPhoto, urlFor func(key string) string) []ShopView {
	views := make([]ShopView, 0, len(shops))
	for _, s := range shops {
		views = append(views, ToShopView(s, photos[s.ID], urlFor))
	}
	return views
}

func ToLogView(l model.ActivityLog) LogView {
	changes := json.RawMessage(l.Changes)
	if !json.Valid(changes) {
		changes = json.RawMessage("{}")
	}
	return LogView{
		ID:         l.ID,
		ShopID:     l.ShopID,
		ShopName:   l.ShopName,
		ActionType: l.ActionType,
		ActorID:    l.ActorID,
		ActorName:  l.ActorName,
		Timestamp:  l.Timestamp,
		Changes:    changes,
	}
}

func ToLogViews(logs []model.ActivityLog) []LogView {
	views := make([]LogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, ToLogView(l))
	}
	return views
}

func creatorDisplayName(s model.ShopRecord) string {
	full := strings.TrimSpace(s.CreatorFirstName + " " + s.CreatorLastName)
	if full != "" {
		return full
	}
	return s.CreatorUsername
}
