package model

import "time"

type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ActivityLog stores Changes as the raw JSON document written at change time.
type ActivityLog struct {
	ID         int64      `db:"id"`
	ShopID     int64      `db:"shop_id"`
	ShopName   string     `db:"shop_name"`
	ActorID    *int64     `db:"actor_id"`
	ActorName  string     `db:"actor_name"`
	ActionType ActionType `db:"action_type"`
	Changes    string     `db:"changes"`
	Timestamp  time.Time  `db:"timestamp"`
}

type LogFilters struct {
	ShopID     *int64
	ActionType ActionType
	ActorID    *int64
	// ShopCreatedBy limits entries to shops captured by that user, or authored by them.
	ShopCreatedBy *int64
	Limit         int
}
