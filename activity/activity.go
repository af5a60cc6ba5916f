package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"taja/database"
	"taja/model"
)

// Changes is the diff document of an UPDATE entry, keyed by field name.
type Changes map[string]model.FieldChange

func (c Changes) set(field, before, after string) {
	if before != after {
		c[field] = model.FieldChange{Old: before, New: after}
	}
}

// Photos records a change in the set of photo ids attached to a shop.
func (c Changes) Photos(before, after []int64) {
	c.set("photos", joinIDs(before), joinIDs(after))
}

// DiffShops returns the fields that differ between before and after.
func DiffShops(before, after model.Shop) Changes {
	c := Changes{}
	c.set("name", before.Name, after.Name)
	c.set("phone_number", before.PhoneNumber, after.PhoneNumber)
	c.set("address", before.Address, after.Address)
	c.set("latitude", formatCoordinate(before.Latitude), formatCoordinate(after.Latitude))
	c.set("longitude", formatCoordinate(before.Longitude), formatCoordinate(after.Longitude))
	c.set("state", before.State, after.State)
	c.set("local_government_area", before.LocalGovernmentArea, after.LocalGovernmentArea)
	c.set("description", before.Description, after.Description)
	c.set("is_active", strconv.FormatBool(before.IsActive), strconv.FormatBool(after.IsActive))
	c.set("verification_status", string(before.VerificationStatus), string(after.VerificationStatus))
	c.set("rejection_reason", before.RejectionReason, after.RejectionReason)
	c.set("owner", formatID(before.OwnerID), formatID(after.OwnerID))
	return c
}

// Actor identifies who made a change. Imports have a name but no user.
type Actor struct {
	ID   *int64
	Name string
}

func ActorFor(u model.User) Actor {
	id := u.ID
	return Actor{ID: &id, Name: u.DisplayName()}
}

// NewEntry builds a log entry for shop. changes is marshalled as the entry's
// JSON document; a string is wrapped as {"msg": ...}.
func NewEntry(shop model.Shop, actor Actor, action model.ActionType, changes interface{}) (model.ActivityLog, error) {
	if s, ok := changes.(string); ok {
		changes = map[string]string{"msg": s}
	}
	doc, err := json.Marshal(changes)
	if err != nil {
		return model.ActivityLog{}, fmt.Errorf("failed to encode %s changes for shop %d: %w", action, shop.ID, err)
	}
	return model.ActivityLog{
		ShopID:     shop.ID,
		ShopName:   shop.Name,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActionType: action,
		Changes:    string(doc),
	}, nil
}

// RecordInTx writes an entry in the transaction of the change it describes.
func RecordInTx(ctx context.Context, tx *sqlx.Tx, shop model.Shop, actor Actor, action model.ActionType, changes interface{}) error {
	entry, err := NewEntry(shop, actor, action, changes)
	if err != nil {
		return err
	}
	return database.InsertActivityLogInTx(ctx, tx, &entry)
}

func formatCoordinate(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func joinIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
