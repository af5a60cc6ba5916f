package activity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taja/model"
)

func TestDiffShops(t *testing.T) {
	lat := 6.5
	before := model.Shop{Name: "Kiosk", IsActive: true, VerificationStatus: model.StatusRejected, RejectionReason: "blurry"}
	after := before
	after.Name = "Kiosk Two"
	after.Latitude = &lat
	after.VerificationStatus = model.StatusPending
	after.RejectionReason = ""

	c := DiffShops(before, after)
	assert.Equal(t, Changes{
		"name":                {Old: "Kiosk", New: "Kiosk Two"},
		"latitude":            {Old: "", New: "6.500000"},
		"verification_status": {Old: "REJECTED", New: "PENDING"},
		"rejection_reason":    {Old: "blurry", New: ""},
	}, c)

	assert.Empty(t, DiffShops(before, before))
}

func TestChangesPhotos(t *testing.T) {
	c := Changes{}
	c.Photos([]int64{2, 1}, []int64{1, 2})
	assert.Empty(t, c)
	c.Photos([]int64{1, 2}, []int64{2, 5})
	assert.Equal(t, model.FieldChange{Old: "1,2", New: "2,5"}, c["photos"])
}

func TestNewEntry(t *testing.T) {
	shop := model.Shop{ID: 9, Name: "Kiosk"}
	admin := model.User{ID: 1, Username: "root", FirstName: "Site", LastName: "Admin"}

	e, err := NewEntry(shop, ActorFor(admin), model.ActionDelete, "Shop deleted")
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"Shop deleted"}`, e.Changes)
	assert.Equal(t, "Site Admin", e.ActorName)
	require.NotNil(t, e.ActorID)
	assert.Equal(t, int64(1), *e.ActorID)
	assert.Equal(t, "Kiosk", e.ShopName)

	e, err = NewEntry(shop, Actor{Name: "import"}, model.ActionUpdate, Changes{"name": {Old: "a", New: "b"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":{"old":"a","new":"b"}}`, e.Changes)
	assert.Nil(t, e.ActorID)
}

func TestParseLogFilters(t *testing.T) {
	r := httptest.NewRequest("GET", "/?shop_id=4&action_type=update&limit=20", nil)
	f, errs := parseLogFilters(r)
	require.True(t, errs.Empty())
	require.NotNil(t, f.ShopID)
	assert.Equal(t, int64(4), *f.ShopID)
	assert.Equal(t, model.ActionUpdate, f.ActionType)
	assert.Equal(t, 20, f.Limit)

	r = httptest.NewRequest("GET", "/?shop_id=x&action_type=PATCH&limit=-1&actor_id=y", nil)
	_, errs = parseLogFilters(r)
	assert.Len(t, errs, 4)
}
