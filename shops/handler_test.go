package shops

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taja/auth"
	"taja/database"
	"taja/geocode"
	"taja/loader"
	"taja/mappers"
	"taja/model"
	"taja/photostore"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeGeocoder struct {
	mu    sync.Mutex
	loc   geocode.Location
	calls int
}

func (g *fakeGeocoder) Lookup(_ context.Context, _, _ float64) geocode.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.loc
}

type fixture struct {
	t      *testing.T
	conn   *sqlx.DB
	media  string
	geo    *fakeGeocoder
	router http.Handler
	as     model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	conn, err := database.Open(ctx, "sqlite3", filepath.Join(dir, "shops.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, loader.InitDatabase(ctx, conn))

	media := filepath.Join(dir, "media")
	store, err := photostore.NewLocalStore(media, "/media/")
	require.NoError(t, err)

	f := &fixture{
		t:     t,
		conn:  conn,
		media: media,
		geo:   &fakeGeocoder{loc: geocode.Location{State: "Lagos", LocalGovernmentArea: "Ikeja"}},
	}
	d := Deps{DB: conn, Photos: store, Geocoder: f.geo, MaxPhotoBytes: 1 << 20}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUser(req.Context(), f.as)))
		})
	})
	r.Get("/shops/", ListHandler(d))
	r.Post("/shops/", CreateHandler(d))
	r.Get("/shops/my-shops/", MyShopsHandler(d))
	r.Get("/shops/export/", ExportHandler(d))
	r.Get("/shops/{id}/", GetHandler(d))
	r.Patch("/shops/{id}/", UpdateHandler(d))
	r.Delete("/shops/{id}/", DeleteHandler(d))
	f.router = r
	return f
}

func (f *fixture) user(username string, role model.Role) model.User {
	f.t.Helper()
	ctx := context.Background()
	u := model.User{Username: username, Email: username + "@example.com", PasswordHash: "x", FirstName: username, Role: role, IsActive: true}
	require.NoError(f.t, database.WithTx(ctx, f.conn, func(tx *sqlx.Tx) error {
		if role == model.RoleAgent {
			return database.CreateAgentInTx(ctx, tx, &u, &model.AgentProfile{IsActive: true})
		}
		return database.CreateUserInTx(ctx, tx, &u)
	}))
	return u
}

func (f *fixture) do(as model.User, method, path, body string) *httptest.ResponseRecorder {
	f.as = as
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) multipart(as model.User, method, path string, fields map[string]string, photos ...[]byte) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(f.t, mw.WriteField(k, v))
	}
	for i, p := range photos {
		fw, err := mw.CreateFormFile("uploaded_photos", fmt.Sprintf("photo%d.png", i))
		require.NoError(f.t, err)
		_, err = fw.Write(p)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, mw.Close())

	f.as = as
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeShop(t *testing.T, rec *httptest.ResponseRecorder) mappers.ShopView {
	t.Helper()
	var v mappers.ShopView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) logs(shopID int64) []model.ActivityLog {
	f.t.Helper()
	logs, err := database.ListActivityLogs(context.Background(), f.conn, model.LogFilters{ShopID: &shopID})
	require.NoError(f.t, err)
	return logs
}

func TestCreateShopWithPhotos(t *testing.T) {
	f := newFixture(t)
	agent := f.user("ada", model.RoleAgent)

	rec := f.multipart(agent, http.MethodPost, "/shops/", map[string]string{
		"name":      "Mama Put",
		"latitude":  "6.5243793",
		"longitude": "3.3792057",
	}, pngBytes, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	shop := decodeShop(t, rec)
	assert.Equal(t, "Mama Put", shop.Name)
	assert.Equal(t, model.StatusPending, shop.VerificationStatus)
	assert.True(t, shop.IsActive)
	assert.Equal(t, "Lagos", shop.State)
	assert.Equal(t, "Ikeja", shop.LocalGovernmentArea)
	assert.Equal(t, "ada", *shop.CreatedBy)
	assert.Equal(t, "ada", shop.CreatedByName)
	assert.Equal(t, "AGT-0001", shop.AgentID)
	require.Len(t, shop.Photos, 2)
	assert.True(t, strings.HasPrefix(shop.Photos[0].Photo, fmt.Sprintf("/media/shop_photos/%d/", shop.ID)))

	key := strings.TrimPrefix(shop.Photos[0].Photo, "/media/")
	_, err := os.Stat(filepath.Join(f.media, filepath.FromSlash(key)))
	assert.NoError(t, err)

	logs := f.logs(shop.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionCreate, logs[0].ActionType)
	assert.Equal(t, "ada", logs[0].ActorName)
}

func TestCreateShopRejections(t *testing.T) {
	f := newFixture(t)
	agent := f.user("ada", model.RoleAgent)

	rec := f.do(agent, http.MethodPost, "/shops/", `{"name": "X", "verification_status": "VERIFIED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.multipart(agent, http.MethodPost, "/shops/", map[string]string{"name": "X"}, []byte("GIF89a......"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errs map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errs))
	assert.Equal(t, []string{"Only JPEG and PNG images are allowed."}, errs["uploaded_photos"])

	rec = f.do(agent, http.MethodPost, "/shops/", `{"phone_number": "0801"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(agent, http.MethodPost, "/shops/", `{"name": "Nan Shop", "latitude": "NaN", "longitude": "NaN"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, 0, f.geo.calls)
}

func TestCreateShopKeepsSentLocation(t *testing.T) {
	f := newFixture(t)
	agent := f.user("ada", model.RoleAgent)

	rec := f.do(agent, http.MethodPost, "/shops/", `{"name": "X", "latitude": 6.5, "longitude": 3.4, "state": "Ogun", "local_government_area": "Ado-Odo"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	shop := decodeShop(t, rec)
	assert.Equal(t, "Ogun", shop.State)
	assert.Equal(t, 0, f.geo.calls)

	f.geo.loc = geocode.Location{State: geocode.APIKeyMissing}
	rec = f.do(agent, http.MethodPost, "/shops/", `{"name": "Y", "latitude": 6.5, "longitude": 3.4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	shop = decodeShop(t, rec)
	assert.Empty(t, shop.State, "sentinels never reach the shop")
}

func TestUpdateShopLifecycle(t *testing.T) {
	f := newFixture(t)
	agent := f.user("ada", model.RoleAgent)
	admin := f.user("root", model.RoleAdmin)
	owner := f.user("tola", model.RoleStoreOwner)

	rec := f.multipart(agent, http.MethodPost, "/shops/", map[string]string{"name": "Mama Put"}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	shop := decodeShop(t, rec)
	path := fmt.Sprintf("/shops/%d/", shop.ID)

	// agents may not verify
	rec = f.do(agent, http.MethodPatch, path, `{"verification_status": "VERIFIED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// rejecting needs a reason
	rec = f.do(admin, http.MethodPatch, path, `{"verification_status": "REJECTED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(admin, http.MethodPatch, path, `{"verification_status": "REJECTED", "rejection_reason": "Blurry photo"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Blurry photo", decodeShop(t, rec).RejectionReason)

	// an agent edit resubmits a rejected shop
	rec = f.multipart(agent, http.MethodPatch, path, map[string]string{
		"photos_to_delete_ids": fmt.Sprint(shop.Photos[0].ID),
	}, pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeShop(t, rec)
	assert.Equal(t, model.StatusPending, updated.VerificationStatus)
	assert.Empty(t, updated.RejectionReason)
	require.Len(t, updated.Photos, 1)
	assert.NotEqual(t, shop.Photos[0].ID, updated.Photos[0].ID)
	_, err := os.Stat(filepath.Join(f.media, filepath.FromSlash(strings.TrimPrefix(shop.Photos[0].Photo, "/media/"))))
	assert.True(t, os.IsNotExist(err), "removed blob is deleted")

	// staff assign an owner, who can then see the shop but not edit it
	rec = f.do(admin, http.MethodPatch, path, fmt.Sprintf(`{"owner": %d, "verification_status": "VERIFIED"}`, owner.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "tola", *decodeShop(t, rec).Owner)
	assert.Equal(t, http.StatusOK, f.do(owner, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(owner, http.MethodPatch, path, `{"name": "Mine"}`).Code)

	rec = f.do(admin, http.MethodPatch, path, fmt.Sprintf(`{"owner": %d}`, agent.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	logs := f.logs(shop.ID)
	require.Len(t, logs, 4)
	var changes map[string]model.FieldChange
	require.NoError(t, json.Unmarshal([]byte(logs[0].Changes), &changes))
	assert.Equal(t, "VERIFIED", changes["verification_status"].New)
	assert.Contains(t, changes, "owner")

	// an empty patch changes nothing and logs nothing
	rec = f.do(admin, http.MethodPatch, path, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.logs(shop.ID), 4)
}

func TestUpdateCoordinatesRefreshesLocation(t *testing.T) {
	f := newFixture(t)
	agent := f.user("ada", model.RoleAgent)

	rec := f.do(agent, http.MethodPost, "/shops/", `{"name": "X", "latitude": 6.5, "longitude": 3.4}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	shop := decodeShop(t, rec)
	path := fmt.Sprintf("/shops/%d/", shop.ID)

	f.geo.loc = geocode.Location{State: "Oyo", LocalGovernmentArea: "Ibadan North"}
	rec = f.do(agent, http.MethodPatch, path, `{"latitude": 7.4, "longitude": 3.9}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Oyo", decodeShop(t, rec).State)

	rec = f.do(agent, http.MethodPatch, path, `{"latitude": 7.5, "longitude": 3.9, "state": "Kwara"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeShop(t, rec)
	assert.Equal(t, "Kwara", got.State)
	assert.Equal(t, "Ibadan North", got.LocalGovernmentArea)
}

func TestVisibilityAndDelete(t *testing.T) {
	f := newFixture(t)
	ada := f.user("ada", model.RoleAgent)
	bayo := f.user("bayo", model.RoleAgent)
	admin := f.user("root", model.RoleAdmin)
	caller := f.user("cc", model.RoleCallCenter)

	rec := f.multipart(ada, http.MethodPost, "/shops/", map[string]string{"name": "Ada Stores"}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code)
	shop := decodeShop(t, rec)
	path := fmt.Sprintf("/shops/%d/", shop.ID)
	require.Equal(t, http.StatusCreated, f.do(bayo, http.MethodPost, "/shops/", `{"name": "Bayo Stores"}`).Code)

	var list []mappers.ShopView
	require.NoError(t, json.Unmarshal(f.do(ada, http.MethodGet, "/shops/", "").Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ada Stores", list[0].Name)

	require.NoError(t, json.Unmarshal(f.do(admin, http.MethodGet, "/shops/?search=stores", "").Body.Bytes(), &list))
	assert.Len(t, list, 2)

	require.NoError(t, json.Unmarshal(f.do(caller, http.MethodGet, "/shops/", "").Body.Bytes(), &list))
	assert.Empty(t, list)

	assert.Equal(t, http.StatusNotFound, f.do(bayo, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(bayo, http.MethodPatch, path, `{"name": "Mine"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(caller, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(caller, http.MethodGet, "/shops/my-shops/", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(admin, http.MethodGet, "/shops/nope/", "").Code)

	rec = f.do(admin, http.MethodGet, "/shops/export/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(rec.Body.Bytes(), []byte("\ufeff")))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, mappers.ShopExportHeader, rows[0])

	rec = f.do(admin, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(admin, http.MethodGet, path, "").Code)
	_, err = os.Stat(filepath.Join(f.media, filepath.FromSlash(strings.TrimPrefix(shop.Photos[0].Photo, "/media/"))))
	assert.True(t, os.IsNotExist(err))

	logs := f.logs(shop.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionDelete, logs[0].ActionType)
	assert.Equal(t, "Ada Stores", logs[0].ShopName)
}
