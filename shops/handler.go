package shops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/activity"
	"taja/auth"
	"taja/database"
	"taja/geocode"
	"taja/mappers"
	"taja/metrics"
	"taja/model"
	"taja/photostore"
	"taja/render"
)

// Deps are the collaborators shared by the shop handlers.
type Deps struct {
	DB            *sqlx.DB
	Photos        photostore.Store
	Geocoder      geocode.Geocoder
	MaxPhotoBytes int64
}

// ListHandler returns the shops visible to the caller, newest first.
func ListHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		scope, ok := scopeFor(u)
		if !ok {
			render.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
			return
		}
		d.serveList(w, r, scope)
	}
}

// MyShopsHandler returns the shops an agent captured or a store owner owns.
func MyShopsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		scope, ok := ownScopeFor(u)
		if !ok {
			render.Error(w, "Only agents and store owners have their own shops.", http.StatusForbidden)
			return
		}
		d.serveList(w, r, scope)
	}
}

func (d Deps) serveList(w http.ResponseWriter, r *http.Request, scope model.ShopFilters) {
	f, errs := parseListFilters(r, scope)
	if !errs.Empty() {
		render.Invalid(w, errs)
		return
	}
	views, err := d.listViews(r.Context(), f)
	if err != nil {
		render.ServerError(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, views)
}

// ExportHandler writes the filtered shop list as CSV.
func ExportHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, errs := parseListFilters(r, model.ShopFilters{})
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}
		views, err := d.listViews(r.Context(), f)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		rows := make([][]string, 0, len(views))
		for _, v := range views {
			rows = append(rows, mappers.MapShopToExportRow(v))
		}
		filename := fmt.Sprintf("shops_%s.csv", time.Now().UTC().Format("20060102"))
		render.CSV(w, filename, mappers.ShopExportHeader, rows)
	}
}

// GetHandler returns one shop. Shops outside the caller's scope are reported
// as missing.
func GetHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		rec, ok := d.loadShop(w, r)
		if !ok {
			return
		}
		if !canView(u, rec.Shop) {
			render.Error(w, "Not found.", http.StatusNotFound)
			return
		}
		d.serveShop(w, r, rec.ID, http.StatusOK)
	}
}

// CreateHandler captures a new shop for the calling agent.
func CreateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		u, _ := auth.UserFromContext(ctx)

		fields, files, err := readRequestFields(w, r)
		if err != nil {
			render.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in, errs := parseShopInput(fields, files, d.MaxPhotoBytes, true)
		if in.staffOnlyFieldsSent() {
			render.Error(w, "Only admins may set verification status, rejection reason or owner.", http.StatusForbidden)
			return
		}
		if !errs.Empty() {
			zap.S().Infof("shop create by %s rejected: %v", u.Username, errs)
			render.Invalid(w, errs)
			return
		}

		creator := u.ID
		s := model.Shop{
			CreatedBy:          &creator,
			IsActive:           true,
			VerificationStatus: model.StatusPending,
		}
		in.apply(&s)
		d.fillLocation(ctx, &s, false)

		var stored []string
		err = database.WithTx(ctx, d.DB, func(tx *sqlx.Tx) error {
			if err := database.CreateShopInTx(ctx, tx, &s); err != nil {
				return err
			}
			if _, err := d.addPhotosInTx(ctx, tx, s.ID, in.Uploads, &stored); err != nil {
				return err
			}
			return activity.RecordInTx(ctx, tx, s, activity.ActorFor(u), model.ActionCreate, "Shop created")
		})
		if err != nil {
			d.discard(ctx, stored)
			render.ServerError(w, r, err)
			return
		}
		metrics.ShopEvent(string(model.ActionCreate))
		zap.S().Infof("shop %d created by %s", s.ID, u.Username)
		d.serveShop(w, r, s.ID, http.StatusCreated)
	}
}

// UpdateHandler applies a partial update. Agents may edit the shops they
// captured; verification fields and the owner are reserved to staff.
func UpdateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		u, _ := auth.UserFromContext(ctx)

		rec, ok := d.loadShop(w, r)
		if !ok {
			return
		}
		if !canView(u, rec.Shop) {
			render.Error(w, "Not found.", http.StatusNotFound)
			return
		}
		if !canEdit(u, rec.Shop) {
			render.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
			return
		}

		fields, files, err := readRequestFields(w, r)
		if err != nil {
			render.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in, errs := parseShopInput(fields, files, d.MaxPhotoBytes, false)
		staff := u.Role.IsStaff()
		if in.staffOnlyFieldsSent() && !staff {
			render.Error(w, "Only admins may set verification status, rejection reason or owner.", http.StatusForbidden)
			return
		}
		if err := d.checkOwner(ctx, in, errs); err != nil {
			render.ServerError(w, r, err)
			return
		}

		before := rec.Shop
		after := before
		in.apply(&after)

		if !staff && before.VerificationStatus == model.StatusRejected {
			after.VerificationStatus = model.StatusPending
			after.RejectionReason = ""
		}
		if after.VerificationStatus == model.StatusRejected {
			after.RejectionReason = strings.TrimSpace(after.RejectionReason)
			if after.RejectionReason == "" {
				errs.Add("rejection_reason", "A rejection reason is required when rejecting a shop.")
			}
		} else {
			after.RejectionReason = ""
		}
		if !errs.Empty() {
			zap.S().Infof("shop %d update by %s rejected: %v", before.ID, u.Username, errs)
			render.Invalid(w, errs)
			return
		}

		if in.CoordinatesSent && !sameCoordinates(before, after) && in.State == nil && in.LocalGovernmentArea == nil {
			d.fillLocation(ctx, &after, true)
		}

		existing, err := database.ListShopPhotos(ctx, d.DB, before.ID)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}

		changes := activity.DiffShops(before, after)
		var stored []string
		var removed []model.ShopPhoto
		err = database.WithTx(ctx, d.DB, func(tx *sqlx.Tx) error {
			rowChanged := len(changes) > 0
			if rowChanged {
				if err := database.UpdateShopInTx(ctx, tx, &after); err != nil {
					return err
				}
			}
			var err error
			if len(in.PhotosToDelete) > 0 {
				if removed, err = database.DeleteShopPhotosInTx(ctx, tx, before.ID, in.PhotosToDelete); err != nil {
					return err
				}
			}
			added, err := d.addPhotosInTx(ctx, tx, before.ID, in.Uploads, &stored)
			if err != nil {
				return err
			}

			changes.Photos(photoIDs(existing), remainingPhotoIDs(existing, removed, added))
			if len(changes) == 0 {
				return nil
			}
			if !rowChanged {
				if err := database.TouchShopInTx(ctx, tx, before.ID); err != nil {
					return err
				}
			}
			return activity.RecordInTx(ctx, tx, after, activity.ActorFor(u), model.ActionUpdate, changes)
		})
		if err != nil {
			d.discard(ctx, stored)
			render.ServerError(w, r, err)
			return
		}
		d.discard(ctx, photoKeys(removed))
		if len(changes) > 0 {
			metrics.ShopEvent(string(model.ActionUpdate))
			zap.S().Infof("shop %d updated by %s: %d field(s)", before.ID, u.Username, len(changes))
		}
		d.serveShop(w, r, before.ID, http.StatusOK)
	}
}

// DeleteHandler removes a shop, its photos and their blobs. The log entry
// keeps the shop's id and name.
func DeleteHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		u, _ := auth.UserFromContext(ctx)

		rec, ok := d.loadShop(w, r)
		if !ok {
			return
		}
		photos, err := database.ListShopPhotos(ctx, d.DB, rec.ID)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		err = database.WithTx(ctx, d.DB, func(tx *sqlx.Tx) error {
			if err := database.DeleteShopInTx(ctx, tx, rec.ID); err != nil {
				return err
			}
			return activity.RecordInTx(ctx, tx, rec.Shop, activity.ActorFor(u), model.ActionDelete, "Shop deleted")
		})
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		d.discard(ctx, photoKeys(photos))
		metrics.ShopEvent(string(model.ActionDelete))
		zap.S().Infof("shop %d (%s) deleted by %s", rec.ID, rec.Name, u.Username)
		render.JSON(w, http.StatusNoContent, nil)
	}
}

func (d Deps) loadShop(w http.ResponseWriter, r *http.Request) (model.ShopRecord, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Error(w, "Not found.", http.StatusNotFound)
		return model.ShopRecord{}, false
	}
	rec, err := database.GetShop(r.Context(), d.DB, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			render.Error(w, "Not found.", http.StatusNotFound)
		} else {
			render.ServerError(w, r, err)
		}
		return model.ShopRecord{}, false
	}
	return rec, true
}

func (d Deps) serveShop(w http.ResponseWriter, r *http.Request, id int64, status int) {
	rec, err := database.GetShop(r.Context(), d.DB, id)
	if err != nil {
		render.ServerError(w, r, err)
		return
	}
	photos, err := database.ListShopPhotos(r.Context(), d.DB, id)
	if err != nil {
		render.ServerError(w, r, err)
		return
	}
	render.JSON(w, status, mappers.ToShopView(rec, photos, d.Photos.URL))
}

func (d Deps) listViews(ctx context.Context, f model.ShopFilters) ([]mappers.ShopView, error) {
	shops, err := database.ListShops(ctx, d.DB, f)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(shops))
	for i, s := range shops {
		ids[i] = s.ID
	}
	photos, err := database.ListPhotosForShops(ctx, d.DB, ids)
	if err != nil {
		return nil, err
	}
	return mappers.ToShopViews(shops, photos, d.Photos.URL), nil
}

// checkOwner requires an assigned owner to be an existing store owner.
func (d Deps) checkOwner(ctx context.Context, in shopInput, errs render.ValidationErrors) error {
	if in.OwnerID == nil {
		return nil
	}
	owner, err := database.GetUserByID(ctx, d.DB, *in.OwnerID)
	if errors.Is(err, database.ErrNotFound) {
		errs.Add("owner", "User does not exist.")
		return nil
	}
	if err != nil {
		return err
	}
	if owner.Role != model.RoleStoreOwner {
		errs.Add("owner", "User is not a store owner.")
	}
	return nil
}

// fillLocation reverse geocodes the shop's coordinates. With overwrite it
// replaces state and LGA, otherwise it only fills them when one is empty.
// Failed lookups leave the shop unchanged.
func (d Deps) fillLocation(ctx context.Context, s *model.Shop, overwrite bool) {
	if d.Geocoder == nil || s.Latitude == nil || s.Longitude == nil {
		return
	}
	if !overwrite && s.State != "" && s.LocalGovernmentArea != "" {
		return
	}
	loc := d.Geocoder.Lookup(ctx, *s.Latitude, *s.Longitude)
	if loc.IsSentinel() || loc.IsEmpty() {
		zap.S().Warnf("reverse geocoding %.6f,%.6f gave no location (%q)", *s.Latitude, *s.Longitude, loc.State)
		return
	}
	if overwrite || s.State == "" {
		s.State = loc.State
	}
	if overwrite || s.LocalGovernmentArea == "" {
		s.LocalGovernmentArea = loc.LocalGovernmentArea
	}
}

// addPhotosInTx stores each upload and records it. Keys of stored blobs are
// appended to stored so the caller can discard them if the transaction fails.
func (d Deps) addPhotosInTx(ctx context.Context, tx *sqlx.Tx, shopID int64, uploads []photostore.Photo, stored *[]string) ([]model.ShopPhoto, error) {
	added := make([]model.ShopPhoto, 0, len(uploads))
	for _, p := range uploads {
		key, err := photostore.PutPhoto(ctx, d.Photos, shopID, p)
		if err != nil {
			return nil, err
		}
		*stored = append(*stored, key)
		photo := model.ShopPhoto{ShopID: shopID, ObjectKey: key, ContentType: p.ContentType, SizeBytes: p.Size()}
		if err := database.AddShopPhotoInTx(ctx, tx, &photo); err != nil {
			return nil, err
		}
		added = append(added, photo)
	}
	return added, nil
}

func (d Deps) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := d.Photos.Delete(ctx, key); err != nil {
			zap.S().Warnf("failed to delete photo blob %s: %v", key, err)
		}
	}
}

func sameCoordinates(a, b model.Shop) bool {
	eq := func(x, y *float64) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}
	return eq(a.Latitude, b.Latitude) && eq(a.Longitude, b.Longitude)
}

func photoIDs(photos []model.ShopPhoto) []int64 {
	ids := make([]int64, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	return ids
}

func remainingPhotoIDs(existing, removed, added []model.ShopPhoto) []int64 {
	gone := make(map[int64]bool, len(removed))
	for _, p := range removed {
		gone[p.ID] = true
	}
	var ids []int64
	for _, p := range existing {
		if !gone[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return append(ids, photoIDs(added)...)
}

func photoKeys(photos []model.ShopPhoto) []string {
	keys := make([]string, len(photos))
	for i, p := range photos {
		keys[i] = p.ObjectKey
	}
	return keys
}
