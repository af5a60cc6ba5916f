package shops

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"taja/model"
	"taja/render"
)

const dateLayout = "2006-01-02"

// scopeFor limits shop queries to what u may see. ok is false for roles
// with no shop access.
func scopeFor(u model.User) (f model.ShopFilters, ok bool) {
	switch {
	case u.Role.IsStaff():
	case u.Role == model.RoleAgent:
		id := u.ID
		f.CreatedBy = &id
	case u.Role == model.RoleStoreOwner:
		id := u.ID
		f.OwnerID = &id
	case u.Role == model.RoleCallCenter, u.Role == model.RoleDeliveryPerson:
		f.VerifiedActiveOnly = true
	default:
		return f, false
	}
	return f, true
}

// ownScopeFor is the "my shops" scope: captured shops for agents, owned
// shops for store owners.
func ownScopeFor(u model.User) (f model.ShopFilters, ok bool) {
	id := u.ID
	switch u.Role {
	case model.RoleAgent:
		f.CreatedBy = &id
	case model.RoleStoreOwner:
		f.OwnerID = &id
	default:
		return f, false
	}
	return f, true
}

func canView(u model.User, s model.Shop) bool {
	switch {
	case u.Role.IsStaff():
		return true
	case u.Role == model.RoleAgent:
		return s.CreatedBy != nil && *s.CreatedBy == u.ID
	case u.Role == model.RoleStoreOwner:
		return s.OwnerID != nil && *s.OwnerID == u.ID
	case u.Role == model.RoleCallCenter, u.Role == model.RoleDeliveryPerson:
		return s.IsActive && s.VerificationStatus == model.StatusVerified
	}
	return false
}

func canEdit(u model.User, s model.Shop) bool {
	if u.Role.IsStaff() {
		return true
	}
	return u.Role == model.RoleAgent && s.CreatedBy != nil && *s.CreatedBy == u.ID
}

// parseListFilters adds the query-string filters to the role scope f.
func parseListFilters(r *http.Request, f model.ShopFilters) (model.ShopFilters, render.ValidationErrors) {
	q := r.URL.Query()
	errs := render.ValidationErrors{}

	if v := q.Get("verification_status"); v != "" {
		vs := model.VerificationStatus(strings.ToUpper(v))
		if !vs.Valid() {
			errs.Add("verification_status", "Must be one of PENDING, VERIFIED, REJECTED.")
		} else {
			f.VerificationStatus = vs
		}
	}
	if v := q.Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs.Add("is_active", "Must be a valid boolean.")
		} else {
			f.IsActive = &b
		}
	}
	f.State = strings.TrimSpace(q.Get("state"))
	f.LocalGovernmentArea = strings.TrimSpace(q.Get("local_government_area"))
	f.AgentID = strings.TrimSpace(q.Get("agent_id"))
	f.Search = strings.TrimSpace(q.Get("search"))

	if v := q.Get("date_from"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			errs.Add("date_from", "Enter a date as YYYY-MM-DD.")
		} else {
			f.DateFrom = &d
		}
	}
	if v := q.Get("date_to"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			errs.Add("date_to", "Enter a date as YYYY-MM-DD.")
		} else {
			// inclusive of the whole day
			end := d.AddDate(0, 0, 1)
			f.DateTo = &end
		}
	}
	return f, errs
}
