package activity

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"taja/auth"
	"taja/database"
	"taja/mappers"
	"taja/model"
	"taja/render"
)

// ListLogsHandler serves the change log. Staff see every entry, agents the
// entries for shops they captured or changes they made themselves.
func ListLogsHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())

		f, errs := parseLogFilters(r)
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}
		switch {
		case u.Role.IsStaff():
		case u.Role == model.RoleAgent:
			id := u.ID
			f.ShopCreatedBy = &id
		default:
			render.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
			return
		}

		logs, err := database.ListActivityLogs(r.Context(), conn, f)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, mappers.ToLogViews(logs))
	}
}

func parseLogFilters(r *http.Request) (model.LogFilters, render.ValidationErrors) {
	q := r.URL.Query()
	errs := render.ValidationErrors{}
	var f model.LogFilters

	if v := q.Get("shop_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs.Add("shop_id", "A valid integer is required.")
		} else {
			f.ShopID = &id
		}
	}
	if v := q.Get("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs.Add("actor_id", "A valid integer is required.")
		} else {
			f.ActorID = &id
		}
	}
	if v := q.Get("action_type"); v != "" {
		a := model.ActionType(strings.ToUpper(v))
		if !a.Valid() {
			errs.Add("action_type", "Must be one of CREATE, UPDATE, DELETE.")
		} else {
			f.ActionType = a
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs.Add("limit", "A positive integer is required.")
		} else {
			f.Limit = n
		}
	}
	return f, errs
}
