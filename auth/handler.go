package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/database"
	"taja/mappers"
	"taja/render"
)

const badCredentials = "No active account found with the given credentials."

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string           `json:"access"`
	Refresh string           `json:"refresh"`
	User    mappers.UserView `json:"user"`
}

// LoginHandler exchanges email and password for an access/refresh pair.
func LoginHandler(conn *sqlx.DB, iss *Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}
		errs := render.ValidationErrors{}
		if strings.TrimSpace(req.Email) == "" {
			errs.Add("email", "This field is required.")
		}
		if req.Password == "" {
			errs.Add("password", "This field is required.")
		}
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}

		u, err := database.GetUserByEmail(r.Context(), conn, req.Email)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				render.Error(w, badCredentials, http.StatusUnauthorized)
				return
			}
			render.ServerError(w, r, err)
			return
		}
		if !u.IsActive || !CheckPassword(u.PasswordHash, req.Password) {
			zap.S().Infof("failed login for %s", u.Email)
			render.Error(w, badCredentials, http.StatusUnauthorized)
			return
		}

		access, err := iss.Issue(u, AccessToken)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		refresh, err := iss.Issue(u, RefreshToken)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		if err := database.TouchLastLogin(r.Context(), conn, u.ID, time.Now()); err != nil {
			zap.S().Warnf("failed to record last login for user %d: %v", u.ID, err)
		}

		render.JSON(w, http.StatusOK, loginResponse{
			Access:  access,
			Refresh: refresh,
			User:    mappers.ToUserView(u),
		})
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshHandler exchanges a refresh token for a new access token.
func RefreshHandler(conn *sqlx.DB, iss *Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}
		if req.Refresh == "" {
			render.Invalid(w, render.ValidationErrors{"refresh": {"This field is required."}})
			return
		}
		claims, err := iss.Parse(req.Refresh, RefreshToken)
		if err != nil {
			render.Error(w, "Token is invalid or expired.", http.StatusUnauthorized)
			return
		}
		id, _ := claims.UserID()
		u, err := database.GetUserByID(r.Context(), conn, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				render.Error(w, "Token is invalid or expired.", http.StatusUnauthorized)
				return
			}
			render.ServerError(w, r, err)
			return
		}
		if !u.IsActive {
			render.Error(w, "User is inactive.", http.StatusUnauthorized)
			return
		}
		access, err := iss.Issue(u, AccessToken)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, map[string]string{"access": access})
	}
}
