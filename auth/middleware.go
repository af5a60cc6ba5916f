package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/database"
	"taja/model"
	"taja/render"
)

type ctxKey struct{}

func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user stored by Authenticate.
func UserFromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(model.User)
	return u, ok
}

// Authenticate requires a bearer access token and reloads its user on every
// request, so deactivation and role changes apply to tokens already issued.
func Authenticate(conn *sqlx.DB, iss *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				render.Error(w, "Authentication credentials were not provided.", http.StatusUnauthorized)
				return
			}
			claims, err := iss.Parse(raw, AccessToken)
			if err != nil {
				zap.S().Debugf("rejected token: %v", err)
				render.Error(w, "Given token not valid for any token type.", http.StatusUnauthorized)
				return
			}
			id, _ := claims.UserID()
			u, err := database.GetUserByID(r.Context(), conn, id)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					render.Error(w, "User not found.", http.StatusUnauthorized)
					return
				}
				render.ServerError(w, r, err)
				return
			}
			if !u.IsActive {
				render.Error(w, "User is inactive.", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireRoles answers 403 unless the authenticated user has one of roles.
func RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				render.Error(w, "Authentication credentials were not provided.", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			render.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
		})
	}
}

// RequireStaff is RequireRoles for admins and developers.
func RequireStaff() func(http.Handler) http.Handler {
	return RequireRoles(model.RoleAdmin, model.RoleDeveloper)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
