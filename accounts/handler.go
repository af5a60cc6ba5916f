package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/auth"
	"taja/database"
	"taja/mappers"
	"taja/model"
	"taja/render"
)

type agentCreateRequest struct {
	NewUser
	PhoneNumber    string `json:"phone_number"`
	Address        string `json:"address"`
	AssignedRegion string `json:"assigned_region"`
}

type userPatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

type agentPatch struct {
	PhoneNumber    *string    `json:"phone_number"`
	Address        *string    `json:"address"`
	AssignedRegion *string    `json:"assigned_region"`
	IsActive       *bool      `json:"is_active"`
	User           *userPatch `json:"user"`
}

// mePatch is what users may change about themselves. Profile fields only
// apply to agents.
type mePatch struct {
	userPatch
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
}

// ListAgentsHandler lists agent profiles, filtered by search, is_active and
// assigned_region.
func ListAgentsHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := model.AgentFilters{
			Search:         q.Get("search"),
			AssignedRegion: strings.TrimSpace(q.Get("assigned_region")),
		}
		if v := q.Get("is_active"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				render.Invalid(w, render.ValidationErrors{"is_active": {"Must be a valid boolean."}})
				return
			}
			f.IsActive = &b
		}
		agents, err := database.ListAgents(r.Context(), conn, f)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, mappers.ToAgentViews(agents))
	}
}

// CreateAgentHandler creates an agent login and profile together.
func CreateAgentHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req agentCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}
		req.Normalize()

		errs := render.ValidationErrors{}
		if err := req.Validate(ctx, conn, errs); err != nil {
			render.ServerError(w, r, err)
			return
		}
		if !errs.Empty() {
			zap.S().Infof("agent create rejected for %q: %v", req.Username, errs)
			render.Invalid(w, errs)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		u := model.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			IsActive:     true,
		}
		p := model.AgentProfile{
			PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
			Address:        strings.TrimSpace(req.Address),
			AssignedRegion: strings.TrimSpace(req.AssignedRegion),
			IsActive:       true,
		}
		err = database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
			return database.CreateAgentInTx(ctx, tx, &u, &p)
		})
		if errors.Is(err, database.ErrConflict) {
			render.Invalid(w, render.ValidationErrors{"detail": {"A user with that username or email already exists."}})
			return
		}
		if err != nil {
			render.ServerError(w, r, err)
			return
		}

		agent, err := database.GetAgentByUserID(ctx, conn, u.ID)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		zap.S().Infof("agent %s created for %s", agent.AgentID, agent.User.Username)
		render.JSON(w, http.StatusCreated, mappers.ToAgentView(agent))
	}
}

func GetAgentHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := loadAgent(w, r, conn)
		if !ok {
			return
		}
		render.JSON(w, http.StatusOK, mappers.ToAgentView(agent))
	}
}

// UpdateAgentHandler partially updates a profile and its nested user.
// agent_id and role cannot be changed; deactivating the profile also
// deactivates the login.
func UpdateAgentHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		agent, ok := loadAgent(w, r, conn)
		if !ok {
			return
		}
		var patch agentPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}

		errs := render.ValidationErrors{}
		u := agent.User
		p := agent.AgentProfile
		setString(&p.PhoneNumber, patch.PhoneNumber)
		setString(&p.Address, patch.Address)
		setString(&p.AssignedRegion, patch.AssignedRegion)
		if patch.IsActive != nil {
			p.IsActive = *patch.IsActive
			u.IsActive = *patch.IsActive
		}
		if patch.User != nil {
			if err := applyUserPatch(r, conn, &u, *patch.User, errs); err != nil {
				render.ServerError(w, r, err)
				return
			}
		}
		if !errs.Empty() {
			payload, _ := json.Marshal(patch)
			zap.S().Warnf("agent %s update rejected: %v (payload %s)", agent.AgentID, errs, payload)
			render.Invalid(w, errs)
			return
		}

		err := database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
			if err := database.UpdateAgentProfileInTx(ctx, tx, &p); err != nil {
				return err
			}
			return database.UpdateUserInTx(ctx, tx, u)
		})
		if errors.Is(err, database.ErrConflict) {
			render.Invalid(w, render.ValidationErrors{"email": {"A user with that email already exists."}})
			return
		}
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		updated, err := database.GetAgentByUserID(ctx, conn, u.ID)
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, mappers.ToAgentView(updated))
	}
}

// MeHandler returns the caller: the profile view for agents, the user view
// for everyone else.
func MeHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		serveMe(w, r, conn, u)
	}
}

func UpdateMeHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		u, _ := auth.UserFromContext(ctx)

		var patch mePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}
		errs := render.ValidationErrors{}
		if err := applyUserPatch(r, conn, &u, patch.userPatch, errs); err != nil {
			render.ServerError(w, r, err)
			return
		}

		var profile *model.AgentProfile
		if u.Role == model.RoleAgent {
			agent, err := database.GetAgentByUserID(ctx, conn, u.ID)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				render.ServerError(w, r, err)
				return
			}
			if err == nil {
				p := agent.AgentProfile
				setString(&p.PhoneNumber, patch.PhoneNumber)
				setString(&p.Address, patch.Address)
				profile = &p
			}
		}
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}

		err := database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
			if err := database.UpdateUserInTx(ctx, tx, u); err != nil {
				return err
			}
			if profile != nil {
				return database.UpdateAgentProfileInTx(ctx, tx, profile)
			}
			return nil
		})
		if errors.Is(err, database.ErrConflict) {
			render.Invalid(w, render.ValidationErrors{"email": {"A user with that email already exists."}})
			return
		}
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		serveMe(w, r, conn, u)
	}
}

type userCreateRequest struct {
	NewUser
	Role model.Role `json:"role"`
}

// ListUsersHandler lists logins, optionally of one ?role=.
func ListUsersHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles := model.AllRoles
		if v := r.URL.Query().Get("role"); v != "" {
			role := model.Role(v)
			if !role.Valid() {
				render.Invalid(w, render.ValidationErrors{"role": {"Not a valid role."}})
				return
			}
			roles = []model.Role{role}
		}
		views := []mappers.UserView{}
		for _, role := range roles {
			users, err := database.ListUsersByRole(r.Context(), conn, role)
			if err != nil {
				render.ServerError(w, r, err)
				return
			}
			for _, u := range users {
				views = append(views, mappers.ToUserView(u))
			}
		}
		render.JSON(w, http.StatusOK, views)
	}
}

// CreateUserHandler creates a non-agent login such as a store owner or a
// call center operator. Agents are created with their profile instead.
func CreateUserHandler(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req userCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Error(w, "Malformed request body.", http.StatusBadRequest)
			return
		}
		req.Normalize()

		errs := render.ValidationErrors{}
		if err := req.Validate(ctx, conn, errs); err != nil {
			render.ServerError(w, r, err)
			return
		}
		switch {
		case !req.Role.Valid():
			errs.Add("role", "Not a valid role.")
		case req.Role == model.RoleAgent:
			errs.Add("role", "Create agents through the agents endpoint.")
		}
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}

		created, err := CreateUser(ctx, conn, req.NewUser, req.Role)
		if errors.Is(err, database.ErrConflict) {
			render.Invalid(w, render.ValidationErrors{"detail": {"A user with that username or email already exists."}})
			return
		}
		if err != nil {
			render.ServerError(w, r, err)
			return
		}
		zap.S().Infof("%s user %s created", created.Role, created.Username)
		render.JSON(w, http.StatusCreated, mappers.ToUserView(created))
	}
}

// CreateUser hashes the password and stores a new active login. f must
// already be validated.
func CreateUser(ctx context.Context, conn *sqlx.DB, f NewUser, role model.Role) (model.User, error) {
	hash, err := auth.HashPassword(f.Password)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		Username:     f.Username,
		Email:        f.Email,
		PasswordHash: hash,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		Role:         role,
		IsActive:     true,
	}
	err = database.WithTx(ctx, conn, func(tx *sqlx.Tx) error {
		return database.CreateUserInTx(ctx, tx, &u)
	})
	return u, err
}

func serveMe(w http.ResponseWriter, r *http.Request, conn *sqlx.DB, u model.User) {
	if u.Role == model.RoleAgent {
		agent, err := database.GetAgentByUserID(r.Context(), conn, u.ID)
		if err == nil {
			render.JSON(w, http.StatusOK, mappers.ToAgentView(agent))
			return
		}
		if !errors.Is(err, database.ErrNotFound) {
			render.ServerError(w, r, err)
			return
		}
	}
	fresh, err := database.GetUserByID(r.Context(), conn, u.ID)
	if err != nil {
		render.ServerError(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mappers.ToUserView(fresh))
}

func loadAgent(w http.ResponseWriter, r *http.Request, conn *sqlx.DB) (model.Agent, bool) {
	agent, err := database.GetAgentByAgentID(r.Context(), conn, chi.URLParam(r, "agent_id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			render.Error(w, "Not found.", http.StatusNotFound)
		} else {
			render.ServerError(w, r, err)
		}
		return model.Agent{}, false
	}
	return agent, true
}

func applyUserPatch(r *http.Request, conn *sqlx.DB, u *model.User, patch userPatch, errs render.ValidationErrors) error {
	if patch.FirstName != nil {
		u.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		u.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Email != nil {
		email := database.NormalizeEmail(*patch.Email)
		if err := validateEmailField(r.Context(), conn, email, u.ID, errs); err != nil {
			return err
		}
		u.Email = email
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
