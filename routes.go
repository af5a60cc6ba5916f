package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/accounts"
	"taja/activity"
	"taja/auth"
	"taja/config"
	"taja/dashboard"
	"taja/geocode"
	"taja/loader"
	"taja/metrics"
	"taja/model"
	"taja/photostore"
	"taja/render"
	"taja/shops"
)

// App holds what the HTTP handlers share.
type App struct {
	DB       *sqlx.DB
	Config   config.Config
	Issuer   *auth.Issuer
	Photos   photostore.Store
	Geocoder geocode.Geocoder
	// GeocodeCache is the cache backend behind Geocoder, "redis" or "memory".
	GeocodeCache string
}

func (a App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(corsHandler(a.Config.CORSAllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			render.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	if a.Config.PhotoBackend == config.PhotoBackendLocal {
		prefix := strings.TrimSuffix(a.Config.MediaURL, "/")
		if strings.HasPrefix(prefix, "/") {
			r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(a.Config.MediaRoot))))
		}
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login/", auth.LoginHandler(a.DB, a.Issuer))
		api.Post("/auth/refresh/", auth.RefreshHandler(a.DB, a.Issuer))

		api.Group(func(authed chi.Router) {
			authed.Use(auth.Authenticate(a.DB, a.Issuer))
			a.accountRoutes(authed)
			a.shopRoutes(authed)
			authed.Get("/geocode/reverse/", geocode.ReverseHandler(a.Geocoder))

			authed.Group(func(staff chi.Router) {
				staff.Use(auth.RequireStaff())
				staff.Post("/admin/import/agents/", loader.ImportAgentsHandler(a.DB))
				staff.Post("/admin/import/shops/", loader.ImportShopsHandler(a.DB))
				staff.Get("/admin/config/", GetConfigHandler(a.GeocodeCache))
			})
		})
	})
	return r
}

func (a App) accountRoutes(r chi.Router) {
	r.Get("/accounts/me/", accounts.MeHandler(a.DB))
	r.Patch("/accounts/me/", accounts.UpdateMeHandler(a.DB))

	r.Group(func(staff chi.Router) {
		staff.Use(auth.RequireStaff())
		staff.Get("/accounts/agents/", accounts.ListAgentsHandler(a.DB))
		staff.Post("/accounts/agents/", accounts.CreateAgentHandler(a.DB))
		staff.Get("/accounts/agents/{agent_id}/", accounts.GetAgentHandler(a.DB))
		staff.Patch("/accounts/agents/{agent_id}/", accounts.UpdateAgentHandler(a.DB))
		staff.Get("/accounts/users/", accounts.ListUsersHandler(a.DB))
		staff.Post("/accounts/users/", accounts.CreateUserHandler(a.DB))
	})
}

func (a App) shopRoutes(r chi.Router) {
	d := shops.Deps{
		DB:            a.DB,
		Photos:        a.Photos,
		Geocoder:      a.Geocoder,
		MaxPhotoBytes: a.Config.MaxPhotoBytes,
	}

	r.Route("/shops", func(s chi.Router) {
		s.Get("/", shops.ListHandler(d))
		s.With(auth.RequireRoles(model.RoleAgent)).Post("/", shops.CreateHandler(d))

		s.Get("/my-shops/", shops.MyShopsHandler(d))
		s.Get("/logs/", activity.ListLogsHandler(a.DB))
		s.Get("/stats/", dashboard.StatsHandler(a.DB))
		s.With(auth.RequireStaff()).Get("/export/", shops.ExportHandler(d))

		s.Get("/{id}/", shops.GetHandler(d))
		s.Patch("/{id}/", shops.UpdateHandler(d))
		s.With(auth.RequireStaff()).Delete("/{id}/", shops.DeleteHandler(d))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	opts := cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	// An empty list would allow every origin.
	if len(allowed) == 0 {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.Handler(opts)
}
