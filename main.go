package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taja/accounts"
	"taja/auth"
	"taja/config"
	"taja/database"
	"taja/geocode"
	"taja/loader"
	"taja/model"
	"taja/photostore"
	"taja/render"
)

var (
	configPath string
	cfg        config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "taja",
	Short:         "Shop listing backend for field agents and store owners",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		if cfg.LogLevel == "debug" {
			zc = zap.NewDevelopmentConfig()
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()
		zap.S().Info("Database initialization complete.")
		return nil
	},
}

var (
	adminUsername string
	adminEmail    string
	adminPassword string
	adminRole     string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a staff login",
	RunE:  runCreateAdmin,
}

var importAgentsCmd = &cobra.Command{
	Use:   "import-agents <file.csv>",
	Short: "Import agent accounts from CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), "agents", args[0], loader.LoadAgentsCSV)
	},
}

var importShopsCmd = &cobra.Command{
	Use:   "import-shops <file.csv>",
	Short: "Import shops from CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), "shops", args[0], loader.LoadShopsCSV)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "login username")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "login password (falls back to TAJA_ADMIN_PASSWORD)")
	createAdminCmd.Flags().StringVar(&adminRole, "role", string(model.RoleAdmin), "admin or developer")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd, importAgentsCmd, importShopsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	zap.S().Infof("Connecting to %s database...", cfg.DBDriver)
	conn, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := loader.InitDatabase(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return conn, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.UsesInsecureSecret() {
		zap.S().Warn("Using the built-in JWT secret. Set TAJA_JWT_SECRET before exposing this server.")
	}
	if cfg.OpenCageAPIKey == "" {
		zap.S().Warn("OpenCage API key is not set; shops will not be reverse geocoded.")
	}

	photos, err := photostore.New(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := photos.(io.Closer); ok {
		defer c.Close()
	}

	cache, closeCache := newGeocodeCache(ctx)
	defer closeCache()

	app := App{
		DB:           conn,
		Config:       cfg,
		Issuer:       auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		Photos:       photos,
		Geocoder:     geocode.NewClient(cfg.OpenCageAPIKey, cfg.OpenCageURL, cache, cfg.GeocodeCacheTTL),
		GeocodeCache: cacheBackend(cache),
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zap.S().Infof("Server starting on http://%s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	zap.S().Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newGeocodeCache uses Redis when it is configured and reachable, and an
// in-process LRU otherwise.
func newGeocodeCache(ctx context.Context) (geocode.Cache, func()) {
	if cfg.RedisAddr == "" {
		return geocode.NewMemoryCache(cfg.GeocodeCacheMax, cfg.GeocodeCacheTTL), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zap.S().Warnf("Redis at %s unavailable (%v); caching geocodes in memory.", cfg.RedisAddr, err)
		client.Close()
		return geocode.NewMemoryCache(cfg.GeocodeCacheMax, cfg.GeocodeCacheTTL), func() {}
	}
	return geocode.NewRedisCache(client), func() { client.Close() }
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	role := model.Role(adminRole)
	if !role.IsStaff() {
		return fmt.Errorf("role must be %s or %s", model.RoleAdmin, model.RoleDeveloper)
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("TAJA_ADMIN_PASSWORD")
	}

	conn, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	f := accounts.NewUser{Username: adminUsername, Email: adminEmail, Password: adminPassword}
	f.Normalize()
	errs := render.ValidationErrors{}
	if err := f.Validate(ctx, conn, errs); err != nil {
		return err
	}
	if !errs.Empty() {
		return errs
	}
	u, err := accounts.CreateUser(ctx, conn, f, role)
	if err != nil {
		return err
	}
	zap.S().Infof("Created %s %s (id %d).", u.Role, u.Username, u.ID)
	return nil
}

func runImport(ctx context.Context, kind, path string, load func(context.Context, *sqlx.DB, string) (int, error)) error {
	conn, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := load(ctx, conn, path)
	if err != nil {
		return fmt.Errorf("import %s from %s: %w", kind, path, err)
	}
	zap.S().Infof("Imported %d %s from %s.", n, kind, path)
	return nil
}
