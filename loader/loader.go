package loader

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/activity"
	"taja/auth"
	"taja/database"
	"taja/mappers"
	"taja/model"
	"taja/parsers"
)

var (
	//go:embed schema_sqlite.sql
	sqliteSchema string
	//go:embed schema_postgres.sql
	postgresSchema string
)

// importActor is the actor name of shop entries with no capturing agent.
const importActor = "import"

// InitDatabase applies the schema for the connection's driver. Every
// statement is idempotent, so it runs on each start.
func InitDatabase(ctx context.Context, db *sqlx.DB) error {
	zap.S().Info("Applying database schema...")
	if err := applySchema(ctx, db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	zap.S().Info("Schema applied successfully.")
	return nil
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == "pgx" {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// LoadAgentsCSV imports agents from the file at path. See LoadAgents.
func LoadAgentsCSV(ctx context.Context, db *sqlx.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return LoadAgents(ctx, db, f)
}

// LoadAgents imports every agent row in one transaction. Rows whose email or
// username already exists are skipped; any other failure rolls the whole file back.
func LoadAgents(ctx context.Context, db *sqlx.DB, r io.Reader) (int, error) {
	records, err := parsers.ParseAgentCSV(r)
	if err != nil {
		return 0, err
	}

	created := 0
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			if len(rec.Password) > auth.MaxPasswordBytes {
				zap.S().Warnf("agent csv line %d: password longer than %d bytes (skipped)", rec.Line, auth.MaxPasswordBytes)
				continue
			}
			emailTaken, err := database.EmailTaken(ctx, tx, rec.Email, 0)
			if err != nil {
				return err
			}
			usernameTaken, err := database.UsernameTaken(ctx, tx, rec.Username)
			if err != nil {
				return err
			}
			if emailTaken || usernameTaken {
				zap.S().Warnf("agent csv line %d: %s already exists (skipped)", rec.Line, rec.Username)
				continue
			}

			u, p := mappers.MapImportedAgent(rec)
			if u.PasswordHash, err = auth.HashPassword(rec.Password); err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			if err := database.CreateAgentInTx(ctx, tx, &u, &p); err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			created++
		}
		return database.InitializeSequenceFromMaxAgentID(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	zap.S().Infof("Imported %d agents", created)
	return created, nil
}

// LoadShopsCSV imports shops from the file at path. See LoadShops.
func LoadShopsCSV(ctx context.Context, db *sqlx.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return LoadShops(ctx, db, f)
}

// LoadShops imports every shop row in one transaction and records a CREATE
// activity entry for each. agent_id links the shop to its capturing agent;
// unknown agent ids leave the shop unassigned. Rows breaking a shop field
// rule are skipped with a warning.
func LoadShops(ctx context.Context, db *sqlx.DB, r io.Reader) (int, error) {
	records, err := parsers.ParseShopCSV(r)
	if err != nil {
		return 0, err
	}

	agents, err := database.ListAgents(ctx, db, model.AgentFilters{})
	if err != nil {
		return 0, err
	}
	byAgentID := make(map[string]model.Agent, len(agents))
	for _, a := range agents {
		byAgentID[a.AgentID] = a
	}

	created := 0
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			s := mappers.MapImportedShop(rec)
			if err := s.Validate(); err != nil {
				zap.S().Warnf("shop csv line %d is invalid (skipped): %v", rec.Line, err)
				continue
			}

			actor := activity.Actor{Name: importActor}
			if rec.AgentID != "" {
				if a, ok := byAgentID[rec.AgentID]; ok {
					actor = activity.ActorFor(a.User)
					s.CreatedBy = actor.ID
				} else {
					zap.S().Warnf("shop csv line %d: unknown agent %s (left unassigned)", rec.Line, rec.AgentID)
				}
			}

			if err := database.CreateShopInTx(ctx, tx, &s); err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			entry, err := activity.NewEntry(s, actor, model.ActionCreate, "Shop imported")
			if err != nil {
				return err
			}
			entry.Timestamp = s.DateCreated
			if err := database.InsertActivityLogInTx(ctx, tx, &entry); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	zap.S().Infof("Imported %d shops", created)
	return created, nil
}
