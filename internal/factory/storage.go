package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/config"
	storepkg "github.com/voxrelay/voxrelay/internal/store"
	storepg "github.com/voxrelay/voxrelay/internal/store/postgres"
	storelite "github.com/voxrelay/voxrelay/internal/store/sqlite"
)

// NewStore returns a store.Store for the configured driver. Postgres serves
// the cloud targets; sqlite serves the local target. Both Open paths apply
// the schema, so the store is usable immediately.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("CHAT_BACKEND_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := storepg.ApplyDDL(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Debug().Str("driver", cfg.DBDriver).Msg("store ready")
		return storepg.NewWithDB(db), nil
	case "sqlite":
		db, err := storelite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("driver", cfg.DBDriver).Str("path", cfg.SQLitePath).Msg("store ready")
		return storelite.NewWithDB(db), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
