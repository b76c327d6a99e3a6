package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/masakoww/jambistore-app-sub000/configs"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo"
)

// OpenStore connects to the configured database and optionally migrates it.
func OpenStore(ctx context.Context, cfg configs.Config) (*repo.Store, error) {
	db, err := sql.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Store.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Store.ConnMaxLifetime)
	}
	if cfg.Store.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	}
	if cfg.Store.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	}

	pctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Store.Driver, err)
	}

	store := repo.NewStore(db, cfg.Store.Driver)
	if cfg.Store.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}
