package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wikiadm/config"
	"wikiadm/core/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// NewDB opens the configured database. A non-empty DBPath always selects
// the embedded sqlite driver, which is what tests use.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if strings.TrimSpace(cfg.DBPath) != "" {
		driver = "sqlite"
	}
	var db *sql.DB
	var err error
	switch driver {
	case "sqlite":
		dsn := cfg.DBPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// modernc sqlite serializes writes; a single connection avoids
			// SQLITE_BUSY under concurrent handlers.
			db.SetMaxOpenConns(1)
		}
	case "postgres", "pgx":
		db, err = sql.Open("pgx", cfg.DBURL)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Printf("db ready driver=%s", driver)
	}
	return db, nil
}
