package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"

	"wikiadm/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var gooseMigrations embed.FS

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		real_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		email_authenticated_at TIMESTAMP,
		password_hash TEXT NOT NULL DEFAULT '',
		salt TEXT NOT NULL DEFAULT '',
		require_password_change INTEGER NOT NULL DEFAULT 0,
		edit_count INTEGER NOT NULL DEFAULT 0,
		last_edit_at TIMESTAMP,
		active INTEGER NOT NULL DEFAULT 1,
		registered_at TIMESTAMP NOT NULL,
		touched_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role),
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS groups (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS user_groups (
		user_id INTEGER NOT NULL,
		group_name TEXT NOT NULL,
		PRIMARY KEY (user_id, group_name),
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(group_name) REFERENCES groups(name) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS change_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		target_id INTEGER NOT NULL DEFAULT 0,
		target_name TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		roles TEXT NOT NULL,
		csrf_token TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS pages (
		title TEXT PRIMARY KEY
	);`,
	`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_target ON change_log(target_name, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_actor ON change_log(actor, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_created ON change_log(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return err
	}
	if !isPG {
		if !isTestRuntime() {
			return fmt.Errorf("only postgres is supported outside go test runtime")
		}
		return applySQLiteTestMigrations(ctx, db, logger)
	}
	return applyGooseMigrations(ctx, db, logger)
}

func applySQLiteTestMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite test migrations")
	}
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite test migrations applied")
	}
	return nil
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(gooseMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("applying goose migrations")
	}
	return goose.UpContext(ctx, db, "migrations")
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		// sqlite has no version() builtin with that signature through
		// some drivers; treat a failed probe as non-postgres.
		var sqliteVersion string
		if err2 := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&sqliteVersion); err2 == nil {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(version, "PostgreSQL"), nil
}

func isTestRuntime() bool {
	if os.Getenv("WIKIADM_ALLOW_SQLITE") == "1" {
		return true
	}
	return strings.HasSuffix(os.Args[0], ".test") || strings.Contains(os.Args[0], "/_test/")
}
