package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ideasync/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured under dbType.
func Open(ctx context.Context, dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the directory tables are present.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS session_snapshots (
				session_id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				created_by TEXT NOT NULL,
				status TEXT NOT NULL,
				payload TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_members (
				session_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				joined_at INTEGER NOT NULL,
				PRIMARY KEY (session_id, user_id),
				FOREIGN KEY(session_id) REFERENCES session_snapshots(session_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_session_members_user ON session_members(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_session_snapshots_updated_at ON session_snapshots(updated_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS session_snapshots (
				session_id VARCHAR(64) NOT NULL,
				title VARCHAR(255) NOT NULL,
				created_by VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL,
				payload MEDIUMTEXT NOT NULL,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (session_id),
				INDEX idx_session_snapshots_updated_at (updated_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS session_members (
				session_id VARCHAR(64) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				joined_at BIGINT NOT NULL,
				PRIMARY KEY (session_id, user_id),
				INDEX idx_session_members_user (user_id),
				CONSTRAINT fk_session_members_snapshot FOREIGN KEY (session_id) REFERENCES session_snapshots(session_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
