package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rendiffdev/containerintegrity/internal/config"
)

// DB holds the database connection and configuration. Only SQLite is
// supported; the reference host is a single-node process and gains
// nothing from a client/server database.
type DB struct {
	SQLX   *sqlx.DB
	DB     *sqlx.DB // same handle as SQLX
	Config *config.Config
	Logger zerolog.Logger
}

// New opens the SQLite connection backing the inspection store.
func New(cfg *config.Config, logger zerolog.Logger) (*DB, error) {
	if cfg.DatabaseType != "sqlite" {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}

	if err := ensureDatabaseDir(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlxDB, err := sqlx.Connect("sqlite3", cfg.DatabasePath+"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite connection: %w", err)
	}

	// SQLite works best with a single writer connection.
	sqlxDB.SetMaxOpenConns(1)
	sqlxDB.SetMaxIdleConns(1)
	sqlxDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Str("path", cfg.DatabasePath).Msg("SQLite database connection established")

	return &DB{
		SQLX:   sqlxDB,
		DB:     sqlxDB,
		Config: cfg,
		Logger: logger,
	}, nil
}

// ensureDatabaseDir creates the directory for the SQLite database if it doesn't exist
func ensureDatabaseDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." {
		return nil // Current directory, no need to create
	}
	
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() {
	if db.SQLX != nil {
		db.SQLX.Close()
	}
	db.Logger.Info().Msg("Database connection closed")
}

// Health checks the database connection.
func (db *DB) Health(ctx context.Context) error {
	if err := db.SQLX.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlx health check failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (db *DB) Stats() map[string]interface{} {
	sqlxStats := db.SQLX.Stats()
	return map[string]interface{}{
		"database_type": db.Config.DatabaseType,
		"sqlx": map[string]interface{}{
			"max_open_connections": sqlxStats.MaxOpenConnections,
			"open_connections":     sqlxStats.OpenConnections,
			"in_use":               sqlxStats.InUse,
			"idle":                 sqlxStats.Idle,
		},
	}
}