package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// DB wraps the DuckDB connection that backs every component's
// system-of-record: tenants, hubs, devices, encoding records, compiled
// index artifacts, playlists and layouts, alerts, and notification log.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	jsonAvailable bool

	stmtCache   map[string]*sql.Stmt
	stmtCacheMu sync.RWMutex
}

// New opens the DuckDB file at cfg.Path, installs required extensions, and
// creates the schema if it does not already exist.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{
		conn:          conn,
		cfg:           cfg,
		jsonAvailable: true,
		stmtCache:     make(map[string]*sql.Stmt),
	}

	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(numThreads)

	if err := db.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

// Conn exposes the underlying *sql.DB for callers that need raw access,
// such as transaction-spanning multi-entity writes in the Compiler.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close flushes a checkpoint and releases the connection and any cached
// prepared statements.
func (db *DB) Close() error {
	db.stmtCacheMu.Lock()
	for _, stmt := range db.stmtCache {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	db.stmtCache = make(map[string]*sql.Stmt)
	db.stmtCacheMu.Unlock()

	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("checkpoint before close failed")
	}

	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// WithTx runs fn inside a transaction, committing on nil return and
// rolling back otherwise. Used by every operation that must update more
// than one table atomically (version acquisition, pairing verification,
// alert dispatch bookkeeping).
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Warn().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}
	if err := db.createIndexes(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("checkpoint after schema initialization failed")
	}
	return nil
}
