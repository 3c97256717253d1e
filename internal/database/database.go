// Package database implements the record store for sources, atoms,
// synthesized atoms, posts and ingest jobs on top of libSQL.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// DBManager handles all database operations.
type DBManager struct {
	config *Config
	db     *sql.DB

	stmtMu    sync.RWMutex
	stmtCache map[string]*sql.Stmt
}

// NewDBManager opens the database and initializes the schema.
func NewDBManager(config *Config) (*DBManager, error) {
	url := config.URL
	if config.AuthToken != "" {
		url += "?authToken=" + config.AuthToken
	}

	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}

	manager := &DBManager{
		config:    config,
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
	}

	if err := manager.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return manager, nil
}

// initialize creates tables and indexes if they don't exist.
func (dm *DBManager) initialize() error {
	tx, err := dm.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for initialization: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range dynamicSchema(dm.config.EmbeddingDims) {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return tx.Commit()
}

// Config returns the active configuration.
func (dm *DBManager) Config() *Config { return dm.config }

// Handle exposes the underlying connection for sibling packages that share
// the same database (the vector store).
func (dm *DBManager) Handle() *sql.DB { return dm.db }

// PoolStats reports connection pool gauges.
func (dm *DBManager) PoolStats() (inUse, idle int) {
	s := dm.db.Stats()
	return s.InUse, s.Idle
}

// PreparedStmt returns or prepares and caches a statement.
func (dm *DBManager) PreparedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	dm.stmtMu.RLock()
	if stmt, ok := dm.stmtCache[sqlText]; ok {
		dm.stmtMu.RUnlock()
		return stmt, nil
	}
	dm.stmtMu.RUnlock()

	stmt, err := dm.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	dm.stmtMu.Lock()
	dm.stmtCache[sqlText] = stmt
	dm.stmtMu.Unlock()
	return stmt, nil
}

// Close closes the database connection and any cached statements.
func (dm *DBManager) Close() error {
	dm.stmtMu.Lock()
	for _, stmt := range dm.stmtCache {
		_ = stmt.Close()
	}
	dm.stmtCache = make(map[string]*sql.Stmt)
	dm.stmtMu.Unlock()

	return dm.db.Close()
}

// marshalList serializes a JSON-array column, treating nil as the empty list.
func marshalList(v any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list column: %w", err)
	}
	return string(raw), nil
}

// unmarshalList deserializes a JSON-array column into out; empty text is a
// no-op so legacy rows with '' behave like '[]'.
func unmarshalList(raw string, out any) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// nullString converts an optional column value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// pageBounds normalizes limit/page inputs and computes total pages.
func pageBounds(limit, page int, total int64) (l, p, offset, totalPages int) {
	l = limit
	if l <= 0 {
		l = 10
	}
	p = page
	if p <= 0 {
		p = 1
	}
	offset = (p - 1) * l
	totalPages = int((total + int64(l) - 1) / int64(l))
	return l, p, offset, totalPages
}

func now() time.Time { return time.Now().UTC() }
