// Package db provides the run ledger for meeting-optimizer, stored in LadybugDB.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lbug "github.com/LadybugDB/go-ladybug"
)

// Record represents a single result row from a query.
type Record map[string]any

// Store wraps LadybugDB for ledger operations.
type Store struct {
	db       *lbug.Database
	conn     *lbug.Connection
	path     string
	readOnly bool
	logger   *slog.Logger
}

// Config holds database configuration options.
type Config struct {
	// Path is the filesystem path to the database.
	Path string

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// AutoRecover attempts to recover from WAL corruption.
	AutoRecover bool

	// Logger for database operations.
	Logger *slog.Logger
}

// Open opens or creates the ledger database.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure parent directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	sysCfg := lbug.DefaultSystemConfig()
	sysCfg.ReadOnly = cfg.ReadOnly

	db, err := lbug.OpenDatabase(cfg.Path, sysCfg)
	if err != nil {
		if !cfg.AutoRecover {
			return nil, fmt.Errorf("open database: %w", err)
		}
		logger.Warn("database open failed, attempting recovery", "error", err)
		if recoverErr := removeWALFiles(cfg.Path); recoverErr != nil {
			logger.Warn("WAL removal failed", "error", recoverErr)
		}
		db, err = lbug.OpenDatabase(cfg.Path, sysCfg)
		if err != nil {
			return nil, fmt.Errorf("open database after recovery: %w", err)
		}
		logger.Info("database recovery successful")
	}

	conn, err := lbug.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open connection: %w", err)
	}

	s := &Store{
		db:       db,
		conn:     conn,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
		logger:   logger,
	}

	if !cfg.ReadOnly {
		s.initSchema()
	}

	return s, nil
}

// removeWALFiles removes WAL files for recovery.
func removeWALFiles(dbPath string) error {
	walPath := dbPath + ".wal"
	if _, err := os.Stat(walPath); err == nil {
		if err := os.Remove(walPath); err != nil {
			return fmt.Errorf("remove WAL file: %w", err)
		}
	}
	return nil
}

// initSchema creates the ledger tables.
func (s *Store) initSchema() {
	schemas := []string{
		`CREATE NODE TABLE IF NOT EXISTS Run(
			id STRING,
			day STRING,
			started_at STRING,
			finished_at STRING,
			dry_run BOOL,
			status STRING,
			events INT64,
			failures INT64,
			PRIMARY KEY(id)
		)`,
		`CREATE NODE TABLE IF NOT EXISTS Decision(
			id STRING,
			seq INT64,
			event_id STRING,
			summary STRING,
			reason STRING,
			action STRING,
			document_id STRING,
			error STRING,
			PRIMARY KEY(id)
		)`,
		`CREATE REL TABLE IF NOT EXISTS RECORDED(FROM Run TO Decision)`,
	}

	for _, schema := range schemas {
		if _, err := s.conn.Query(schema); err != nil {
			// Ignore "already exists" errors
			s.logger.Debug("schema statement", "query", schema, "error", err)
		}
	}
}

// Execute runs a Cypher query and returns all results.
func (s *Store) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	var result *lbug.QueryResult
	var err error

	if len(params) > 0 {
		stmt, prepErr := s.conn.Prepare(query)
		if prepErr != nil {
			return nil, fmt.Errorf("prepare query: %w", prepErr)
		}
		defer stmt.Close()

		result, err = s.conn.Execute(stmt, params)
	} else {
		result, err = s.conn.Query(query)
	}

	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer result.Close()

	records := make([]Record, 0)
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("fetch row: %w", err)
		}

		row, err := tuple.GetAsMap()
		if err != nil {
			return nil, fmt.Errorf("convert row: %w", err)
		}

		records = append(records, Record(row))
	}

	return records, nil
}

// ExecuteWrite runs a Cypher query that modifies data.
func (s *Store) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	_, err := s.Execute(ctx, query, params)
	return err
}

// Ping runs a trivial query to confirm the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Execute(ctx, `MATCH (r:Run) RETURN count(r) AS runs`, nil)
	return err
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (r Record) str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r Record) int(key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (r Record) bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}
