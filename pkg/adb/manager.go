// Package adb simulates an Oracle Autonomous Database on top of an embedded
// SQL store and exposes it through the query, schema and transaction tools.
package adb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/iancoleman/orderedmap"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/internal/schema"
	"github.com/masato25/aika-adb/pkg/logger"
)

// Manager owns the database handle and the open session transactions.
type Manager struct {
	db              *sql.DB
	driver          string
	path            string
	maxQueryLength  int
	blockedKeywords []string
	logger          *logger.Logger
	reader          *schema.Reader

	mutex sync.Mutex
	txs   map[string]*sql.Tx
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Open connects to the configured database. For sqlite3 the parent directory,
// demo schema and seed rows are created as needed.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNop()
	}
	driver := cfg.Database.Type
	dsn := cfg.GetDatabaseDSN()
	if dsn == "" {
		return nil, fmt.Errorf("unsupported database type: %s", driver)
	}

	if driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m := &Manager{
		db:              db,
		driver:          driver,
		path:            cfg.Database.Path,
		maxQueryLength:  cfg.Security.MaxQueryLength,
		blockedKeywords: cfg.Security.BlockedKeywords,
		logger:          log.Named("adb"),
		reader:          schema.NewReader(db, driver),
		txs:             make(map[string]*sql.Tx),
	}

	if driver == "sqlite3" {
		if err := initSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		if !cfg.Database.SkipSeed {
			seeded, err := seed(ctx, db)
			if err != nil {
				db.Close()
				return nil, err
			}
			if seeded {
				m.logger.Infow("seeded demo data", "path", cfg.Database.Path)
			}
		}
	}

	m.logger.Infow("database ready", "driver", driver)
	return m, nil
}

// DB exposes the underlying handle.
func (m *Manager) DB() *sql.DB { return m.db }

// Driver returns the database/sql driver name.
func (m *Manager) Driver() string { return m.driver }

// Close rolls back open session transactions and closes the database.
func (m *Manager) Close() error {
	m.mutex.Lock()
	for session, tx := range m.txs {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.logger.Warnw("rollback on close failed", "session_id", session, "error", err)
		}
		delete(m.txs, session)
	}
	m.mutex.Unlock()
	return m.db.Close()
}

// TestConnection runs a trivial query.
func (m *Manager) TestConnection(ctx context.Context) error {
	var one int
	if err := m.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Execute runs one statement outside any session transaction and returns the
// envelope. Database errors are reported in the envelope, not as Go errors.
func (m *Manager) Execute(ctx context.Context, query string, args ...interface{}) *Result {
	return m.run(ctx, m.db, query, args...)
}

func (m *Manager) run(ctx context.Context, q querier, query string, args ...interface{}) *Result {
	start := time.Now()
	if m.driver == "sqlite3" {
		query = Translate(query)
	}

	var (
		result *Result
		err    error
	)
	if IsReadStatement(query) {
		result, err = m.query(ctx, q, query, args...)
	} else {
		result, err = m.exec(ctx, q, query, args...)
	}
	if err != nil {
		result = errorResult(CodeQueryFailed, err.Error())
	}
	result.finish(start)

	rows := int64(result.RowCount)
	if result.RowsAffected > 0 {
		rows = result.RowsAffected
	}
	m.logger.QueryExecution(query, time.Since(start), rows, err)
	return result
}

func (m *Manager) query(ctx context.Context, q querier, query string, args ...interface{}) (*Result, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := newResult()
	result.Columns = columns
	result.Data = []*orderedmap.OrderedMap{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := orderedmap.New()
		for i, col := range columns {
			row.Set(col, normalizeValue(values[i]))
		}
		result.Data = append(result.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Data)
	return result, nil
}

func (m *Manager) exec(ctx context.Context, q querier, query string, args ...interface{}) (*Result, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	result := newResult()
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	// postgres drivers do not support LastInsertId
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	return result, nil
}

// normalizeValue converts driver values into JSON friendly ones.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
