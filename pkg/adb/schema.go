package adb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/masato25/aika-adb/internal/analyzer"
	"github.com/masato25/aika-adb/internal/schema"
)

// Compatibility flags describing how closely the store imitates ADB
type Compatibility struct {
	ForeignKeysEnabled bool `json:"foreign_keys_enabled"`
	WALMode            bool `json:"wal_mode"`
	TransactionSupport bool `json:"transaction_support"`
}

// SchemaInfo database wide schema summary
type SchemaInfo struct {
	DatabasePath   string         `json:"database_path"`
	Driver         string         `json:"driver"`
	Tables         []schema.Table `json:"tables"`
	TotalTables    int            `json:"total_tables"`
	TotalIndexes   int            `json:"total_indexes"`
	DatabaseSizeMB float64        `json:"database_size_mb"`
	Compatibility  Compatibility  `json:"oracle_compatibility"`
}

// ErrTableNotFound is returned for unknown table names.
var ErrTableNotFound = errors.New("table not found")

// SchemaInfo reads every table with its columns, indexes and row count.
func (m *Manager) SchemaInfo(ctx context.Context) (*SchemaInfo, error) {
	tables, err := m.reader.ReadSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	info := &SchemaInfo{
		DatabasePath: m.path,
		Driver:       m.driver,
		Tables:       tables,
		TotalTables:  len(tables),
		Compatibility: Compatibility{
			TransactionSupport: true,
		},
	}
	for _, t := range tables {
		for _, idx := range t.Indexes {
			if !strings.HasPrefix(idx.Name, "sqlite_") {
				info.TotalIndexes++
			}
		}
	}

	if m.driver == "sqlite3" {
		if st, err := os.Stat(m.path); err == nil {
			info.DatabaseSizeMB = float64(st.Size()) / (1024 * 1024)
		}
		var fk int
		if err := m.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err == nil {
			info.Compatibility.ForeignKeysEnabled = fk == 1
		}
		var mode string
		if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err == nil {
			info.Compatibility.WALMode = strings.EqualFold(mode, "wal")
		}
	} else {
		info.Compatibility.ForeignKeysEnabled = true
	}

	return info, nil
}

// TableInfo reads one table, matching the name case-insensitively.
func (m *Manager) TableInfo(ctx context.Context, name string) (*schema.Table, error) {
	actual, ok, err := m.reader.HasTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return m.reader.Table(ctx, actual)
}

// TableStatistics gathers per-column statistics for one table.
func (m *Manager) TableStatistics(ctx context.Context, name string) (*analyzer.TableStats, error) {
	table, err := m.TableInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return analyzer.New(m.db, m.driver).AnalyzeTable(ctx, *table)
}
