package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE teams (team_id INTEGER PRIMARY KEY, team_name TEXT NOT NULL)`,
		`CREATE TABLE members (
			member_id INTEGER PRIMARY KEY,
			email TEXT UNIQUE,
			nickname TEXT DEFAULT 'anon',
			team_id INTEGER REFERENCES teams(team_id)
		)`,
		`CREATE INDEX idx_members_team ON members(team_id)`,
		`INSERT INTO teams VALUES (1, 'core'), (2, 'infra')`,
		`INSERT INTO members (member_id, email, team_id) VALUES (10, 'a@x.io', 1)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestReader_Tables(t *testing.T) {
	r := NewReader(openTestDB(t), "sqlite3")

	tables, err := r.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"members", "teams"}, tables)

	name, ok, err := r.HasTable(context.Background(), "TEAMS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "teams", name)

	_, ok, err = r.HasTable(context.Background(), "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReader_Table(t *testing.T) {
	r := NewReader(openTestDB(t), "sqlite3")

	table, err := r.Table(context.Background(), "members")
	require.NoError(t, err)

	assert.Equal(t, int64(1), table.RowCount)
	assert.Equal(t, 4, table.ColumnCount)

	require.Len(t, table.Columns, 4)
	assert.Equal(t, "member_id", table.Columns[0].Name)
	assert.True(t, table.Columns[0].IsPrimaryKey)
	assert.False(t, table.Columns[0].Nullable)
	require.NotNil(t, table.Columns[2].DefaultValue)
	assert.Equal(t, "'anon'", *table.Columns[2].DefaultValue)

	var names []string
	for _, idx := range table.Indexes {
		names = append(names, idx.Name)
	}
	assert.Contains(t, names, "idx_members_team")

	require.Len(t, table.ForeignKeys, 1)
	assert.Equal(t, ForeignKey{Column: "team_id", RefTable: "teams", RefColumn: "team_id"}, table.ForeignKeys[0])
}

func TestReader_UnsupportedType(t *testing.T) {
	r := NewReader(openTestDB(t), "oracle")
	_, err := r.Tables(context.Background())
	assert.Error(t, err)
}

func TestReader_quoteIdentifier(t *testing.T) {
	tests := []struct {
		dbType     string
		identifier string
		expected   string
	}{
		{"mysql", "table_name", "`table_name`"},
		{"postgres", "table_name", `"table_name"`},
		{"pgx", "table_name", `"table_name"`},
		{"sqlite3", `we"ird`, `"we""ird"`},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			r := NewReader(nil, tt.dbType)
			if got := r.quoteIdentifier(tt.identifier); got != tt.expected {
				t.Errorf("quoteIdentifier() = %v, want %v", got, tt.expected)
			}
		})
	}
}
