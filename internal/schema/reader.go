package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Table table structure
type Table struct {
	Name        string       `json:"name"`
	RowCount    int64        `json:"row_count"`
	ColumnCount int          `json:"column_count"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Column column structure
type Column struct {
	Position     int     `json:"position"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"default_value"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// Index index structure
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Origin  string   `json:"origin,omitempty"`
}

// ForeignKey column reference to another table
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Reader reads table structure from sqlite3, postgres and mysql databases.
type Reader struct {
	db     *sql.DB
	dbType string
}

// NewReader creates a schema reader. pgx is treated as postgres.
func NewReader(db *sql.DB, dbType string) *Reader {
	if dbType == "pgx" {
		dbType = "postgres"
	}
	return &Reader{db: db, dbType: dbType}
}

// Tables lists user tables ordered by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	var query string
	switch r.dbType {
	case "sqlite3":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "postgres":
		query = `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`
	case "mysql":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		return nil, fmt.Errorf("unsupported database type: %s", r.dbType)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// HasTable reports whether the named table exists, ignoring case.
func (r *Reader) HasTable(ctx context.Context, name string) (string, bool, error) {
	tables, err := r.Tables(ctx)
	if err != nil {
		return "", false, err
	}
	for _, t := range tables {
		if strings.EqualFold(t, name) {
			return t, true, nil
		}
	}
	return "", false, nil
}

// Table reads the full structure of one table.
func (r *Reader) Table(ctx context.Context, name string) (*Table, error) {
	columns, err := r.Columns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	indexes, err := r.Indexes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", name, err)
	}
	fks, err := r.ForeignKeys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
	}
	count, err := r.RowCount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
	}

	return &Table{
		Name:        name,
		RowCount:    count,
		ColumnCount: len(columns),
		Columns:     columns,
		Indexes:     indexes,
		ForeignKeys: fks,
	}, nil
}

// ReadSchema reads every table.
func (r *Reader) ReadSchema(ctx context.Context) ([]Table, error) {
	names, err := r.Tables(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]Table, 0, len(names))
	for _, name := range names {
		t, err := r.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// Columns lists the columns of a table in ordinal order.
func (r *Reader) Columns(ctx context.Context, tableName string) ([]Column, error) {
	if r.dbType == "sqlite3" {
		return r.sqliteColumns(ctx, tableName)
	}

	var query string
	switch r.dbType {
	case "postgres":
		query = `
			SELECT
				c.ordinal_position,
				c.column_name,
				c.data_type,
				c.is_nullable = 'YES',
				c.column_default,
				EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage k ON k.constraint_name = tc.constraint_name
					WHERE tc.table_name = c.table_name AND tc.constraint_type = 'PRIMARY KEY' AND k.column_name = c.column_name
				)
			FROM information_schema.columns c
			WHERE c.table_name = $1 AND c.table_schema = 'public'
			ORDER BY c.ordinal_position
		`
	case "mysql":
		query = `
			SELECT
				ordinal_position,
				column_name,
				column_type,
				is_nullable = 'YES',
				column_default,
				column_key = 'PRI'
			FROM information_schema.columns
			WHERE table_name = ? AND table_schema = DATABASE()
			ORDER BY ordinal_position
		`
	default:
		return nil, fmt.Errorf("unsupported database type: %s", r.dbType)
	}

	rows, err := r.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var def sql.NullString
		if err := rows.Scan(&col.Position, &col.Name, &col.Type, &col.Nullable, &def, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		if def.Valid {
			col.DefaultValue = &def.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (r *Reader) sqliteColumns(ctx context.Context, tableName string) ([]Column, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", r.quoteIdentifier(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			def     sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		col := Column{
			Position:     cid + 1,
			Name:         name,
			Type:         colType,
			Nullable:     notNull == 0 && pk == 0,
			IsPrimaryKey: pk > 0,
		}
		if def.Valid {
			col.DefaultValue = &def.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// Indexes lists the indexes of a table.
func (r *Reader) Indexes(ctx context.Context, tableName string) ([]Index, error) {
	if r.dbType == "sqlite3" {
		return r.sqliteIndexes(ctx, tableName)
	}

	var query string
	switch r.dbType {
	case "postgres":
		query = `
			SELECT
				i.indexname,
				string_agg(a.attname, ',' ORDER BY a.attnum),
				idx.indisunique
			FROM pg_indexes i
			JOIN pg_class c ON c.relname = i.indexname
			JOIN pg_index idx ON idx.indexrelid = c.oid
			JOIN pg_attribute a ON a.attrelid = idx.indrelid AND a.attnum = ANY(idx.indkey)
			WHERE i.tablename = $1 AND i.schemaname = 'public'
			GROUP BY i.indexname, idx.indisunique
			ORDER BY i.indexname
		`
	case "mysql":
		query = `
			SELECT
				index_name,
				GROUP_CONCAT(column_name ORDER BY seq_in_index),
				non_unique = 0
			FROM information_schema.statistics
			WHERE table_name = ? AND table_schema = DATABASE()
			GROUP BY index_name, non_unique
			ORDER BY index_name
		`
	default:
		return nil, fmt.Errorf("unsupported database type: %s", r.dbType)
	}

	rows, err := r.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		var columnsStr string
		if err := rows.Scan(&idx.Name, &columnsStr, &idx.Unique); err != nil {
			return nil, err
		}
		idx.Columns = strings.Split(columnsStr, ",")
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (r *Reader) sqliteIndexes(ctx context.Context, tableName string) ([]Index, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", r.quoteIdentifier(tableName)))
	if err != nil {
		return nil, err
	}

	var indexes []Index
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		indexes = append(indexes, Index{Name: name, Unique: unique == 1, Origin: origin})
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range indexes {
		cols, err := r.sqliteIndexColumns(ctx, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}
	return indexes, nil
}

func (r *Reader) sqliteIndexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", r.quoteIdentifier(indexName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno int
			cid   int
			name  sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

// ForeignKeys lists the outgoing references of a table.
func (r *Reader) ForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	var (
		query string
		args  []interface{}
	)
	switch r.dbType {
	case "sqlite3":
		query = fmt.Sprintf(`SELECT "from", "table", "to" FROM pragma_foreign_key_list('%s')`, strings.ReplaceAll(tableName, "'", "''"))
	case "postgres":
		query = `
			SELECT att2.attname, parent.relname, att.attname
			FROM pg_constraint con
			JOIN pg_class parent ON parent.oid = con.confrelid
			JOIN pg_class child ON child.oid = con.conrelid
			JOIN pg_attribute att ON att.attrelid = parent.oid AND att.attnum = ANY(con.confkey)
			JOIN pg_attribute att2 ON att2.attrelid = child.oid AND att2.attnum = ANY(con.conkey)
			WHERE con.contype = 'f' AND child.relname = $1
		`
		args = []interface{}{tableName}
	case "mysql":
		query = `
			SELECT column_name, referenced_table_name, referenced_column_name
			FROM information_schema.key_column_usage
			WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
		`
		args = []interface{}{tableName}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", r.dbType)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var refColumn sql.NullString
		if err := rows.Scan(&fk.Column, &fk.RefTable, &refColumn); err != nil {
			return nil, err
		}
		fk.RefColumn = refColumn.String
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// RowCount counts the rows of a table.
func (r *Reader) RowCount(ctx context.Context, tableName string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.quoteIdentifier(tableName))).Scan(&count)
	return count, err
}

// quoteIdentifier quotes a table or index name for the current driver.
func (r *Reader) quoteIdentifier(identifier string) string {
	switch r.dbType {
	case "mysql":
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}
