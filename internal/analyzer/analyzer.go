// Package analyzer gathers per-column statistics in the shape of Oracle's
// ALL_TAB_COL_STATISTICS view.
package analyzer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/masato25/aika-adb/internal/schema"
)

const sampleSize = 5

// Analyzer column statistics collector
type Analyzer struct {
	db     *sql.DB
	dbType string
}

// New creates an analyzer for the given driver.
func New(db *sql.DB, dbType string) *Analyzer {
	return &Analyzer{db: db, dbType: dbType}
}

// ColumnStats statistics for one column
type ColumnStats struct {
	ColumnName   string      `json:"column_name"`
	DataType     string      `json:"data_type"`
	NumNulls     int64       `json:"num_nulls"`
	NumDistinct  int64       `json:"num_distinct"`
	Density      float64     `json:"density"`
	LowValue     interface{} `json:"low_value,omitempty"`
	HighValue    interface{} `json:"high_value,omitempty"`
	AvgValue     interface{} `json:"avg_value,omitempty"`
	SampleValues []string    `json:"sample_values"`
}

// Summary table level figures derived from the column statistics
type Summary struct {
	TotalColumns     int     `json:"total_columns"`
	PrimaryKeys      int     `json:"primary_keys"`
	ForeignKeys      int     `json:"foreign_keys"`
	NullableRatio    float64 `json:"nullable_ratio"`
	DataCompleteness float64 `json:"data_completeness"`
}

// TableStats statistics for one table
type TableStats struct {
	TableName    string        `json:"table_name"`
	NumRows      int64         `json:"num_rows"`
	Columns      []ColumnStats `json:"columns"`
	Summary      Summary       `json:"summary"`
	LastAnalyzed string        `json:"last_analyzed"`
}

// AnalyzeTable collects statistics for every column of table.
func (a *Analyzer) AnalyzeTable(ctx context.Context, table schema.Table) (*TableStats, error) {
	stats := &TableStats{
		TableName:    table.Name,
		Columns:      make([]ColumnStats, 0, len(table.Columns)),
		LastAnalyzed: time.Now().Format(time.RFC3339),
	}

	if err := a.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", a.quoteIdentifier(table.Name))).Scan(&stats.NumRows); err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", table.Name, err)
	}

	for _, column := range table.Columns {
		cs, err := a.analyzeColumn(ctx, table.Name, column, stats.NumRows)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze %s.%s: %w", table.Name, column.Name, err)
		}
		stats.Columns = append(stats.Columns, *cs)
	}

	stats.Summary = summarize(table, stats.Columns, stats.NumRows)
	return stats, nil
}

func (a *Analyzer) analyzeColumn(ctx context.Context, tableName string, column schema.Column, numRows int64) (*ColumnStats, error) {
	table := a.quoteIdentifier(tableName)
	col := a.quoteIdentifier(column.Name)

	cs := &ColumnStats{
		ColumnName:   column.Name,
		DataType:     column.Type,
		SampleValues: []string{},
	}

	var notNull int64
	query := fmt.Sprintf("SELECT COUNT(%s), COUNT(DISTINCT %s) FROM %s", col, col, table)
	if err := a.db.QueryRowContext(ctx, query).Scan(&notNull, &cs.NumDistinct); err != nil {
		return nil, err
	}
	cs.NumNulls = numRows - notNull
	if cs.NumDistinct > 0 {
		cs.Density = 1 / float64(cs.NumDistinct)
	}
	if notNull == 0 {
		return cs, nil
	}

	var low, high interface{}
	query = fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, table)
	if err := a.db.QueryRowContext(ctx, query).Scan(&low, &high); err != nil {
		return nil, err
	}
	cs.LowValue, cs.HighValue = jsonValue(low), jsonValue(high)

	if IsNumericType(column.Type) {
		var avg interface{}
		query = fmt.Sprintf("SELECT AVG(%s) FROM %s", col, table)
		if err := a.db.QueryRowContext(ctx, query).Scan(&avg); err == nil {
			cs.AvgValue = jsonValue(avg)
		}
	}

	query = fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d", col, table, col, sampleSize)
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		cs.SampleValues = append(cs.SampleValues, fmt.Sprintf("%v", jsonValue(v)))
	}
	return cs, rows.Err()
}

func summarize(table schema.Table, columns []ColumnStats, numRows int64) Summary {
	s := Summary{TotalColumns: len(columns)}
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			s.PrimaryKeys++
		}
	}
	fkColumns := make(map[string]bool)
	for _, fk := range table.ForeignKeys {
		fkColumns[fk.Column] = true
	}
	s.ForeignKeys = len(fkColumns)

	if s.TotalColumns == 0 {
		return s
	}
	withNulls := 0
	completeness := 0.0
	for _, c := range columns {
		if c.NumNulls > 0 {
			withNulls++
		}
		if numRows > 0 {
			completeness += float64(numRows-c.NumNulls) / float64(numRows)
		}
	}
	s.NullableRatio = float64(withNulls) / float64(s.TotalColumns)
	s.DataCompleteness = completeness / float64(s.TotalColumns)
	return s
}

// IsNumericType reports whether a declared column type holds numbers.
func IsNumericType(columnType string) bool {
	t := strings.ToLower(columnType)
	for _, kw := range []string{"int", "decimal", "numeric", "number", "float", "double", "real"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (a *Analyzer) quoteIdentifier(identifier string) string {
	switch a.dbType {
	case "mysql":
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}
