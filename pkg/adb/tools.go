package adb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iancoleman/orderedmap"

	"github.com/masato25/aika-adb/internal/schema"
	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/tools"
)

// Tool names
const (
	QueryToolName       = "oracle_query_executor"
	SchemaToolName      = "oracle_schema_explorer"
	TransactionToolName = "oracle_transaction_manager"
)

// DefaultSession is used when a caller does not name a session.
const DefaultSession = "default"

// QueryTool runs validated SQL against the ADB.
type QueryTool struct {
	manager *Manager
}

// NewQueryTool creates the query tool.
func NewQueryTool(m *Manager) *QueryTool { return &QueryTool{manager: m} }

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	return "Execute SQL queries against Oracle Autonomous Database with Oracle-specific optimizations"
}

func (t *QueryTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1, "description": "SQL statement to execute"},
			"parameters": {"type": "array", "description": "positional bind parameters"},
			"session_id": {"type": "string", "description": "run inside this session's open transaction"}
		},
		"required": ["query"]
	}`
}

// Call implements tools.Tool.
func (t *QueryTool) Call(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	query, _ := args["query"].(string)
	params, _ := args["parameters"].([]interface{})
	session, _ := args["session_id"].(string)
	return t.Run(ctx, session, query, params...), nil
}

// Run validates and executes one statement. When session has an open
// transaction the statement runs inside it.
func (t *QueryTool) Run(ctx context.Context, session, query string, params ...interface{}) *Result {
	m := t.manager
	start := time.Now()

	if err := Validate(query, m.maxQueryLength, m.blockedKeywords); err != nil {
		r := errorResult(CodeRejected, err.Error())
		r.OracleMetadata = newOracleMetadata()
		return r.finish(start)
	}

	var result *Result
	if session != "" && m.InTransaction(session) {
		result = m.ExecIn(ctx, session, query, params...)
	} else {
		result = m.Execute(ctx, query, params...)
	}

	result.OracleMetadata = newOracleMetadata()
	if result.OK() && IsReadStatement(query) {
		result.QueryPlan = &QueryPlan{
			PlanHashValue: "1234567890",
			OptimizerMode: "ALL_ROWS",
			Cost:          10,
			Cardinality:   result.RowCount,
		}
	}
	return result
}

// SchemaExplorer describes tables in Oracle data dictionary style.
type SchemaExplorer struct {
	manager *Manager
}

// NewSchemaExplorer creates the schema tool.
func NewSchemaExplorer(m *Manager) *SchemaExplorer { return &SchemaExplorer{manager: m} }

func (t *SchemaExplorer) Name() string { return SchemaToolName }

func (t *SchemaExplorer) Description() string {
	return "Explore Oracle database schema, tables, columns, and relationships"
}

func (t *SchemaExplorer) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"table_name": {"type": "string", "description": "table to describe; omit for an overview"},
			"schema_name": {"type": "string", "description": "schema owner, defaults to CURRENT_USER"},
			"include_statistics": {"type": "boolean", "description": "add per-column statistics when describing a table"}
		}
	}`
}

// Cacheable implements tools.Cacheable.
func (t *SchemaExplorer) Cacheable() bool { return true }

// Call implements tools.Tool.
func (t *SchemaExplorer) Call(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	table, _ := args["table_name"].(string)
	owner, _ := args["schema_name"].(string)
	withStats, _ := args["include_statistics"].(bool)
	if strings.TrimSpace(table) != "" {
		r := t.Describe(ctx, table, owner)
		if withStats && r.OK() {
			t.addStatistics(ctx, r, table)
		}
		return r, nil
	}
	return t.Overview(ctx, owner), nil
}

// addStatistics attaches column statistics to a successful Describe result.
func (t *SchemaExplorer) addStatistics(ctx context.Context, r *Result, table string) {
	stats, err := t.manager.TableStatistics(ctx, table)
	if err != nil {
		t.manager.logger.Warnw("failed to gather column statistics", "table", table, "error", err)
		return
	}
	r.Metadata["column_statistics"] = stats.Columns
	r.Metadata["data_completeness"] = stats.Summary.DataCompleteness
}

// Overview lists every table with its row and column counts.
func (t *SchemaExplorer) Overview(ctx context.Context, owner string) *Result {
	start := time.Now()
	if owner == "" {
		owner = "CURRENT_USER"
	}

	info, err := t.manager.SchemaInfo(ctx)
	if err != nil {
		r := errorResult(CodeQueryFailed, err.Error())
		return r.finish(start)
	}

	r := newResult()
	r.Columns = []string{"TABLE_NAME", "ROW_COUNT", "COLUMN_COUNT", "INDEX_COUNT"}
	r.Data = make([]*orderedmap.OrderedMap, 0, len(info.Tables))
	for _, table := range info.Tables {
		row := orderedmap.New()
		row.Set("TABLE_NAME", strings.ToUpper(table.Name))
		row.Set("ROW_COUNT", table.RowCount)
		row.Set("COLUMN_COUNT", table.ColumnCount)
		row.Set("INDEX_COUNT", len(table.Indexes))
		r.Data = append(r.Data, row)
	}
	r.RowCount = len(r.Data)
	r.OracleMetadata = newOracleMetadata()
	r.Metadata = map[string]interface{}{
		"schema_name":          owner,
		"total_tables":         info.TotalTables,
		"total_indexes":        info.TotalIndexes,
		"database_size_mb":     info.DatabaseSizeMB,
		"oracle_compatibility": info.Compatibility,
	}
	return r.finish(start)
}

// Describe lists the columns of one table, with indexes and references in
// the metadata.
func (t *SchemaExplorer) Describe(ctx context.Context, table, owner string) *Result {
	start := time.Now()
	if owner == "" {
		owner = "CURRENT_USER"
	}

	info, err := t.manager.TableInfo(ctx, table)
	if err != nil {
		code := CodeUnexpected
		if errors.Is(err, ErrTableNotFound) {
			code = CodeQueryFailed
			err = fmt.Errorf("table or view %s does not exist", strings.ToUpper(table))
		}
		r := errorResult(code, err.Error())
		return r.finish(start)
	}

	r := newResult()
	r.Columns = []string{"COLUMN_ID", "COLUMN_NAME", "DATA_TYPE", "NULLABLE", "DATA_DEFAULT", "PRIMARY_KEY"}
	r.Data = make([]*orderedmap.OrderedMap, 0, len(info.Columns))
	for _, col := range info.Columns {
		row := orderedmap.New()
		row.Set("COLUMN_ID", col.Position)
		row.Set("COLUMN_NAME", strings.ToUpper(col.Name))
		row.Set("DATA_TYPE", strings.ToUpper(col.Type))
		row.Set("NULLABLE", yesNo(col.Nullable))
		if col.DefaultValue != nil {
			row.Set("DATA_DEFAULT", *col.DefaultValue)
		} else {
			row.Set("DATA_DEFAULT", nil)
		}
		row.Set("PRIMARY_KEY", yesNo(col.IsPrimaryKey))
		r.Data = append(r.Data, row)
	}
	r.RowCount = len(r.Data)
	r.OracleMetadata = newOracleMetadata()
	r.Metadata = map[string]interface{}{
		"table_name":   strings.ToUpper(info.Name),
		"schema_name":  owner,
		"tablespace":   "DATA",
		"table_type":   "TABLE",
		"num_rows":     info.RowCount,
		"indexes":      nonNilIndexes(info.Indexes),
		"foreign_keys": nonNilForeignKeys(info.ForeignKeys),
	}
	return r.finish(start)
}

// TransactionTool groups statements into a session transaction.
type TransactionTool struct {
	manager *Manager
	scn     atomic.Uint64
}

// NewTransactionTool creates the transaction tool.
func NewTransactionTool(m *Manager) *TransactionTool {
	t := &TransactionTool{manager: m}
	t.scn.Store(12345677)
	return t
}

func (t *TransactionTool) Name() string { return TransactionToolName }

func (t *TransactionTool) Description() string {
	return "Manage Oracle database transactions with proper isolation and rollback capabilities"
}

func (t *TransactionTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["begin", "commit", "rollback", "BEGIN", "COMMIT", "ROLLBACK"]},
			"sql_statements": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"session_id": {"type": "string"}
		},
		"required": ["operation"]
	}`
}

// Call implements tools.Tool.
func (t *TransactionTool) Call(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	op, _ := args["operation"].(string)
	session, _ := args["session_id"].(string)
	var statements []string
	if raw, ok := args["sql_statements"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				statements = append(statements, str)
			}
		}
	}
	if raw, ok := args["sql_statements"].([]string); ok {
		statements = raw
	}

	switch strings.ToLower(op) {
	case "begin":
		return t.Begin(ctx, session, statements), nil
	case "commit":
		return t.Commit(session), nil
	case "rollback":
		return t.Rollback(session), nil
	default:
		r := errorResult(CodeTransactionFailed, fmt.Sprintf("unsupported operation: %s", op))
		return r.finish(time.Now()), nil
	}
}

// Begin opens the session transaction and runs the statements in it. Any
// failing statement rolls the whole transaction back.
func (t *TransactionTool) Begin(ctx context.Context, session string, statements []string) *Result {
	start := time.Now()
	if session == "" {
		session = DefaultSession
	}
	m := t.manager

	if err := m.Begin(ctx, session); err != nil {
		r := errorResult(CodeTransactionFailed, err.Error())
		return r.finish(start)
	}

	r := newResult()
	r.TransactionID = "TXN_" + start.Format("20060102_150405")
	r.StatementResults = []StatementResult{}

	for i, stmt := range statements {
		sr := StatementResult{Statement: logger.Truncate(stmt, 100)}

		var res *Result
		if err := Validate(stmt, m.maxQueryLength, m.blockedKeywords); err != nil {
			res = errorResult(CodeRejected, err.Error())
		} else {
			res = m.ExecIn(ctx, session, stmt)
		}

		if !res.OK() {
			sr.Status = StatusError
			sr.ErrorMessage = res.ErrorMessage
			r.StatementResults = append(r.StatementResults, sr)
			if err := m.Rollback(session); err != nil {
				m.logger.Warnw("rollback after failed statement", "session_id", session, "error", err)
			}
			r.Status = StatusError
			r.ErrorCode = CodeTransactionFailed
			r.ErrorMessage = fmt.Sprintf("statement %d failed, transaction rolled back: %s", i+1, res.ErrorMessage)
			r.StatementsExecuted = i
			return r.finish(start)
		}

		sr.Status = StatusSuccess
		sr.RowsAffected = res.RowsAffected
		if IsReadStatement(stmt) {
			sr.RowsAffected = int64(res.RowCount)
		}
		r.RowsAffected += res.RowsAffected
		r.StatementResults = append(r.StatementResults, sr)
	}

	r.StatementsExecuted = len(statements)
	r.OracleMetadata = newOracleMetadata()
	r.Metadata = map[string]interface{}{
		"session_id":      session,
		"isolation_level": "READ_COMMITTED",
		"autocommit":      false,
	}
	return r.finish(start)
}

// Commit commits the session transaction and reports a system change number.
func (t *TransactionTool) Commit(session string) *Result {
	start := time.Now()
	if session == "" {
		session = DefaultSession
	}

	if err := t.manager.Commit(session); err != nil {
		code := CodeTransactionFailed
		if errors.Is(err, ErrNoTransaction) {
			code = CodeNoTransaction
		}
		r := errorResult(code, err.Error())
		return r.finish(start)
	}

	r := newResult()
	r.SCN = fmt.Sprintf("%d", t.scn.Add(1))
	r.Metadata = map[string]interface{}{"session_id": session, "operation": "COMMIT"}
	return r.finish(start)
}

// Rollback rolls back the session transaction; without one it still succeeds.
func (t *TransactionTool) Rollback(session string) *Result {
	start := time.Now()
	if session == "" {
		session = DefaultSession
	}

	if err := t.manager.Rollback(session); err != nil {
		r := errorResult(CodeTransactionFailed, err.Error())
		return r.finish(start)
	}

	r := newResult()
	r.Metadata = map[string]interface{}{"session_id": session, "operation": "ROLLBACK"}
	return r.finish(start)
}

// Tools returns the three database tools bound to m.
func Tools(m *Manager) []tools.Tool {
	return []tools.Tool{NewQueryTool(m), NewSchemaExplorer(m), NewTransactionTool(m)}
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func nonNilIndexes(in []schema.Index) []schema.Index {
	if in == nil {
		return []schema.Index{}
	}
	return in
}

func nonNilForeignKeys(in []schema.ForeignKey) []schema.ForeignKey {
	if in == nil {
		return []schema.ForeignKey{}
	}
	return in
}
