package adb

import (
	"time"

	"github.com/iancoleman/orderedmap"
)

// Envelope status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in the envelope
const (
	CodeQueryFailed       = "ORA-00942"
	CodeUnexpected        = "ORA-00001"
	CodeRejected          = "ORA-01031"
	CodeTransactionFailed = "ORA-02049"
	CodeNoTransaction     = "ORA-01002"
)

// OracleMetadata cosmetic session details attached to tool results
type OracleMetadata struct {
	SessionID       string `json:"session_id"`
	DatabaseVersion string `json:"database_version"`
	ServiceName     string `json:"service_name"`
	ConnectionPool  string `json:"connection_pool"`
	Timestamp       string `json:"timestamp"`
}

// QueryPlan cosmetic plan summary for SELECT statements
type QueryPlan struct {
	PlanHashValue string `json:"plan_hash_value"`
	OptimizerMode string `json:"optimizer_mode"`
	Cost          int    `json:"cost"`
	Cardinality   int    `json:"cardinality"`
}

// StatementResult outcome of one statement inside a transaction
type StatementResult struct {
	Statement    string `json:"statement"`
	Status       string `json:"status"`
	RowsAffected int64  `json:"rows_affected"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Result the envelope shared by the query, schema and transaction tools
type Result struct {
	Status             string                   `json:"status"`
	Data               []*orderedmap.OrderedMap `json:"data"`
	Columns            []string                 `json:"columns"`
	RowCount           int                      `json:"row_count"`
	RowsAffected       int64                    `json:"rows_affected,omitempty"`
	LastInsertID       int64                    `json:"last_insert_id,omitempty"`
	ExecutionTimeMs    float64                  `json:"execution_time_ms"`
	ErrorCode          string                   `json:"error_code,omitempty"`
	ErrorMessage       string                   `json:"error_message,omitempty"`
	Timestamp          string                   `json:"timestamp"`
	OracleMetadata     *OracleMetadata          `json:"oracle_metadata,omitempty"`
	QueryPlan          *QueryPlan               `json:"query_plan,omitempty"`
	Metadata           map[string]interface{}   `json:"metadata,omitempty"`
	TransactionID      string                   `json:"transaction_id,omitempty"`
	StatementsExecuted int                      `json:"statements_executed,omitempty"`
	StatementResults   []StatementResult        `json:"statement_results,omitempty"`
	SCN                string                   `json:"scn,omitempty"`
}

func newResult() *Result {
	return &Result{
		Status:    StatusSuccess,
		Columns:   []string{},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// errorResult builds a failed envelope.
func errorResult(code, message string) *Result {
	r := newResult()
	r.Status = StatusError
	r.ErrorCode = code
	r.ErrorMessage = message
	return r
}

// OK reports whether the envelope carries a success status.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

func (r *Result) finish(start time.Time) *Result {
	r.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return r
}

// Value returns one field of one row.
func (r *Result) Value(row int, column string) (interface{}, bool) {
	if row < 0 || row >= len(r.Data) {
		return nil, false
	}
	return r.Data[row].Get(column)
}

func newOracleMetadata() *OracleMetadata {
	return &OracleMetadata{
		SessionID:       "ADB_SESSION_001",
		DatabaseVersion: "Oracle Database 19c Enterprise Edition",
		ServiceName:     "autonomous_db_high",
		ConnectionPool:  "default_pool",
		Timestamp:       time.Now().Format(time.RFC3339),
	}
}
