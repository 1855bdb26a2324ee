package adb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"select", "SELECT * FROM employees", ""},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", ""},
		{"trailing semicolon", "SELECT 1;", ""},
		{"insert", "INSERT INTO audit_log (table_name, operation) VALUES ('a', 'b')", ""},
		{"update with where", "UPDATE employees SET salary = 1 WHERE employee_id = 1", ""},
		{"keyword in literal", "SELECT * FROM audit_log WHERE operation = 'DROP'", ""},
		{"keyword in comment", "SELECT 1 -- drop later", ""},
		{"column containing keyword", "SELECT created_date FROM orders", ""},
		{"empty", "   ", "cannot be empty"},
		{"too long", "SELECT '" + strings.Repeat("x", 100) + "'", "maximum length"},
		{"drop", "DROP TABLE employees", "'DROP'"},
		{"lower case truncate", "truncate table orders", "'TRUNCATE'"},
		{"stacked", "SELECT 1; DELETE FROM orders WHERE 1=1", "multiple statements"},
		{"dash comment marker in literal", "SELECT '--'; DROP TABLE x", "multiple statements"},
		{"block comment marker in literal", "SELECT '/*'; DELETE FROM t; --*/'", "multiple statements"},
		{"quote inside comment", "SELECT 1 /* it's */; DROP TABLE x", "multiple statements"},
		{"pragma", "PRAGMA table_info(employees)", "only SELECT"},
		{"delete without where", "DELETE FROM orders", "requires a WHERE"},
		{"update without where", "UPDATE employees SET salary = 0", "requires a WHERE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query, 80, nil)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrQueryRejected)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CustomBlockedKeywords(t *testing.T) {
	assert.NoError(t, Validate("DELETE FROM orders WHERE order_id = 1", 0, []string{"DROP"}))
	assert.Error(t, Validate("DELETE FROM orders WHERE order_id = 1", 0, []string{"delete"}))
}

func TestStatementType(t *testing.T) {
	tests := map[string]string{
		"select 1":                      "SELECT",
		"  /* hint */ insert into x":    "INSERT",
		"(SELECT 1)":                    "SELECT",
		"-- note\nWITH a AS (SELECT 1)": "WITH",
		"":                              "",
	}
	for query, want := range tests {
		assert.Equal(t, want, StatementType(query), query)
	}

	assert.True(t, IsReadStatement("PRAGMA foreign_keys"))
	assert.False(t, IsReadStatement("UPDATE t SET a = 1 WHERE b = 2"))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM employees FETCH FIRST 10 ROWS ONLY", "SELECT * FROM employees LIMIT 10"},
		{"SELECT * FROM orders fetch next 1 row only", "SELECT * FROM orders LIMIT 1"},
		{"SELECT SYSDATE FROM DUAL", "SELECT CURRENT_TIMESTAMP"},
		{"SELECT NVL(commission_pct, 0) FROM employees", "SELECT IFNULL(commission_pct, 0) FROM employees"},
		{"SELECT 1", "SELECT 1"},
		{"SELECT NVL(a, 'NVL(x) FROM DUAL') FROM t", "SELECT IFNULL(a, 'NVL(x) FROM DUAL') FROM t"},
		{"SELECT 'SYSDATE', SYSDATE FROM DUAL", "SELECT 'SYSDATE', CURRENT_TIMESTAMP"},
		{"SELECT 1 -- NVL(x) FROM DUAL", "SELECT 1 -- NVL(x) FROM DUAL"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Translate(tt.in))
		})
	}
}
