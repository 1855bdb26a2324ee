package router

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
)

var sqlCases = []struct {
	query string
	want  string
	rows  int
}{
	{"show employees by department", "LEFT JOIN departments", 6},
	{"which employees have the highest salary", "ORDER BY salary DESC", 6},
	{"recent new hires among staff", "hire_date >=", 0},
	{"list employees", "FROM employees ORDER BY employee_id", 6},
	{"show departments", "FROM departments ORDER BY department_id", 6},
	{"orders by amount", "ORDER BY total_amount DESC", 4},
	{"recent orders", "order_date >=", -1},
	{"all sales", "ORDER BY order_date DESC", 4},
	{"top customers", "GROUP BY customer_id", 3},
	{"what tables exist", "sqlite_master", 5},
	{"how many employees", "COUNT(*) AS employee_count", 1},
	{"count employees per department", "GROUP BY d.department_id", 6},
	{"how many orders", "COUNT(*) AS order_count", 1},
	{"count everything", "AS table_count", 1},
	{"average salary of employees", "AVG(salary)", 1},
	{"average order amount", "AVG(total_amount)", 1},
	{"mean product price", "AVG(unit_price)", 1},
	{"xyzzy", "sqlite_master", 5},
}

func TestGenerateSQL(t *testing.T) {
	for _, tt := range sqlCases {
		t.Run(tt.query, func(t *testing.T) {
			assert.Contains(t, GenerateSQL(tt.query), tt.want)
		})
	}
}

func TestGenerateSQL_RunsOnSeededStore(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "router.sqlite")
	m, err := adb.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	tool := adb.NewQueryTool(m)
	for _, tt := range sqlCases {
		t.Run(tt.query, func(t *testing.T) {
			sql := GenerateSQL(tt.query)
			r := tool.Run(context.Background(), "", sql)
			require.True(t, r.OK(), "%s: %s", sql, r.ErrorMessage)
			if tt.rows >= 0 {
				assert.Equal(t, tt.rows, r.RowCount, sql)
			}
		})
	}
}

func TestGenerateSQLFor_Dialects(t *testing.T) {
	assert.Contains(t, GenerateSQLFor("postgres", "show tables"), "information_schema.tables")
	assert.Contains(t, GenerateSQLFor("mysql", "show tables"), "DATABASE()")
	assert.Contains(t, GenerateSQLFor("pgx", "recent orders"), "INTERVAL '30 days'")
	assert.Contains(t, GenerateSQLFor("mysql", "new employees"), "DATE_SUB")
}
