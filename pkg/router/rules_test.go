package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `
function route_sql(query, analysis)
  if string.find(query, "products") then
    return "SELECT product_name FROM products ORDER BY unit_price DESC"
  end
  if analysis.query_intent == "schema_exploration" and analysis.confidence.database > 0.5 then
    return "SELECT 'schema' AS routed"
  end
  if query == "boom" then
    error("exploded")
  end
  return nil
end
`

func TestRules_Route(t *testing.T) {
	rules, err := LoadRulesString(testRules)
	require.NoError(t, err)
	defer rules.Close()

	sql, err := rules.Route("list products", Analyze("list products"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT product_name FROM products ORDER BY unit_price DESC", sql)

	sql, err = rules.Route("hello", Analyze("hello"))
	require.NoError(t, err)
	assert.Empty(t, sql)

	sql, err = rules.Route("show the schema", Analyze("show the schema"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 'schema' AS routed", sql)

	_, err = rules.Route("boom", Analyze("boom"))
	assert.Error(t, err)
}

func TestRouter_SQL(t *testing.T) {
	rules, err := LoadRulesString(testRules)
	require.NoError(t, err)

	r := New("sqlite3", rules, nil)
	defer r.Close()

	assert.Contains(t, r.SQL("list products", r.Analyze("list products")), "product_name")
	// script errors and empty answers fall back to the built-in mapping
	assert.Equal(t, GenerateSQL("boom"), r.SQL("boom", r.Analyze("boom")))
	assert.Equal(t, GenerateSQL("show employees"), r.SQL("show employees", r.Analyze("show employees")))

	plain := New("sqlite3", nil, nil)
	assert.Equal(t, GenerateSQL("top customers"), plain.SQL("top customers", plain.Analyze("top customers")))
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "rules.lua")
	require.NoError(t, os.WriteFile(good, []byte(testRules), 0o644))
	rules, err := LoadRules(good)
	require.NoError(t, err)
	rules.Close()

	missingFn := filepath.Join(dir, "empty.lua")
	require.NoError(t, os.WriteFile(missingFn, []byte("x = 1"), 0o644))
	_, err = LoadRules(missingFn)
	assert.Error(t, err)

	_, err = LoadRules(filepath.Join(dir, "absent.lua"))
	assert.Error(t, err)

	_, err = LoadRulesString("function route_sql(")
	assert.Error(t, err)
}

func TestRules_ShippedScript(t *testing.T) {
	rules, err := LoadRules(filepath.Join("..", "..", "rules", "route.lua"))
	require.NoError(t, err)
	defer rules.Close()

	sql, err := rules.Route("list the headcount", Analyze("list the headcount"))
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY d.department_name")

	sql, err = rules.Route("hello there", Analyze("hello there"))
	require.NoError(t, err)
	assert.Empty(t, sql)
}
