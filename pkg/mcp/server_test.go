package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/agent"
	"github.com/masato25/aika-adb/pkg/tools"
)

type rpcResponse struct {
	Result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "mcp.sqlite")

	db, err := adb.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(adb.Tools(db)...))

	a := agent.New(agent.Options{Config: cfg, Registry: reg, DB: db})
	return NewServer("aika-adb", "test", reg, a, nil)
}

func call(t *testing.T, s *Server, id int, method string, params interface{}) rpcResponse {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	msg := s.MCPServer().HandleMessage(context.Background(), raw)
	out, err := json.Marshal(msg)
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out, &resp), string(out))
	return resp
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) rpcResponse {
	t.Helper()
	return call(t, s, 2, "tools/call", map[string]interface{}{"name": name, "arguments": args})
}

func TestServer_ListTools(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, 1, "tools/list", map[string]interface{}{})
	require.Nil(t, resp.Error)

	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
		assert.Contains(t, string(tool.InputSchema), `"type"`, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		adb.QueryToolName, adb.SchemaToolName, adb.TransactionToolName, AgentChatTool,
	}, names)
}

func TestServer_CallQueryTool(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, adb.QueryToolName, map[string]interface{}{
		"query": "SELECT department_name FROM departments ORDER BY department_id",
	})
	require.Nil(t, resp.Error)
	require.Len(t, resp.Result.Content, 1)
	assert.False(t, resp.Result.IsError)

	var result struct {
		Status   string `json:"status"`
		RowCount int    `json:"row_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &result))
	assert.Equal(t, adb.StatusSuccess, result.Status)
	assert.Equal(t, 5, result.RowCount)
}

func TestServer_ToolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		contains string
	}{
		{"schema violation", adb.QueryToolName, map[string]interface{}{"query": ""}, "invalid arguments"},
		{"unknown operation", adb.TransactionToolName, map[string]interface{}{"operation": "nope"}, "invalid arguments"},
		{"rejected statement", adb.QueryToolName, map[string]interface{}{"query": "DROP TABLE employees"}, "ORA-01031"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, tt.tool, tt.args)
			require.Nil(t, resp.Error)
			assert.True(t, resp.Result.IsError)
			require.NotEmpty(t, resp.Result.Content)
			assert.Contains(t, resp.Result.Content[0].Text, tt.contains)
		})
	}
}

func TestServer_AgentChat(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, AgentChatTool, map[string]interface{}{
		"query":      "list employees",
		"session_id": "mcp-1",
	})
	require.Nil(t, resp.Error)
	require.NotEmpty(t, resp.Result.Content)
	assert.False(t, resp.Result.IsError)

	var out agent.Response
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &out))
	assert.Equal(t, "mcp-1", out.SessionID)
	assert.Contains(t, out.Response, "Retrieved 6 records")

	resp = callTool(t, s, AgentChatTool, map[string]interface{}{})
	assert.True(t, resp.Result.IsError, fmt.Sprintf("%+v", resp))
}
