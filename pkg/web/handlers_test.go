package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/agent"
	"github.com/masato25/aika-adb/pkg/tools"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *APIServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "web.sqlite")
	cfg.Security.MaxQueryLength = 100

	db, err := adb.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(adb.Tools(db)...))

	a := agent.New(agent.Options{Config: cfg, Registry: reg, DB: db})
	return NewAPIServer(cfg, a, nil)
}

func request(t *testing.T, s *APIServer, method, path string, body interface{}) (int, testEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Oracle ADB AI Agent")
}

func TestInfoRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path     string
		contains string
	}{
		{"/api/health", `"status":"healthy"`},
		{"/api/status", `"available_tools":3`},
		{"/api/tools", adb.TransactionToolName},
		{"/api/schema", `"total_tables":5`},
		{"/api/schema?table=departments", `"DEPARTMENT_NAME"`},
		{"/api/examples", "What departments do we have?"},
		{"/api/presets", `"production"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, env := request(t, s, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusOK, code)
			assert.True(t, env.Success)
			assert.Contains(t, string(env.Data), tt.contains)
		})
	}
}

func TestSchema_UnknownTable(t *testing.T) {
	s := newTestServer(t)

	code, env := request(t, s, http.MethodGet, "/api/schema?table=missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "table or view MISSING does not exist")
}

func TestApplyPreset(t *testing.T) {
	s := newTestServer(t)

	preset, found := config.LookupPreset("testing")
	require.True(t, found)
	for k := range preset.Env {
		// restores the variable after the test
		t.Setenv(k, os.Getenv(k))
	}

	code, env := request(t, s, http.MethodPost, "/api/presets/Testing", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, "false", os.Getenv("CACHE_TOOL_RESULTS"))

	code, env = request(t, s, http.MethodPost, "/api/presets/staging", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "unknown preset: staging", env.Error)
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	code, env := request(t, s, http.MethodPost, "/api/chat", map[string]string{"message": "list employees"})
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	var resp agent.Response
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.Response, "Retrieved 6 records")
	require.Len(t, resp.ToolExecutions, 1)

	code, env = request(t, s, http.MethodPost, "/api/chat",
		map[string]string{"message": "how many orders?", "session_id": resp.SessionID})
	require.Equal(t, http.StatusOK, code)

	code, env = request(t, s, http.MethodGet, "/api/sessions/"+resp.SessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, code)
	var msgs []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	assert.Len(t, msgs, 4)

	code, env = request(t, s, http.MethodGet, "/api/sessions/"+resp.SessionID+"/executions?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	var execs []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &execs))
	require.Len(t, execs, 1)
	assert.Equal(t, adb.QueryToolName, execs[0]["tool_name"])

	code, env = request(t, s, http.MethodGet, "/api/sessions/"+resp.SessionID+"/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"messages":4`)

	code, env = request(t, s, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), resp.SessionID)
}

func TestChat_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     interface{}
		contains string
	}{
		{"missing message", map[string]string{"session_id": "x"}, "invalid request"},
		{"too long", map[string]string{"message": strings.Repeat("a", 101)}, "message exceeds 100 characters"},
		{"not json", "plain text", "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := request(t, s, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tt.contains)
		})
	}
}

func TestSessionRoutes_Errors(t *testing.T) {
	s := newTestServer(t)

	code, env := request(t, s, http.MethodGet, "/api/sessions/nope/metrics", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found: nope", env.Error)

	code, _ = request(t, s, http.MethodGet, "/api/sessions/nope/executions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = request(t, s, http.MethodGet, "/api/sessions/nope/messages", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(env.Data))
}

func TestResetSession(t *testing.T) {
	s := newTestServer(t)
	_, env := request(t, s, http.MethodPost, "/api/chat", map[string]string{"message": "hello", "session_id": "r1"})
	require.True(t, env.Success)

	code, env := request(t, s, http.MethodDelete, "/api/sessions/r1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"session_id":"r1","reset":true}`, string(env.Data))

	_, env = request(t, s, http.MethodDelete, "/api/sessions/r1", nil)
	assert.JSONEq(t, `{"session_id":"r1","reset":false}`, string(env.Data))
}

func TestSessionEvents(t *testing.T) {
	s := newTestServer(t)
	s.agent.Sessions().AddMessage("e1", "user", "earlier question")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/e1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimPrefix(line, "event:")
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
			break
		}
	}
	assert.Equal(t, "message", event)
	assert.Contains(t, data, "earlier question")
}

func TestSessionEvents_LongHistory(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 40; i++ {
		s.agent.Sessions().AddMessage("e2", "user", fmt.Sprintf("question %d", i))
	}

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/e2/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var replayed []string
	for len(replayed) < 40 && scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data:") {
			replayed = append(replayed, line)
		}
	}
	require.Len(t, replayed, 40)
	assert.Contains(t, replayed[0], "question 0")
	assert.Contains(t, replayed[39], "question 39")
}
