// Package agent turns chat messages into tool calls and a combined answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iancoleman/orderedmap"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/apitools"
	"github.com/masato25/aika-adb/pkg/llm"
	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/router"
	"github.com/masato25/aika-adb/pkg/session"
	"github.com/masato25/aika-adb/pkg/tools"
)

// Response status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SystemStatusTool names the pseudo tool recorded for status reports.
const SystemStatusTool = "system_status_monitor"

// DefaultReply is returned when no part of the agent produced text.
const DefaultReply = "How can I assist you?"

// Response the answer to one chat message
type Response struct {
	SessionID      string              `json:"session_id"`
	Response       string              `json:"response"`
	ToolExecutions []session.Execution `json:"tool_executions"`
	Analysis       router.Analysis     `json:"analysis"`
	Timestamp      string              `json:"timestamp"`
	ExecutionTime  float64             `json:"execution_time"`
	Status         string              `json:"status"`
	Error          string              `json:"error,omitempty"`
}

// Status health of the agent's dependencies
type Status struct {
	Database           bool     `json:"database"`
	DatabaseDriver     string   `json:"database_driver"`
	AIService          bool     `json:"ai_service"`
	AIProvider         string   `json:"ai_provider"`
	AIModel            string   `json:"ai_model"`
	AvailableTools     int      `json:"available_tools"`
	Tools              []string `json:"tools"`
	ActiveTransactions int      `json:"active_transactions"`
	Sessions           int      `json:"sessions"`
	Server             string   `json:"server"`
	Timestamp          string   `json:"timestamp"`
}

// Options dependencies of an Agent. DB and LLM may be nil.
type Options struct {
	Config   *config.Config
	Registry *tools.Registry
	DB       *adb.Manager
	Router   *router.Router
	LLM      *llm.Client
	Sessions *session.Store
	Logger   *logger.Logger
}

// Agent orchestrates the database, HTTP and completion tools.
type Agent struct {
	cfg      *config.Config
	registry *tools.Registry
	db       *adb.Manager
	router   *router.Router
	llm      *llm.Client
	sessions *session.Store
	logger   *logger.Logger
}

// New creates an agent.
func New(opts Options) *Agent {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	rt := opts.Router
	if rt == nil {
		rt = router.New(cfg.Database.Type, nil, log)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(cfg.Tools.HistoryLimit)
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Agent{
		cfg:      cfg,
		registry: registry,
		db:       opts.DB,
		router:   rt,
		llm:      opts.LLM,
		sessions: sessions,
		logger:   log.Named("agent"),
	}
}

// Sessions exposes the session store.
func (a *Agent) Sessions() *session.Store { return a.sessions }

// Registry exposes the tool registry.
func (a *Agent) Registry() *tools.Registry { return a.registry }

// Execute answers one message, recording the exchange under sessionID.
func (a *Agent) Execute(ctx context.Context, sessionID, query string) *Response {
	start := time.Now()
	if sessionID == "" {
		sessionID = session.NewID()
	}
	query = strings.TrimSpace(query)

	a.sessions.AddMessage(sessionID, session.RoleUser, query)

	analysis := a.router.Analyze(query)
	resp := &Response{
		SessionID:      sessionID,
		ToolExecutions: []session.Execution{},
		Analysis:       analysis,
		Timestamp:      start.Format(time.RFC3339),
		Status:         StatusSuccess,
	}

	var parts []string
	if analysis.IsDatabaseQuery || isSQL(query) {
		parts = append(parts, a.handleDatabase(ctx, resp, query, analysis))
	}
	if analysis.IsAPIRequest {
		parts = append(parts, a.handleAPI(ctx, resp, query))
	}
	if analysis.IsSystemQuery {
		parts = append(parts, a.handleSystem(ctx, resp, query))
	}
	if nonEmpty(parts) == 0 || analysis.RequiresAI {
		parts = append(parts, a.handleAI(ctx, query))
	}

	if err := ctx.Err(); err != nil {
		resp.Status = StatusError
		resp.Error = err.Error()
		resp.Response = fmt.Sprintf("Error processing request: %v", err)
	} else {
		resp.Response = joinParts(parts)
	}
	resp.ExecutionTime = time.Since(start).Seconds()

	a.sessions.AddMessage(sessionID, session.RoleAssistant, resp.Response)

	names := make([]string, 0, len(resp.ToolExecutions))
	for _, exec := range resp.ToolExecutions {
		names = append(names, exec.ToolName)
	}
	a.logger.AgentInteraction(sessionID, query, names, time.Since(start))
	return resp
}

func (a *Agent) handleDatabase(ctx context.Context, resp *Response, query string, analysis router.Analysis) string {
	lower := strings.ToLower(query)

	switch {
	case isSQL(query):
		return a.runSQL(ctx, resp, query, "custom_sql")

	case analysis.Intent == router.IntentSchemaExploration ||
		containsAny(lower, "schema", "structure", "tables", "metadata"):
		result, err := a.callTool(ctx, resp, adb.SchemaToolName, map[string]interface{}{})
		if err != nil {
			return fmt.Sprintf("Failed to retrieve schema information: %v", err)
		}
		r := result.(*adb.Result)
		if !r.OK() {
			return fmt.Sprintf("Failed to retrieve schema information: %s", r.ErrorMessage)
		}
		names := tableNames(r)
		if len(names) == 0 {
			return "Database schema retrieved but no tables found."
		}
		return fmt.Sprintf("Database schema retrieved successfully. Found %d tables: %s. "+
			"The schema includes table structures, column definitions, and relationships.",
			len(names), preview(names, 5))

	case analysis.Intent == router.IntentDataRetrieval ||
		containsAny(lower, "employee", "department", "order", "customer", "show", "get", "list"):
		sql := a.router.SQL(query, analysis)
		result, err := a.callTool(ctx, resp, adb.QueryToolName, map[string]interface{}{
			"query":      sql,
			"session_id": resp.SessionID,
		})
		if err != nil {
			return fmt.Sprintf("Query execution failed: %v", err)
		}
		r := result.(*adb.Result)
		if !r.OK() {
			return fmt.Sprintf("Query execution failed: %s", r.ErrorMessage)
		}
		text := fmt.Sprintf("Query executed successfully. Retrieved %d records from the database.", r.RowCount)
		if r.RowCount > 0 && len(r.Columns) > 0 {
			text += " Columns: " + preview(r.Columns, 5)
		}
		return text

	case containsAny(lower, "select", "sql"):
		return a.runSQL(ctx, resp, query, "custom_sql")

	default:
		if _, err := a.callTool(ctx, resp, adb.SchemaToolName, map[string]interface{}{}); err != nil {
			a.logger.Warnw("schema exploration failed", "error", err)
		}
		return "I'll show you the available database information."
	}
}

// runSQL executes the statement embedded in the message, or the routed SQL
// when the message holds none.
func (a *Agent) runSQL(ctx context.Context, resp *Response, query, intent string) string {
	sql := extractSQL(query)
	if sql == "" {
		sql = a.router.SQL(query, a.router.Analyze(query))
	}
	result, err := a.callTool(ctx, resp, adb.QueryToolName, map[string]interface{}{
		"query":      sql,
		"session_id": resp.SessionID,
	})
	if err != nil {
		return fmt.Sprintf("SQL execution failed: %v", err)
	}
	r := result.(*adb.Result)
	if !r.OK() {
		return fmt.Sprintf("SQL execution failed: %s", r.ErrorMessage)
	}
	if r.RowsAffected > 0 {
		return fmt.Sprintf("SQL statement executed successfully. %d rows affected.", r.RowsAffected)
	}
	return fmt.Sprintf("SQL query executed successfully. Retrieved %d records.", r.RowCount)
}

func (a *Agent) handleAPI(ctx context.Context, resp *Response, query string) string {
	lower := strings.ToLower(query)

	var (
		name string
		args map[string]interface{}
	)
	if containsAny(lower, "complex", "auth") {
		name = apitools.HTTPRequestName
		args = map[string]interface{}{
			"url":    a.cfg.API.AdvancedURL,
			"method": "GET",
			"auth":   map[string]interface{}{"type": "bearer", "token": a.cfg.API.AdvancedToken},
		}
	} else {
		name = apitools.APICallerName
		args = map[string]interface{}{
			"url":    a.cfg.API.SampleURL,
			"method": "GET",
		}
	}

	result, err := a.callTool(ctx, resp, name, args)
	if err != nil {
		return fmt.Sprintf("API request failed: %v", err)
	}
	r := result.(*apitools.Response)
	if !r.OK() {
		msg := r.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Sprintf("API request failed: %s", msg)
	}
	switch data := r.Data.(type) {
	case *orderedmap.OrderedMap, map[string]interface{}:
		return "API request successful. Received structured data."
	case []interface{}:
		return fmt.Sprintf("API request successful. Received %d items.", len(data))
	default:
		return "API request completed successfully."
	}
}

func (a *Agent) handleSystem(ctx context.Context, resp *Response, query string) string {
	start := time.Now()
	status := a.Status(ctx)

	exec := a.sessions.AddExecution(resp.SessionID, session.Execution{
		ToolName:   SystemStatusTool,
		Input:      map[string]interface{}{"query": query, "intent": "system_monitoring"},
		Output:     status,
		Status:     StatusSuccess,
		DurationMs: durationMs(start),
	})
	resp.ToolExecutions = append(resp.ToolExecutions, exec)

	var b strings.Builder
	b.WriteString("System Status Report:\n")
	fmt.Fprintf(&b, "- Database: %s\n", connected(status.Database))
	fmt.Fprintf(&b, "- AI Service: %s\n", connected(status.AIService))
	fmt.Fprintf(&b, "- Available Tools: %d\n", status.AvailableTools)
	b.WriteString("- Server: Running\n")
	fmt.Fprintf(&b, "- Timestamp: %s", status.Timestamp)

	if strings.Contains(strings.ToLower(query), "tool") && len(status.Tools) > 0 {
		fmt.Fprintf(&b, "\n\nAvailable Tools: %s", strings.Join(status.Tools, ", "))
	}
	return b.String()
}

func (a *Agent) handleAI(ctx context.Context, query string) string {
	if !a.llm.Enabled() {
		return llm.DisabledReply
	}
	reply, err := a.llm.Chat(ctx, a.cfg.LLM.SystemPrompt, query)
	if err != nil {
		a.logger.Errorw("AI response generation failed", "error", err)
		return llm.FailureReply
	}
	if reply == "" {
		return "No response generated"
	}
	return reply
}

// callTool runs a registered tool under the tool timeout and records the
// execution. Tools that are not registered or reject their arguments return
// an error, which is recorded as a failed execution.
func (a *Agent) callTool(ctx context.Context, resp *Response, name string, args map[string]interface{}) (tools.Result, error) {
	start := time.Now()
	if secs := a.cfg.Tools.TimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	result, err := a.registry.Call(ctx, name, args)

	exec := session.Execution{
		ToolName:   name,
		Input:      args,
		Status:     StatusError,
		DurationMs: durationMs(start),
	}
	switch {
	case err != nil:
		exec.Output = map[string]interface{}{"error": err.Error()}
	default:
		exec.Output = result
		if result.OK() {
			exec.Status = StatusSuccess
		}
	}
	exec = a.sessions.AddExecution(resp.SessionID, exec)
	resp.ToolExecutions = append(resp.ToolExecutions, exec)
	a.logger.ToolExecution(name, exec.Status, time.Since(start))

	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			return nil, fmt.Errorf("%s is not enabled", name)
		}
		return nil, err
	}
	return result, nil
}

// Status reports database and completion service health.
func (a *Agent) Status(ctx context.Context) Status {
	st := Status{
		AvailableTools: a.registry.Len(),
		Tools:          a.registry.Names(),
		Sessions:       len(a.sessions.Sessions()),
		Server:         "running",
		Timestamp:      time.Now().Format(time.RFC3339),
	}
	if a.db != nil {
		st.Database = a.db.TestConnection(ctx) == nil
		st.DatabaseDriver = a.db.Driver()
		st.ActiveTransactions = a.db.ActiveTransactions()
	}
	if a.llm != nil {
		st.AIService = a.llm.Enabled()
		st.AIProvider = a.llm.Provider()
		st.AIModel = a.llm.Model()
	}
	return st
}

// Tools describes the registered tools.
func (a *Agent) Tools() []tools.Info {
	return a.registry.List()
}

// Reset clears a session's history, rolls back its open transaction and
// drops cached tool results.
func (a *Agent) Reset(sessionID string) bool {
	if a.db != nil && a.db.InTransaction(sessionID) {
		if err := a.db.Rollback(sessionID); err != nil {
			a.logger.Warnw("rollback on reset failed", "session_id", sessionID, "error", err)
		}
	}
	a.registry.SetCache(a.cfg.Tools.CacheResults)
	existed := a.sessions.Reset(sessionID)
	a.logger.Infow("session reset", "session_id", sessionID, "existed", existed)
	return existed
}

func tableNames(r *adb.Result) []string {
	names := make([]string, 0, len(r.Data))
	for i := range r.Data {
		if v, ok := r.Value(i, "TABLE_NAME"); ok {
			names = append(names, strings.ToLower(fmt.Sprint(v)))
		}
	}
	return names
}

func preview(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:n], ", ") + "..."
}

func connected(ok bool) string {
	if ok {
		return "Connected"
	}
	return "Disconnected"
}

func joinParts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return DefaultReply
	}
	return strings.Join(kept, "\n\n")
}

func nonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if p != "" {
			n++
		}
	}
	return n
}

func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// isSQL reports whether the message itself is a SQL statement.
func isSQL(query string) bool {
	switch adb.StatementType(query) {
	case "SELECT", "WITH", "INSERT", "UPDATE", "DELETE":
		return true
	}
	return false
}

// extractSQL returns the message from its first SELECT or WITH keyword on,
// or the whole message when it already is a statement.
func extractSQL(query string) string {
	if isSQL(query) {
		return strings.TrimSpace(query)
	}
	lower := strings.ToLower(query)
	for _, kw := range []string{"select ", "with "} {
		if i := strings.Index(lower, kw); i >= 0 {
			return strings.TrimSpace(query[i:])
		}
	}
	return ""
}
