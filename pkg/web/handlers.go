package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/session"
)

// Example a canned question shown by the front-end
type Example struct {
	Title    string `json:"title"`
	Query    string `json:"query"`
	Category string `json:"category"`
}

// Examples the sample questions offered on the chat page
var Examples = []Example{
	{Title: "Show all employees", Query: "Show me all employees in the database", Category: "Database"},
	{Title: "Department information", Query: "What departments do we have?", Category: "Database"},
	{Title: "Recent orders", Query: "Show me the latest orders", Category: "Database"},
	{Title: "Database schema", Query: "What tables are available in the database?", Category: "Schema"},
	{Title: "Test API call", Query: "Make a test API call to get sample data", Category: "API"},
	{Title: "Ask anything", Query: "What can you help me with?", Category: "General"},
}

// envelope uniform API response body
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type chatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, code int, format string, args ...interface{}) {
	c.JSON(code, envelope{Success: false, Error: fmt.Sprintf(format, args...)})
}

func (s *APIServer) handleIndex(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		s.logger.Errorw("failed to read index page", "error", err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *APIServer) handleHealth(c *gin.Context) {
	ok(c, gin.H{
		"status":  "healthy",
		"name":    s.config.App.Name,
		"version": s.config.App.Version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *APIServer) handleStatus(c *gin.Context) {
	ok(c, s.agent.Status(c.Request.Context()))
}

func (s *APIServer) handleTools(c *gin.Context) {
	ok(c, s.agent.Tools())
}

// handleSchema returns the schema overview, or one table with ?table=.
func (s *APIServer) handleSchema(c *gin.Context) {
	args := map[string]interface{}{}
	if table := c.Query("table"); table != "" {
		args["table_name"] = table
	}

	result, err := s.agent.Registry().Call(c.Request.Context(), adb.SchemaToolName, args)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "schema explorer unavailable: %v", err)
		return
	}
	if r, isADB := result.(*adb.Result); isADB && !r.OK() {
		code := http.StatusInternalServerError
		if r.ErrorCode == adb.CodeQueryFailed {
			code = http.StatusNotFound
		}
		fail(c, code, "%s: %s", r.ErrorCode, r.ErrorMessage)
		return
	}
	ok(c, result)
}

func (s *APIServer) handleExamples(c *gin.Context) {
	ok(c, Examples)
}

func (s *APIServer) handlePresets(c *gin.Context) {
	ok(c, config.Presets())
}

func (s *APIServer) handleApplyPreset(c *gin.Context) {
	name := c.Param("name")
	if _, found := config.LookupPreset(name); !found {
		fail(c, http.StatusNotFound, "unknown preset: %s", name)
		return
	}
	preset, err := config.ApplyPreset(name)
	if err != nil {
		fail(c, http.StatusInternalServerError, "%v", err)
		return
	}
	s.logger.Infow("preset applied", "preset", preset.Name)
	ok(c, preset)
}

func (s *APIServer) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if limit := s.config.Security.MaxQueryLength; limit > 0 && len(req.Message) > limit {
		fail(c, http.StatusBadRequest, "message exceeds %d characters", limit)
		return
	}

	resp := s.agent.Execute(c.Request.Context(), req.SessionID, req.Message)
	ok(c, resp)
}

func (s *APIServer) handleSessions(c *gin.Context) {
	ok(c, s.agent.Sessions().Sessions())
}

func (s *APIServer) handleMessages(c *gin.Context) {
	ok(c, s.agent.Sessions().Messages(c.Param("id")))
}

func (s *APIServer) handleExecutions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ok(c, s.agent.Sessions().Recent(c.Param("id"), limit))
}

func (s *APIServer) handleMetrics(c *gin.Context) {
	id := c.Param("id")
	metrics, found := s.agent.Sessions().Metrics(id)
	if !found {
		fail(c, http.StatusNotFound, "session not found: %s", id)
		return
	}
	ok(c, metrics)
}

// handleEvents streams session changes as server-sent events.
func (s *APIServer) handleEvents(c *gin.Context) {
	id := c.Param("id")
	history, events, unsubscribe := s.agent.Sessions().Subscribe(id)
	defer unsubscribe()

	for i := range history {
		c.SSEvent(session.EventMessage, session.Event{Type: session.EventMessage, SessionID: id, Message: &history[i]})
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (s *APIServer) handleReset(c *gin.Context) {
	id := c.Param("id")
	existed := s.agent.Reset(id)
	ok(c, gin.H{"session_id": id, "reset": existed})
}
