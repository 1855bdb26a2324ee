// Package gateway serves the tool registry as a small REST API so other agents
// can call the database and HTTP tools directly.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/tools"
)

const maxBodyBytes = 1 << 20

// Server REST tool gateway
type Server struct {
	router   *mux.Router
	registry *tools.Registry
	logger   *logger.Logger
	started  time.Time
}

type errorBody struct {
	Error string `json:"error"`
}

// New creates a gateway over the registry. allowedOrigins feeds the CORS
// middleware; empty allows every origin.
func New(registry *tools.Registry, allowedOrigins []string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		logger:   log.Named("gateway"),
		started:  time.Now(),
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the gateway.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	v1.HandleFunc("/tools/{name}", s.handleCallTool).Methods(http.MethodPost)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	v1.HandleFunc("/tools/{name}", preflight).Methods(http.MethodOptions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"tools":          s.registry.Len(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": s.registry.List(),
	})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.registry.Get(name); !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown tool: " + name})
		return
	}

	args := map[string]interface{}{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body: " + err.Error()})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be a JSON object: " + err.Error()})
			return
		}
	}

	start := time.Now()
	result, err := s.registry.Call(r.Context(), name, args)
	if err != nil {
		s.logger.ToolExecution(name, "error", time.Since(start))
		var verr *tools.ValidationError
		switch {
		case errors.As(err, &verr):
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error()})
		case errors.Is(err, tools.ErrToolNotFound):
			s.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		default:
			s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		}
		return
	}

	status := "success"
	if !result.OK() {
		status = "error"
	}
	s.logger.ToolExecution(name, status, time.Since(start))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("failed to encode response", "error", err)
	}
}
