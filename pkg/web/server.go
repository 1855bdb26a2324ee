// Package web serves the chat API and the prototype page.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/agent"
	"github.com/masato25/aika-adb/pkg/logger"
)

//go:embed static/index.html
var static embed.FS

// APIServer chat API server
type APIServer struct {
	router *gin.Engine
	config *config.Config
	agent  *agent.Agent
	logger *logger.Logger
}

// NewAPIServer creates the server and registers its routes.
func NewAPIServer(cfg *config.Config, a *agent.Agent, log *logger.Logger) *APIServer {
	if log == nil {
		log = logger.NewNop()
	}
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		router: gin.New(),
		config: cfg,
		agent:  a,
		logger: log.Named("web"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.Use(cors.New(corsConfig(cfg.Security.AllowedOrigins)))
	s.setupRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	}
	return c
}

func (s *APIServer) setupRoutes() {
	s.router.GET("/", s.handleIndex)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/tools", s.handleTools)
		api.GET("/schema", s.handleSchema)
		api.GET("/examples", s.handleExamples)

		api.GET("/presets", s.handlePresets)
		api.POST("/presets/:name", s.handleApplyPreset)

		api.POST("/chat", s.handleChat)

		sessions := api.Group("/sessions")
		sessions.GET("", s.handleSessions)
		sessions.GET("/:id/messages", s.handleMessages)
		sessions.GET("/:id/executions", s.handleExecutions)
		sessions.GET("/:id/metrics", s.handleMetrics)
		sessions.GET("/:id/events", s.handleEvents)
		sessions.DELETE("/:id", s.handleReset)
	}
}

// Handler returns the http.Handler for the server.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context, addr string) error {
	return Serve(ctx, addr, s.router, s.logger)
}

// Serve runs h on addr until ctx is done. The tool gateway uses it too.
func Serve(ctx context.Context, addr string, h http.Handler, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server on %s failed: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infow("shutting down", "addr", addr)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
