// Package app wires the configuration, database, tools and agent together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/agent"
	"github.com/masato25/aika-adb/pkg/apitools"
	"github.com/masato25/aika-adb/pkg/gateway"
	"github.com/masato25/aika-adb/pkg/llm"
	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/mcp"
	"github.com/masato25/aika-adb/pkg/router"
	"github.com/masato25/aika-adb/pkg/session"
	"github.com/masato25/aika-adb/pkg/tools"
	"github.com/masato25/aika-adb/pkg/web"
)

// App application instance
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *adb.Manager
	Registry *tools.Registry
	Router   *router.Router
	LLM      *llm.Client
	Agent    *agent.Agent
}

// LoadConfig reads .env files (when present) into the environment, then
// loads and validates the YAML configuration.
func LoadConfig(configPath string, envFiles ...string) (*config.Config, []string, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, warnings, nil
}

// New builds every component from cfg. log may be nil, in which case one is
// created from the logging section.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		var err error
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	a := &App{Config: cfg, Logger: log, Registry: tools.NewRegistry()}
	a.Registry.SetCache(cfg.Tools.CacheResults)

	if cfg.Tools.EnableOracle {
		db, err := adb.Open(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.DB = db
		if err := a.Registry.Register(adb.Tools(db)...); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register database tools: %w", err)
		}
	}

	if cfg.Tools.EnableAPI {
		client := apitools.NewClient(cfg.API, cfg.Security.BlockedHosts, log)
		if err := a.Registry.Register(apitools.Tools(client)...); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register API tools: %w", err)
		}
	}

	var rules *router.Rules
	if cfg.Tools.RulesFile != "" {
		var err error
		rules, err = router.LoadRules(cfg.Tools.RulesFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load routing rules: %w", err)
		}
		log.Infow("routing rules loaded", "file", cfg.Tools.RulesFile)
	}
	a.Router = router.New(cfg.Database.Type, rules, log)

	client, err := llm.NewClient(cfg.LLM, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.LLM = client
	if !client.Enabled() {
		log.Warnw("LLM service not configured, AI answers use the fallback reply", "provider", cfg.LLM.Provider)
	}

	a.Agent = agent.New(agent.Options{
		Config:   cfg,
		Registry: a.Registry,
		DB:       a.DB,
		Router:   a.Router,
		LLM:      a.LLM,
		Sessions: session.NewStore(cfg.Tools.HistoryLimit),
		Logger:   log,
	})

	log.Infow("application initialized",
		"database", cfg.Database.Type,
		"tools", a.Registry.Names(),
		"llm_provider", cfg.LLM.Provider,
	)
	return a, nil
}

// WebServer returns the chat API server.
func (a *App) WebServer() *web.APIServer {
	return web.NewAPIServer(a.Config, a.Agent, a.Logger)
}

// Gateway returns the REST tool gateway.
func (a *App) Gateway() *gateway.Server {
	return gateway.New(a.Registry, a.Config.Security.AllowedOrigins, a.Logger)
}

// MCPServer returns the MCP stdio server.
func (a *App) MCPServer() *mcp.Server {
	return mcp.NewServer(a.Config.App.Name, a.Config.App.Version, a.Registry, a.Agent, a.Logger)
}

// WebAddr listen address of the chat API.
func (a *App) WebAddr() string {
	return fmt.Sprintf("%s:%d", a.Config.App.Host, a.Config.App.Port)
}

// GatewayAddr listen address of the tool gateway.
func (a *App) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", a.Config.App.Host, a.Config.App.GatewayPort)
}

// Close releases the database and the routing rules.
func (a *App) Close() error {
	var result *multierror.Error
	if a.Router != nil {
		a.Router.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close database: %w", err))
		}
	}
	// stdout and stderr sinks report EINVAL on sync
	_ = a.Logger.Sync()
	return result.ErrorOrNil()
}
