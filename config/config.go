package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	App      AppConfig      `yaml:"app"`
	LLM      LLMConfig      `yaml:"llm"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Type     string `yaml:"type" env:"DB_TYPE"`
	Path     string `yaml:"path" env:"DB_PATH"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME"`
	SkipSeed bool   `yaml:"skip_seed" env:"DB_SKIP_SEED"`
}

// AppConfig application configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Host        string `yaml:"host" env:"HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	GatewayPort int    `yaml:"gateway_port" env:"GATEWAY_PORT"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	Debug       bool   `yaml:"debug" env:"DEBUG"`
}

// LLMConfig LLM configuration
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER"`
	Model          string  `yaml:"model" env:"LLM_MODEL"`
	APIKey         string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL        string  `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Host           string  `yaml:"host" env:"LLM_HOST"` // local LLM host
	Port           int     `yaml:"port" env:"LLM_PORT"` // local LLM port
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT"`
	Temperature    float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens      int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	SystemPrompt   string  `yaml:"system_prompt"`
}

// APIConfig outbound HTTP tool configuration
type APIConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"API_TIMEOUT"`
	MaxRetries     int    `yaml:"max_retries" env:"API_MAX_RETRIES"`
	RetryDelayMs   int    `yaml:"retry_delay_ms" env:"API_RETRY_DELAY_MS"`
	UserAgent      string `yaml:"user_agent" env:"API_USER_AGENT"`
	SampleURL      string `yaml:"sample_url" env:"API_SAMPLE_URL"`
	AdvancedURL    string `yaml:"advanced_url" env:"API_ADVANCED_URL"`
	AdvancedToken  string `yaml:"advanced_token" env:"API_ADVANCED_TOKEN"`
}

// SecurityConfig security configuration
type SecurityConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MaxQueryLength  int      `yaml:"max_query_length" env:"MAX_QUERY_LENGTH"`
	BlockedKeywords []string `yaml:"blocked_keywords" env:"BLOCKED_KEYWORDS"`
	BlockedHosts    []string `yaml:"blocked_hosts" env:"BLOCKED_HOSTS"`
}

// LoggingConfig logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`
	Format   string `yaml:"format" env:"LOG_FORMAT"`
	Output   string `yaml:"output" env:"LOG_OUTPUT"`
	FilePath string `yaml:"file_path" env:"LOG_FILE"`
}

// ToolsConfig tool toggles
type ToolsConfig struct {
	EnableOracle   bool   `yaml:"enable_oracle" env:"ENABLE_ORACLE_TOOLS"`
	EnableAPI      bool   `yaml:"enable_api" env:"ENABLE_API_TOOLS"`
	CacheResults   bool   `yaml:"cache_results" env:"CACHE_TOOL_RESULTS"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"TOOL_TIMEOUT"`
	HistoryLimit   int    `yaml:"history_limit" env:"TOOL_HISTORY_LIMIT"`
	RulesFile      string `yaml:"rules_file" env:"ROUTER_RULES_FILE"`
}

var supportedDatabases = []string{"sqlite3", "postgres", "pgx", "mysql"}

var supportedProviders = []string{"openai", "local", "ollama"}

// Default returns the built-in configuration used before the YAML file and the
// environment are applied.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "sqlite3",
			Path: "./data/enterprise_db.sqlite",
		},
		App: AppConfig{
			Name:        "aika-adb",
			Version:     "1.0.0",
			Host:        "0.0.0.0",
			Port:        8000,
			GatewayPort: 8001,
			Environment: "development",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			TimeoutSeconds: 60,
			Temperature:    0.7,
			MaxTokens:      500,
			SystemPrompt: "You are an expert Oracle Autonomous Database assistant. " +
				"Provide concise, technical responses about database operations, " +
				"schema design, and data management.",
		},
		API: APIConfig{
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RetryDelayMs:   200,
			UserAgent:      "Aika-ADB-Agent/1.0",
			SampleURL:      "https://jsonplaceholder.typicode.com/posts/1",
			AdvancedURL:    "https://api.example.com/data",
			AdvancedToken:  "sample_token",
		},
		Security: SecurityConfig{
			AllowedOrigins:  []string{"*"},
			MaxQueryLength:  10000,
			BlockedKeywords: []string{"DROP", "TRUNCATE", "ALTER", "CREATE", "GRANT", "REVOKE"},
			BlockedHosts:    []string{"localhost", "127.0.0.1", "0.0.0.0", "::1"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Tools: ToolsConfig{
			EnableOracle:   true,
			EnableAPI:      true,
			CacheResults:   true,
			TimeoutSeconds: 60,
			HistoryLimit:   100,
		},
	}
}

// LoadConfig loads the configuration file. A missing file is not an error:
// the defaults and the environment are used instead.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// overrideWithEnv applies environment variables on top of the file values.
func overrideWithEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	config.Database.Type = strings.ToLower(config.Database.Type)
	config.LLM.Provider = strings.ToLower(config.LLM.Provider)
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	return nil
}

// Validate checks the configuration. Problems that prevent start-up are
// returned as a combined error; softer issues are returned as warnings.
func (c *Config) Validate() (warnings []string, err error) {
	var result *multierror.Error

	if !contains(supportedDatabases, c.Database.Type) {
		result = multierror.Append(result, fmt.Errorf("unsupported database type: %s", c.Database.Type))
	}
	if c.Database.Type == "sqlite3" && c.Database.Path == "" {
		result = multierror.Append(result, errors.New("database path is required for sqlite3"))
	}
	if !contains(supportedProviders, c.LLM.Provider) {
		result = multierror.Append(result, fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 1 {
		result = multierror.Append(result, fmt.Errorf("max_tokens must be at least 1, got %d", c.LLM.MaxTokens))
	}
	if c.API.TimeoutSeconds < 1 {
		result = multierror.Append(result, fmt.Errorf("api timeout must be at least 1 second, got %d", c.API.TimeoutSeconds))
	}
	if c.API.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("api max_retries cannot be negative, got %d", c.API.MaxRetries))
	}
	if c.Security.MaxQueryLength < 1 {
		result = multierror.Append(result, fmt.Errorf("max_query_length must be positive, got %d", c.Security.MaxQueryLength))
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		warnings = append(warnings, "OPENAI_API_KEY is not set; AI responses will use the fallback text")
	}
	if c.App.Environment == "production" && c.App.Debug {
		warnings = append(warnings, "debug mode is enabled in production")
	}
	if contains(c.Security.AllowedOrigins, "*") && c.App.Environment == "production" {
		warnings = append(warnings, "CORS allows every origin in production")
	}
	if !c.Tools.EnableOracle && !c.Tools.EnableAPI {
		warnings = append(warnings, "all tools are disabled")
	}

	return warnings, result.ErrorOrNil()
}

// Summary returns a redacted view of the configuration for status pages.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"environment": c.App.Environment,
		"debug":       c.App.Debug,
		"database": map[string]interface{}{
			"type": c.Database.Type,
			"path": c.Database.Path,
		},
		"llm": map[string]interface{}{
			"provider":        c.LLM.Provider,
			"model":           c.LLM.Model,
			"api_key_set":     c.LLM.APIKey != "",
			"temperature":     c.LLM.Temperature,
			"max_tokens":      c.LLM.MaxTokens,
			"timeout_seconds": c.LLM.TimeoutSeconds,
		},
		"api": map[string]interface{}{
			"timeout_seconds": c.API.TimeoutSeconds,
			"max_retries":     c.API.MaxRetries,
		},
		"tools": map[string]interface{}{
			"oracle_enabled": c.Tools.EnableOracle,
			"api_enabled":    c.Tools.EnableAPI,
			"cache_results":  c.Tools.CacheResults,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
	}
}

// GetDatabaseDSN returns the connection string for the configured driver.
func (c *Config) GetDatabaseDSN() string {
	switch c.Database.Type {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName)
	case "pgx":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName)
	case "sqlite3":
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", c.Database.Path)
	default:
		return ""
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
