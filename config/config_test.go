package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Type)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 10000, cfg.Security.MaxQueryLength)
	assert.True(t, cfg.Tools.EnableOracle)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  type: sqlite3
  path: /tmp/demo.sqlite
llm:
  provider: Ollama
  temperature: 0
  max_tokens: 42
tools:
  enable_api: false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/demo.sqlite", cfg.Database.Path)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, 42, cfg.LLM.MaxTokens)
	assert.False(t, cfg.Tools.EnableAPI)
	assert.True(t, cfg.Tools.EnableOracle, "keys absent from the file keep their defaults")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "api:\n  timeout_seconds: 10\n")
	t.Setenv("API_TIMEOUT", "15")
	t.Setenv("API_MAX_RETRIES", "5")
	t.Setenv("BLOCKED_HOSTS", "internal,metadata")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.API.TimeoutSeconds)
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, []string{"internal", "metadata"}, cfg.Security.BlockedHosts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [unterminated")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		wantWarns int
	}{
		{"defaults with key", func(c *Config) { c.LLM.APIKey = "sk-test" }, false, 0},
		{"missing key warns", func(c *Config) {}, false, 1},
		{"temperature too high", func(c *Config) { c.LLM.APIKey = "k"; c.LLM.Temperature = 2.5 }, true, 0},
		{"zero max tokens", func(c *Config) { c.LLM.APIKey = "k"; c.LLM.MaxTokens = 0 }, true, 0},
		{"unknown database", func(c *Config) { c.LLM.APIKey = "k"; c.Database.Type = "oracle" }, true, 0},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, true, 0},
		{"tools disabled", func(c *Config) {
			c.LLM.APIKey = "k"
			c.Tools.EnableAPI = false
			c.Tools.EnableOracle = false
		}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			warnings, err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, warnings, tt.wantWarns)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.LLM.Temperature = -1
	cfg.LLM.MaxTokens = 0
	cfg.API.TimeoutSeconds = 0

	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 errors occurred")
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "db"
	cfg.Database.Port = 5432
	cfg.Database.User = "scott"
	cfg.Database.Password = "tiger"
	cfg.Database.DBName = "adb"

	tests := []struct {
		dbType string
		want   string
	}{
		{"postgres", "host=db port=5432 user=scott password=tiger dbname=adb sslmode=disable"},
		{"pgx", "postgres://scott:tiger@db:5432/adb?sslmode=disable"},
		{"mysql", "scott:tiger@tcp(db:5432)/adb?parseTime=true"},
		{"sqlite3", "file:./data/enterprise_db.sqlite?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"},
		{"oracle", ""},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			cfg.Database.Type = tt.dbType
			assert.Equal(t, tt.want, cfg.GetDatabaseDSN())
		})
	}
}

func TestConfig_SummaryRedactsKey(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret"

	summary := cfg.Summary()
	llm := summary["llm"].(map[string]interface{})
	assert.Equal(t, true, llm["api_key_set"])
	assert.NotContains(t, llm, "api_key")
}
