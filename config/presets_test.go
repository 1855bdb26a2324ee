package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresets_Order(t *testing.T) {
	var names []string
	for _, p := range Presets() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"development", "production", "testing", "demo"}, names)
}

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		name        string
		wantLevel   string
		wantTimeout string
		wantRetries string
		wantCache   string
	}{
		{"Development", "debug", "30", "3", "true"},
		{"production", "info", "15", "5", "true"},
		{"TESTING", "warn", "60", "1", "false"},
		{"demo", "info", "20", "2", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"LOG_LEVEL", "API_TIMEOUT", "API_MAX_RETRIES", "CACHE_TOOL_RESULTS", "ENVIRONMENT"} {
				t.Setenv(k, "")
			}

			p, err := ApplyPreset(tt.name)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLevel, os.Getenv("LOG_LEVEL"))
			assert.Equal(t, tt.wantTimeout, os.Getenv("API_TIMEOUT"))
			assert.Equal(t, tt.wantRetries, os.Getenv("API_MAX_RETRIES"))
			assert.Equal(t, tt.wantCache, os.Getenv("CACHE_TOOL_RESULTS"))
			assert.Equal(t, p.Name, os.Getenv("ENVIRONMENT"))
		})
	}
}

func TestApplyPreset_Unknown(t *testing.T) {
	_, err := ApplyPreset("staging")
	assert.Error(t, err)
}

func TestApplyPreset_FeedsLoadConfig(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "API_TIMEOUT", "API_MAX_RETRIES", "CACHE_TOOL_RESULTS", "ENVIRONMENT"} {
		t.Setenv(k, "")
	}
	_, err := ApplyPreset("testing")
	require.NoError(t, err)

	cfg, err := LoadConfig("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.API.TimeoutSeconds)
	assert.Equal(t, 1, cfg.API.MaxRetries)
	assert.False(t, cfg.Tools.CacheResults)
	assert.Equal(t, "testing", cfg.App.Environment)
}
