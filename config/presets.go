package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Preset a named bundle of environment defaults
type Preset struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Env         map[string]string `json:"env"`
}

var presets = map[string]Preset{
	"development": {
		Name:        "development",
		Description: "Verbose logging and generous timeouts for local work",
		Env: map[string]string{
			"LOG_LEVEL":          "debug",
			"API_TIMEOUT":        "30",
			"API_MAX_RETRIES":    "3",
			"CACHE_TOOL_RESULTS": "true",
			"ENVIRONMENT":        "development",
		},
	},
	"production": {
		Name:        "production",
		Description: "Short timeouts and more retries",
		Env: map[string]string{
			"LOG_LEVEL":          "info",
			"API_TIMEOUT":        "15",
			"API_MAX_RETRIES":    "5",
			"CACHE_TOOL_RESULTS": "true",
			"ENVIRONMENT":        "production",
		},
	},
	"testing": {
		Name:        "testing",
		Description: "Quiet logs, a single attempt and no result caching",
		Env: map[string]string{
			"LOG_LEVEL":          "warn",
			"API_TIMEOUT":        "60",
			"API_MAX_RETRIES":    "1",
			"CACHE_TOOL_RESULTS": "false",
			"ENVIRONMENT":        "testing",
		},
	},
	"demo": {
		Name:        "demo",
		Description: "Balanced settings for demonstrations",
		Env: map[string]string{
			"LOG_LEVEL":          "info",
			"API_TIMEOUT":        "20",
			"API_MAX_RETRIES":    "2",
			"CACHE_TOOL_RESULTS": "true",
			"ENVIRONMENT":        "demo",
		},
	},
}

var presetOrder = []string{"development", "production", "testing", "demo"}

// Presets lists the deployment presets in a stable order.
func Presets() []Preset {
	list := make([]Preset, 0, len(presetOrder))
	for _, name := range presetOrder {
		list = append(list, presets[name])
	}
	return list
}

// LookupPreset finds a preset by name, ignoring case.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ApplyPreset sets the preset's variables in the process environment.
// It has no other effect; callers reload the configuration to pick the values up.
func ApplyPreset(name string) (Preset, error) {
	p, ok := LookupPreset(name)
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset: %s", name)
	}

	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := os.Setenv(k, p.Env[k]); err != nil {
			return Preset{}, fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return p, nil
}
