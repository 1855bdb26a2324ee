// Package llm wraps the chat completion providers used by the agent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/logger"
)

// Fallback answers used when no completion is available
const (
	DisabledReply = "I'm an Oracle ADB assistant. How can I help you with database operations?"
	FailureReply  = "I couldn't generate a response. Please try again later."
)

// ErrDisabled is returned when the provider has no credentials.
var ErrDisabled = errors.New("llm client is not configured")

// Client represents an LLM client
type Client struct {
	config     config.LLMConfig
	httpClient *http.Client
	openai     *openai.Client
	logger     *logger.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg config.LLMConfig, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Named("llm"),
	}

	switch cfg.Provider {
	case "openai", "local":
		opts := []option.RequestOption{
			option.WithHTTPClient(c.httpClient),
			option.WithMaxRetries(0),
		}
		if cfg.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		} else if cfg.Provider == "local" {
			opts = append(opts, option.WithAPIKey("local"))
		}
		if base := c.baseURL(); base != "" {
			opts = append(opts, option.WithBaseURL(base))
		}
		client := openai.NewClient(opts...)
		c.openai = &client
	case "ollama":
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	return c, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.config.Provider }

// Model returns the configured model name.
func (c *Client) Model() string { return c.config.Model }

// Enabled reports whether completions can be requested. The hosted OpenAI
// provider needs an API key; local providers are assumed reachable.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	if c.config.Provider == "openai" {
		return c.config.APIKey != ""
	}
	return true
}

// Chat sends a system prompt and a user message and returns the reply text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if system == "" {
		system = c.config.SystemPrompt
	}

	start := time.Now()
	var (
		reply string
		err   error
	)
	switch c.config.Provider {
	case "ollama":
		reply, err = c.ollamaChat(ctx, system, user)
	default:
		reply, err = c.openaiChat(ctx, system, user)
	}
	if err != nil {
		c.logger.Errorw("completion failed", "provider", c.config.Provider, "model", c.config.Model, "error", err)
		return "", err
	}
	c.logger.Debugw("completion finished", "provider", c.config.Provider, "duration", time.Since(start))
	return strings.TrimSpace(reply), nil
}

// Ping checks that the provider answers.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if c.config.Provider == "ollama" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ollamaURL("/api/tags"), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to reach ollama: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ollama responded with status %d", resp.StatusCode)
		}
		return nil
	}
	if _, err := c.openai.Models.List(ctx); err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	return nil
}

// openaiChat serves both the hosted API and local OpenAI-compatible servers.
func (c *Client) openaiChat(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.config.Temperature),
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.config.MaxTokens))
	}

	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ollamaChat uses the ollama /api/chat endpoint.
func (c *Client) ollamaChat(ctx context.Context, system, user string) (string, error) {
	requestBody := map[string]interface{}{
		"model": c.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.config.Temperature,
			"num_predict": c.config.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ollamaURL("/api/chat"), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Message.Content, nil
}

func (c *Client) baseURL() string {
	if c.config.BaseURL != "" {
		return strings.TrimRight(c.config.BaseURL, "/")
	}
	if c.config.Provider == "local" {
		return fmt.Sprintf("http://%s:%d/v1", c.config.Host, c.config.Port)
	}
	return ""
}

func (c *Client) ollamaURL(path string) string {
	if c.config.BaseURL != "" {
		return strings.TrimRight(c.config.BaseURL, "/") + path
	}
	return fmt.Sprintf("http://%s:%d%s", c.config.Host, c.config.Port, path)
}
