// Package apitools implements the outbound HTTP tools used by the agent.
package apitools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/iancoleman/orderedmap"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/pkg/logger"
)

// Envelope status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in the envelope
const (
	CodeHTTPError       = "HTTP_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeInvalidURL      = "INVALID_URL"
	CodeGeneralError    = "GENERAL_ERROR"
)

// ErrInvalidURL is returned for URLs the tools refuse to call.
var ErrInvalidURL = errors.New("invalid url")

// Analysis classification of an HTTP response
type Analysis struct {
	IsJSON        bool `json:"is_json"`
	IsSuccess     bool `json:"is_success"`
	IsRedirect    bool `json:"is_redirect"`
	IsClientError bool `json:"is_client_error"`
	IsServerError bool `json:"is_server_error"`
}

// Response the envelope returned by both HTTP tools
type Response struct {
	Status         string            `json:"status"`
	StatusCode     int               `json:"status_code,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Data           interface{}       `json:"data"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	ResponseTimeMs float64           `json:"response_time_ms"`
	ContentType    string            `json:"content_type,omitempty"`
	SizeBytes      int               `json:"size_bytes,omitempty"`
	Analysis       *Analysis         `json:"analysis,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Timestamp      string            `json:"timestamp"`
}

// OK reports whether the request succeeded with a status below 400.
func (r *Response) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Request an outbound call
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        []byte
	ContentType string
	Username    string
	Password    string
	Timeout     time.Duration
	// JSONOnly decodes the body only when the response declares JSON.
	JSONOnly bool
}

// Client performs requests with retries on transport errors.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	attempts     uint
	delay        time.Duration
	timeout      time.Duration
	blockedHosts []string
	logger       *logger.Logger
}

// NewClient creates a client from the api and security settings.
func NewClient(api config.APIConfig, blockedHosts []string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	attempts := uint(1)
	if api.MaxRetries > 1 {
		attempts = uint(api.MaxRetries)
	}
	timeout := time.Duration(api.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{},
		userAgent:    api.UserAgent,
		attempts:     attempts,
		delay:        time.Duration(api.RetryDelayMs) * time.Millisecond,
		timeout:      timeout,
		blockedHosts: blockedHosts,
		logger:       log.Named("api"),
	}
}

// ValidateURL accepts absolute http and https URLs whose host is not blocked.
func (c *Client) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	for _, blocked := range c.blockedHosts {
		if host == strings.ToLower(strings.Trim(blocked, "[]")) {
			return nil, fmt.Errorf("%w: requests to %s are blocked", ErrInvalidURL, host)
		}
	}
	return u, nil
}

// Do sends the request and builds the envelope. Failures are reported in
// the envelope.
func (c *Client) Do(ctx context.Context, req Request) *Response {
	start := time.Now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	out := &Response{
		Status:    StatusError,
		URL:       req.URL,
		Method:    method,
		Timestamp: start.Format(time.RFC3339),
	}

	u, err := c.ValidateURL(req.URL)
	if err != nil {
		return c.fail(out, start, 0, CodeInvalidURL, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var (
		status  int
		header  http.Header
		payload []byte
	)
	err = retry.Do(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		httpReq, err := c.newRequest(attemptCtx, method, u.String(), req)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		status, header, payload = resp.StatusCode, resp.Header, body
		return nil
	},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
	if err != nil {
		code := CodeConnectionError
		if isTimeout(err) {
			code = CodeTimeout
			err = fmt.Errorf("request timeout after %s: %w", timeout, err)
		}
		return c.fail(out, start, 0, code, err)
	}

	contentType := header.Get("Content-Type")
	out.StatusCode = status
	out.Headers = flattenHeader(header)
	out.ContentType = contentType
	out.SizeBytes = len(payload)
	out.Data = decodeBody(payload, contentType, req.JSONOnly)
	out.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if status < http.StatusBadRequest {
		out.Status = StatusSuccess
		c.logger.APICall(method, req.URL, status, time.Since(start), nil)
		return out
	}
	out.ErrorCode = CodeHTTPError
	out.ErrorMessage = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	c.logger.APICall(method, req.URL, status, time.Since(start), errors.New(out.ErrorMessage))
	return out
}

func (c *Client) newRequest(ctx context.Context, method, target string, req Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 && sendsBody(method) {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Username != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	return httpReq, nil
}

func (c *Client) fail(out *Response, start time.Time, status int, code string, err error) *Response {
	out.Status = StatusError
	out.ErrorCode = code
	out.ErrorMessage = err.Error()
	out.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	c.logger.APICall(out.Method, out.URL, status, time.Since(start), err)
	return out
}

func sendsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody returns JSON bodies as ordered values and anything else as text.
func decodeBody(payload []byte, contentType string, jsonOnly bool) interface{} {
	if len(bytes.TrimSpace(payload)) == 0 {
		return ""
	}
	if jsonOnly && !strings.Contains(strings.ToLower(contentType), "json") {
		return string(payload)
	}
	v, err := decodeJSON(payload)
	if err != nil {
		return string(payload)
	}
	return v
}

// decodeJSON keeps object key order, including objects nested in arrays.
func decodeJSON(raw []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	switch trimmed[0] {
	case '{':
		obj := orderedmap.New()
		if err := json.Unmarshal(trimmed, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			v, err := decodeJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func analyze(status int, contentType string) *Analysis {
	return &Analysis{
		IsJSON:        strings.Contains(strings.ToLower(contentType), "application/json"),
		IsSuccess:     status >= 200 && status < 300,
		IsRedirect:    status >= 300 && status < 400,
		IsClientError: status >= 400 && status < 500,
		IsServerError: status >= 500,
	}
}
