package apitools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/masato25/aika-adb/pkg/tools"
)

// Tool names
const (
	APICallerName   = "api_caller"
	HTTPRequestName = "http_request_tool"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// APICaller makes plain REST calls.
type APICaller struct {
	client *Client
}

// NewAPICaller creates the api_caller tool.
func NewAPICaller(c *Client) *APICaller { return &APICaller{client: c} }

func (t *APICaller) Name() string { return APICallerName }

func (t *APICaller) Description() string {
	return "Make HTTP API calls to external services with full REST support. Returns status, headers and data."
}

func (t *APICaller) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1, "description": "full URL of the endpoint"},
			"method": {"type": "string", "description": "GET, POST, PUT, PATCH, DELETE or HEAD"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"data": {"type": ["object", "array"], "description": "JSON body for POST, PUT and PATCH"},
			"params": {"type": "object", "additionalProperties": {"type": ["string", "number", "boolean"]}},
			"timeout": {"type": "integer", "minimum": 1, "maximum": 300}
		},
		"required": ["url"]
	}`
}

// Call implements tools.Tool.
func (t *APICaller) Call(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	req := Request{
		URL:     stringArg(args, "url"),
		Method:  stringArg(args, "method"),
		Headers: stringMap(args["headers"]),
		Query:   stringMap(args["params"]),
	}
	if secs, ok := numberArg(args, "timeout"); ok {
		req.Timeout = time.Duration(secs) * time.Second
	}
	if data, ok := args["data"]; ok && data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return t.client.reject(req, CodeGeneralError, fmt.Errorf("failed to encode data: %w", err)), nil
		}
		req.Body = body
	}
	if res := checkMethod(t.client, req); res != nil {
		return res, nil
	}
	return t.client.Do(ctx, req), nil
}

// Get is the shortcut the agent uses for simple lookups.
func (t *APICaller) Get(ctx context.Context, target string) *Response {
	return t.client.Do(ctx, Request{Method: "GET", URL: target})
}

// HTTPRequestTool makes authenticated requests and classifies the response.
type HTTPRequestTool struct {
	client *Client
}

// NewHTTPRequestTool creates the http_request_tool tool.
func NewHTTPRequestTool(c *Client) *HTTPRequestTool { return &HTTPRequestTool{client: c} }

func (t *HTTPRequestTool) Name() string { return HTTPRequestName }

func (t *HTTPRequestTool) Description() string {
	return "Advanced HTTP request tool with bearer, API key and basic authentication and detailed response analysis."
}

func (t *HTTPRequestTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"json_data": {"type": ["object", "array"]},
			"form_data": {"type": "object", "additionalProperties": {"type": "string"}},
			"auth": {
				"type": "object",
				"properties": {
					"type": {"type": "string", "enum": ["bearer", "api_key", "basic"]},
					"token": {"type": "string"},
					"location": {"type": "string", "enum": ["header", "query"]},
					"key_name": {"type": "string"},
					"key_value": {"type": "string"},
					"username": {"type": "string"},
					"password": {"type": "string"}
				},
				"required": ["type"]
			}
		},
		"required": ["url"]
	}`
}

// Auth credentials for HTTPRequestTool
type Auth struct {
	Type     string
	Token    string
	Location string
	KeyName  string
	KeyValue string
	Username string
	Password string
}

// Call implements tools.Tool.
func (t *HTTPRequestTool) Call(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	req := Request{
		URL:      stringArg(args, "url"),
		Method:   stringArg(args, "method"),
		Headers:  stringMap(args["headers"]),
		JSONOnly: true,
	}

	if data, ok := args["json_data"]; ok && data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return t.client.reject(req, CodeGeneralError, fmt.Errorf("failed to encode json_data: %w", err)), nil
		}
		req.Body = body
		req.ContentType = "application/json"
	} else if form := stringMap(args["form_data"]); len(form) > 0 {
		values := url.Values{}
		for k, v := range form {
			values.Set(k, v)
		}
		req.Body = []byte(values.Encode())
		req.ContentType = "application/x-www-form-urlencoded"
	}

	var auth *Auth
	if raw := stringMap(args["auth"]); len(raw) > 0 {
		auth = &Auth{
			Type:     raw["type"],
			Token:    raw["token"],
			Location: raw["location"],
			KeyName:  raw["key_name"],
			KeyValue: raw["key_value"],
			Username: raw["username"],
			Password: raw["password"],
		}
	}
	return t.Send(ctx, req, auth), nil
}

// Send applies auth and runs the request.
func (t *HTTPRequestTool) Send(ctx context.Context, req Request, auth *Auth) *Response {
	if auth != nil {
		applyAuth(&req, auth)
	}
	if res := checkMethod(t.client, req); res != nil {
		return res
	}
	res := t.client.Do(ctx, req)
	if res.StatusCode > 0 {
		res.Analysis = analyze(res.StatusCode, res.ContentType)
	}
	return res
}

func applyAuth(req *Request, auth *Auth) {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	switch strings.ToLower(auth.Type) {
	case "bearer":
		req.Headers["Authorization"] = "Bearer " + auth.Token
	case "api_key":
		name := auth.KeyName
		if name == "" {
			name = "X-API-Key"
		}
		if strings.EqualFold(auth.Location, "query") {
			if req.Query == nil {
				req.Query = map[string]string{}
			}
			req.Query[name] = auth.KeyValue
		} else {
			req.Headers[name] = auth.KeyValue
		}
	case "basic":
		req.Username = auth.Username
		req.Password = auth.Password
	}
}

func checkMethod(c *Client, req Request) *Response {
	method := strings.ToUpper(req.Method)
	if method == "" || allowedMethods[method] {
		return nil
	}
	return c.reject(req, CodeGeneralError, fmt.Errorf("unsupported HTTP method: %s", req.Method))
}

// reject builds a failed envelope for requests that were never sent.
func (c *Client) reject(req Request, code string, err error) *Response {
	out := &Response{
		URL:       req.URL,
		Method:    strings.ToUpper(req.Method),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if out.Method == "" {
		out.Method = "GET"
	}
	return c.fail(out, time.Now(), 0, code, err)
}

// Tools returns both HTTP tools sharing one client.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{NewAPICaller(c), NewHTTPRequestTool(c)}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func numberArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func stringMap(v interface{}) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if val == nil {
				continue
			}
			out[k] = fmt.Sprint(val)
		}
		return out
	}
	return nil
}
