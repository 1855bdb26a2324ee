// Package tools holds the registry shared by the agent, the MCP server and the
// REST gateway.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Result a tool response envelope
type Result interface {
	OK() bool
}

// Tool a callable tool with a JSON Schema for its arguments
type Tool interface {
	Name() string
	Description() string
	Schema() string
	Call(ctx context.Context, args map[string]interface{}) (Result, error)
}

// Cacheable is implemented by read-only tools whose results can be reused
// for identical arguments.
type Cacheable interface {
	Cacheable() bool
}

// Info tool description for listings
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ValidationError wraps a schema violation in tool arguments.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry registered tools in registration order
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]entry
	order        []string
	cacheEnabled bool
	cache        map[string]Result
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		cache:   make(map[string]Result),
	}
}

// Register adds tools, compiling each argument schema.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Name()
		if _, exists := r.entries[name]; exists {
			return fmt.Errorf("tool %s already registered", name)
		}
		schema, err := jsonschema.CompileString(name+".schema.json", t.Schema())
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", name, err)
		}
		r.entries[name] = entry{tool: t, schema: schema}
		r.order = append(r.order, name)
	}
	return nil
}

// SetCache turns result caching for Cacheable tools on or off.
func (r *Registry) SetCache(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheEnabled = enabled
	r.cache = make(map[string]Result)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.tool, ok
}

// Names returns registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List describes every registered tool.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		t := r.entries[name].tool
		infos = append(infos, Info{
			Name:        name,
			Description: t.Description(),
			InputSchema: json.RawMessage(t.Schema()),
		})
	}
	return infos
}

// Validate checks args against the tool schema.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.validate(e, args)
}

func (r *Registry) validate(e entry, args map[string]interface{}) error {
	doc, err := normalize(args)
	if err != nil {
		return &ValidationError{Tool: e.tool.Name(), Err: err}
	}
	if err := e.schema.Validate(doc); err != nil {
		return &ValidationError{Tool: e.tool.Name(), Err: err}
	}
	return nil
}

// Call validates args and runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := r.validate(e, args); err != nil {
		return nil, err
	}

	cacheable := false
	if c, ok := e.tool.(Cacheable); ok {
		cacheable = c.Cacheable()
	}

	key := ""
	if cacheable {
		key = cacheKey(name, args)
		r.mu.RLock()
		cached, hit := r.cache[key]
		enabled := r.cacheEnabled
		r.mu.RUnlock()
		if enabled && hit {
			return cached, nil
		}
	}

	result, err := e.tool.Call(ctx, args)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.cacheEnabled {
		if cacheable {
			if result.OK() {
				r.cache[key] = result
			}
		} else if len(r.cache) > 0 {
			// any other tool may have changed the data
			r.cache = make(map[string]Result)
		}
	}
	r.mu.Unlock()

	return result, nil
}

// normalize round-trips args through JSON so typed Go values validate the
// same way as decoded request bodies.
func normalize(args map[string]interface{}) (interface{}, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func cacheKey(name string, args map[string]interface{}) string {
	raw, _ := json.Marshal(args)
	return name + ":" + string(raw)
}
