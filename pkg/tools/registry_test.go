package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct{ ok bool }

func (r fakeResult) OK() bool { return r.ok }

type fakeTool struct {
	name      string
	cacheable bool
	calls     int
	ok        bool
	err       error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Schema() string {
	return `{"type":"object","properties":{"query":{"type":"string","minLength":1},"items":{"type":"array","items":{"type":"string"}}},"required":["query"]}`
}
func (f *fakeTool) Cacheable() bool { return f.cacheable }
func (f *fakeTool) Call(ctx context.Context, args map[string]interface{}) (Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{ok: f.ok}, nil
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "b"}, &fakeTool{name: "a"}))

	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, 2, r.Len())

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "fake b", infos[0].Description)
	assert.Contains(t, string(infos[0].InputSchema), `"required":["query"]`)

	err := r.Register(&fakeTool{name: "a"})
	assert.Error(t, err)
}

func TestRegistry_Call(t *testing.T) {
	tool := &fakeTool{name: "echo", ok: true}
	r := NewRegistry()
	require.NoError(t, r.Register(tool))

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		wantErr  error
		invalid  bool
		wantCall bool
	}{
		{"valid", "echo", map[string]interface{}{"query": "x"}, nil, false, true},
		{"typed slice", "echo", map[string]interface{}{"query": "x", "items": []string{"a", "b"}}, nil, false, true},
		{"missing required", "echo", map[string]interface{}{}, nil, true, false},
		{"nil args", "echo", nil, nil, true, false},
		{"wrong type", "echo", map[string]interface{}{"query": 42}, nil, true, false},
		{"unknown tool", "nope", map[string]interface{}{"query": "x"}, ErrToolNotFound, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tool.calls
			result, err := r.Call(context.Background(), tt.tool, tt.args)
			switch {
			case tt.invalid:
				var ve *ValidationError
				assert.True(t, errors.As(err, &ve), "got %v", err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.True(t, result.OK())
			}
			assert.Equal(t, tt.wantCall, tool.calls > before)
		})
	}
}

func TestRegistry_Cache(t *testing.T) {
	reader := &fakeTool{name: "reader", cacheable: true, ok: true}
	writer := &fakeTool{name: "writer", ok: true}
	r := NewRegistry()
	require.NoError(t, r.Register(reader, writer))

	args := map[string]interface{}{"query": "x"}
	ctx := context.Background()

	_, _ = r.Call(ctx, "reader", args)
	_, _ = r.Call(ctx, "reader", args)
	assert.Equal(t, 2, reader.calls, "cache is off by default")

	r.SetCache(true)
	_, _ = r.Call(ctx, "reader", args)
	_, _ = r.Call(ctx, "reader", args)
	assert.Equal(t, 3, reader.calls)

	_, _ = r.Call(ctx, "writer", args)
	_, _ = r.Call(ctx, "reader", args)
	assert.Equal(t, 4, reader.calls, "a non-cacheable call invalidates cached results")
}

func TestRegistry_CacheSkipsFailures(t *testing.T) {
	reader := &fakeTool{name: "reader", cacheable: true, ok: false}
	r := NewRegistry()
	require.NoError(t, r.Register(reader))
	r.SetCache(true)

	args := map[string]interface{}{"query": "x"}
	_, _ = r.Call(context.Background(), "reader", args)
	_, _ = r.Call(context.Background(), "reader", args)
	assert.Equal(t, 2, reader.calls)
}

func TestRegistry_CallPropagatesToolError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "bad", err: boom}))

	_, err := r.Call(context.Background(), "bad", map[string]interface{}{"query": "x"})
	assert.ErrorIs(t, err, boom)
}
