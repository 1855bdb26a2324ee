package router

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

const routeFunction = "route_sql"

// Rules runs a Lua script whose route_sql(query, analysis) function may
// replace the built-in SQL mapping.
type Rules struct {
	mu    sync.Mutex
	state *lua.LState
}

// LoadRules executes the script file and checks that it defines route_sql.
func LoadRules(path string) (*Rules, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules %s: %w", path, err)
	}
	return newRules(L)
}

// LoadRulesString is LoadRules for inline scripts.
func LoadRulesString(src string) (*Rules, error) {
	L := lua.NewState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return newRules(L)
}

func newRules(L *lua.LState) (*Rules, error) {
	if L.GetGlobal(routeFunction).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("%s function not found in Lua script", routeFunction)
	}
	return &Rules{state: L}, nil
}

// Route calls route_sql. An empty string means the script declined.
func (r *Rules) Route(query string, a Analysis) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	L := r.state
	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(routeFunction),
		NRet:    1,
		Protect: true,
	}, lua.LString(query), r.analysisTable(a)); err != nil {
		return "", fmt.Errorf("%s failed: %w", routeFunction, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return strings.TrimSpace(string(s)), nil
	}
	return "", nil
}

// Close releases the Lua state.
func (r *Rules) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Close()
}

func (r *Rules) analysisTable(a Analysis) *lua.LTable {
	L := r.state
	t := L.NewTable()
	t.RawSetString("is_database_query", lua.LBool(a.IsDatabaseQuery))
	t.RawSetString("is_api_request", lua.LBool(a.IsAPIRequest))
	t.RawSetString("requires_ai", lua.LBool(a.RequiresAI))
	t.RawSetString("is_system_query", lua.LBool(a.IsSystemQuery))
	t.RawSetString("is_complex", lua.LBool(a.IsComplex))
	t.RawSetString("query_intent", lua.LString(a.Intent))
	t.RawSetString("word_count", lua.LNumber(a.WordCount))

	conf := L.NewTable()
	conf.RawSetString("database", lua.LNumber(a.Confidence.Database))
	conf.RawSetString("api", lua.LNumber(a.Confidence.API))
	conf.RawSetString("ai", lua.LNumber(a.Confidence.AI))
	conf.RawSetString("system", lua.LNumber(a.Confidence.System))
	t.RawSetString("confidence", conf)
	return t
}
