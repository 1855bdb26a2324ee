package router

import (
	"github.com/masato25/aika-adb/pkg/logger"
)

// Router picks the SQL for database messages, consulting optional Lua rules
// before the built-in mapping.
type Router struct {
	driver string
	rules  *Rules
	logger *logger.Logger
}

// New creates a router for the given database driver. rules may be nil.
func New(driver string, rules *Rules, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{driver: driver, rules: rules, logger: log.Named("router")}
}

// Analyze classifies a message.
func (r *Router) Analyze(query string) Analysis {
	return Analyze(query)
}

// SQL returns the statement for a data retrieval message.
func (r *Router) SQL(query string, a Analysis) string {
	if r.rules != nil {
		sql, err := r.rules.Route(query, a)
		if err != nil {
			r.logger.Warnw("routing rules failed, using built-in mapping", "error", err)
		} else if sql != "" {
			r.logger.Debugw("routing rules matched", "sql", logger.Truncate(sql, 200))
			return sql
		}
	}
	return GenerateSQLFor(r.driver, query)
}

// Close releases the rules state.
func (r *Router) Close() {
	if r.rules != nil {
		r.rules.Close()
	}
}
