// Package logger wraps zap with the structured events the agent emits.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/masato25/aika-adb/config"
)

// Log level constants
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

const maxLoggedQueryLen = 200

// Logger sugared zap logger with a runtime adjustable level
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.MillisDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// New builds a logger from the logging section of the configuration.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("logging output is file but file_path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
	default:
		return nil, fmt.Errorf("unsupported logging output: %s", cfg.Output)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return &Logger{
		SugaredLogger: zap.New(core, zap.AddCaller()).Sugar(),
		level:         level,
	}, nil
}

// NewWithCore builds a logger on an existing core; used by tests with an observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
		level:         zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		level:         zap.NewAtomicLevel(),
	}
}

// SetLevel sets the log level. Unknown levels fall back to info.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Level returns the current level name.
func (l *Logger) Level() string {
	return l.level.Level().String()
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name), level: l.level}
}

// StdLog adapts the logger for libraries that take a *log.Logger.
func (l *Logger) StdLog() *log.Logger {
	return zap.NewStdLog(l.Desugar())
}

// QueryExecution logs one SQL statement run by the database tools.
func (l *Logger) QueryExecution(query string, duration time.Duration, rows int64, err error) {
	fields := []interface{}{
		"event", "query_execution",
		"query", Truncate(query, maxLoggedQueryLen),
		"duration", duration,
		"rows", rows,
	}
	if err != nil {
		l.Errorw("query failed", append(fields, "error", err.Error())...)
		return
	}
	l.Infow("query executed", fields...)
}

// APICall logs one outbound HTTP request.
func (l *Logger) APICall(method, url string, statusCode int, duration time.Duration, err error) {
	fields := []interface{}{
		"event", "api_call",
		"method", method,
		"url", url,
		"status_code", statusCode,
		"duration", duration,
	}
	if err != nil {
		l.Errorw("api call failed", append(fields, "error", err.Error())...)
		return
	}
	l.Infow("api call completed", fields...)
}

// ToolExecution logs one tool invocation.
func (l *Logger) ToolExecution(tool, status string, duration time.Duration) {
	l.Infow("tool executed",
		"event", "tool_execution",
		"tool", tool,
		"status", status,
		"duration", duration,
	)
}

// AgentInteraction logs one chat turn handled by the agent.
func (l *Logger) AgentInteraction(sessionID, query string, tools []string, duration time.Duration) {
	l.Infow("agent interaction",
		"event", "agent_interaction",
		"session_id", sessionID,
		"query", Truncate(query, maxLoggedQueryLen),
		"tools", tools,
		"duration", duration,
	)
}

// Truncate shortens s to at most n characters, marking the cut.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn, "warning":
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
