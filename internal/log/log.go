// Package log provides structured logging for ticketflow.
// It keeps a small category-tagged API over a zap core: JSON output in
// production, console output in development.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups related log messages.
type Category string

const (
	CatAPI      Category = "api"      // HTTP request handling
	CatIngest   Category = "ingest"   // Ticket ingestion
	CatEmail    Category = "email"    // Inbound email parsing
	CatQueue    Category = "queue"    // Broker publish/consume
	CatWorker   Category = "worker"   // Worker lease/processing loop
	CatWorkflow Category = "workflow" // Workflow engine steps
	CatLLM      Category = "llm"      // LLM client calls
	CatTools    Category = "tools"    // Agent tool execution
	CatApproval Category = "approval" // Approval decisions
	CatStore    Category = "store"    // Database operations
	CatSeed     Category = "seed"     // Demo data seeding
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Init builds the global logger. JSON output when json is true, console
// otherwise. Returns a flush func to call on shutdown.
func Init(level string, json bool) (func(), error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()

	return func() { _ = l.Sync() }, nil
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func with(cat Category, fields []any) []any {
	return append([]any{"category", string(cat)}, fields...)
}

// Debug logs at debug level with key-value fields.
func Debug(cat Category, msg string, fields ...any) {
	current().Debugw(msg, with(cat, fields)...)
}

// Info logs at info level with key-value fields.
func Info(cat Category, msg string, fields ...any) {
	current().Infow(msg, with(cat, fields)...)
}

// Warn logs at warning level with key-value fields.
func Warn(cat Category, msg string, fields ...any) {
	current().Warnw(msg, with(cat, fields)...)
}

// Error logs at error level with key-value fields.
func Error(cat Category, msg string, fields ...any) {
	current().Errorw(msg, with(cat, fields)...)
}

// ErrorErr logs an error with the error value attached.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	current().Errorw(msg, with(cat, fields)...)
}
