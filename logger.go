package tangguh

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger receives structured debug output. The library stays silent unless
// one is configured.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig gates which lifecycle events are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogDedup     bool
	LogAuth      bool
	LogCircuit   bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all event categories but leaves debug logging
// off until WithDebug switches it on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogDedup:     true,
		LogAuth:      true,
		LogCircuit:   true,
		LogRateLimit: true,
		RequestIDGen: defaultRequestID,
	}
}

var requestIDCounter atomic.Uint64

func defaultRequestID() string {
	return "req-" + strconv.FormatUint(requestIDCounter.Add(1), 36)
}

// SimpleLogger writes key=value lines to stderr via the standard log package.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a console logger for quick debugging.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "tangguh ", log.LstdFlags|log.Lmsgprefix)}
}

func (s *SimpleLogger) Debug(msg string, kv ...any) { s.print("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...any)  { s.print("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...any)  { s.print("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...any) { s.print("ERROR", msg, kv) }

func (s *SimpleLogger) print(level, msg string, kv []any) {
	line := level + " " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		line += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	s.l.Println(line)
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

func (z *ZerologLogger) Debug(msg string, kv ...any) { emit(z.l.Debug(), msg, kv) }
func (z *ZerologLogger) Info(msg string, kv ...any)  { emit(z.l.Info(), msg, kv) }
func (z *ZerologLogger) Warn(msg string, kv ...any)  { emit(z.l.Warn(), msg, kv) }
func (z *ZerologLogger) Error(msg string, kv ...any) { emit(z.l.Error(), msg, kv) }

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
