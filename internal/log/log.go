package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.ErrorFieldName = "err"
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
		logger = zerolog.New(cw).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
}

// SetLevel changes the minimum level. Unknown values fall back to INFO.
func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects log lines to w as JSON. Mostly useful in tests.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = zerolog.New(w).Level(logger.GetLevel()).With().Timestamp().Logger()
	mu.Unlock()
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, nil, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, nil, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, nil, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	logWithLevel(LevelError, err, msg, kv...)
}

func logWithLevel(level Level, err error, msg string, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(toZerolog(level))
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	// Expect kv as pairs: key, value, key, value, ...
	// If odd number of args, last one is ignored.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = appendField(ev, key, kv[i+1])
	}
	ev.Msg(msg)
}

func appendField(ev *zerolog.Event, key string, val any) *zerolog.Event {
	switch v := val.(type) {
	case string:
		return ev.Str(key, v)
	case int:
		return ev.Int(key, v)
	case int64:
		return ev.Int64(key, v)
	case bool:
		return ev.Bool(key, v)
	case time.Time:
		return ev.Time(key, v)
	case time.Duration:
		return ev.Dur(key, v)
	case error:
		return ev.AnErr(key, v)
	default:
		return ev.Interface(key, v)
	}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
