package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level controls which messages are printed
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
	if os.Getenv("ONBOARD_DEBUG") == "1" {
		current.Store(int32(LevelDebug))
	}
}

// ParseLevel parses a level name like "info" or "warn"
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// SetLevel sets the global log level
func SetLevel(l Level) {
	current.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= current.Load()
}

func Trace(format string, args ...any) {
	if enabled(LevelTrace) {
		log.Printf("[TRACE] "+format, args...)
	}
}

func Debug(format string, args ...any) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func Info(format string, args ...any) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+format, args...)
	}
}

func Warn(format string, args ...any) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+format, args...)
	}
}

func Error(format string, args ...any) {
	if enabled(LevelError) {
		log.Printf("[ERROR] "+format, args...)
	}
}

func Fatal(format string, args ...any) {
	log.Printf("[FATAL] "+format, args...)
	os.Exit(1)
}
