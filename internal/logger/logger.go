package logger

import (
	"fmt"
	"os"
	"sync"
)

// LegacyLoggerEnv switches Init to the plain fmt logger when set to "true"
const LegacyLoggerEnv = "REVLINK_USE_LEGACY_LOGGER"

var (
	defaultLogger Logger
	mu            sync.RWMutex
	initialized   bool
)

// Init 初始化全域 logger
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	// Prevent duplicate initialization
	if initialized {
		return fmt.Errorf("logger already initialized; call Shutdown() before re-initializing")
	}

	// 檢查是否使用舊版 logger（回退機制）
	if os.Getenv(LegacyLoggerEnv) == "true" {
		legacy := NewLegacyLogger()
		legacy.SetLevel(config.Level)
		defaultLogger = legacy
		initialized = true
		return nil
	}

	logger, err := NewSlogLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create slog logger: %w", err)
	}

	defaultLogger = logger
	initialized = true
	return nil
}

// Get 取得全域 logger
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()

	if !initialized {
		// 未初始化時回傳 null logger（避免 panic）
		return &NullLogger{}
	}

	return defaultLogger
}

// With 建立帶 context 的子 logger
func With(args ...any) Logger {
	return Get().With(args...)
}

// Debug logs through the global logger
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// Info logs through the global logger
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs through the global logger
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs through the global logger
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Sync 強制 flush
func Sync() error {
	return Get().Sync()
}

// Shutdown 優雅關閉
func Shutdown() error {
	mu.Lock()
	if !initialized {
		mu.Unlock()
		return nil
	}

	logger := defaultLogger
	initialized = false
	mu.Unlock() // Release lock before calling logger.Shutdown() to avoid deadlock

	return logger.Shutdown()
}

// Replace swaps the global logger, shutting down the previous one.
// The daemon uses it when a config reload changes the log settings.
func Replace(config Config) error {
	next, err := NewSlogLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create slog logger: %w", err)
	}

	mu.Lock()
	prev := defaultLogger
	wasInitialized := initialized
	defaultLogger = next
	initialized = true
	mu.Unlock()

	if wasInitialized && prev != nil {
		return prev.Shutdown()
	}
	return nil
}

// SetLevel 動態調整日誌級別（僅支援 legacy logger）
func SetLevel(level Level) {
	mu.RLock()
	defer mu.RUnlock()

	if legacy, ok := defaultLogger.(*LegacyLogger); ok {
		legacy.SetLevel(level)
	}
}

// NullLogger 空 logger（不做任何事）
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
