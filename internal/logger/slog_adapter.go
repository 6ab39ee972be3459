package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger slog 實作
type SlogLogger struct {
	logger    *slog.Logger
	sanitizer *Sanitizer
	writers   []io.WriteCloser // 需要關閉的 writers
}

// NewSlogLogger 建立新的 slog logger
//
// Console outputs share one handler in the configured format. The file
// output gets its own JSON handler; both are fanned out from one logger.
func NewSlogLogger(config Config) (*SlogLogger, error) {
	var consoleWriters []io.Writer
	var closeableWriters []io.WriteCloser
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level: convertLevel(config.Level),
	}

	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStdout, OutputStderr:
			w := output.Writer
			if w == nil {
				w = os.Stdout
				if output.Type == OutputStderr {
					w = os.Stderr
				}
			}
			consoleWriters = append(consoleWriters, w)
			// Custom writers that need closing (exclude standard streams)
			if wc, ok := w.(io.WriteCloser); ok && wc != os.Stdout && wc != os.Stderr {
				closeableWriters = append(closeableWriters, wc)
			}
		case OutputFile:
			if !config.File.Enabled {
				continue
			}
			fileWriter, err := createFileWriter(config.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			closeableWriters = append(closeableWriters, fileWriter)
			handlers = append(handlers, slog.NewJSONHandler(fileWriter, opts))
		}
	}

	if len(consoleWriters) == 0 && len(handlers) == 0 {
		consoleWriters = append(consoleWriters, os.Stderr)
	}
	if len(consoleWriters) > 0 {
		handlers = append([]slog.Handler{newConsoleHandler(io.MultiWriter(consoleWriters...), config.Format, opts)}, handlers...)
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	return &SlogLogger{
		logger:    slog.New(handler),
		sanitizer: NewSanitizer(),
		writers:   closeableWriters,
	}, nil
}

func newConsoleHandler(w io.Writer, format Format, opts *slog.HandlerOptions) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// createFileWriter 建立檔案 writer（使用 lumberjack 支援 rotation）
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	// 確保目錄存在
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

// convertLevel 轉換內部 Level 到 slog.Level
func convertLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug 記錄 debug 級別日誌
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

// Info 記錄 info 級別日誌
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

// Warn 記錄 warn 級別日誌
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

// Error 記錄 error 級別日誌
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

// With 建立帶 context 的子 logger
// 子 logger 不擁有 writers，避免重複關閉
func (l *SlogLogger) With(args ...any) Logger {
	return &childLogger{
		logger:    l.logger.With(l.sanitizer.SanitizeArgs(args)...),
		sanitizer: l.sanitizer,
	}
}

// Sync is a no-op; lumberjack writes through
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown 優雅關閉，關閉所有 writers
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// childLogger 子 logger，不擁有 writers
type childLogger struct {
	logger    *slog.Logger
	sanitizer *Sanitizer
}

func (c *childLogger) Debug(msg string, args ...any) {
	c.logger.Debug(c.sanitizer.Sanitize(msg), c.sanitizer.SanitizeArgs(args)...)
}

func (c *childLogger) Info(msg string, args ...any) {
	c.logger.Info(c.sanitizer.Sanitize(msg), c.sanitizer.SanitizeArgs(args)...)
}

func (c *childLogger) Warn(msg string, args ...any) {
	c.logger.Warn(c.sanitizer.Sanitize(msg), c.sanitizer.SanitizeArgs(args)...)
}

func (c *childLogger) Error(msg string, args ...any) {
	c.logger.Error(c.sanitizer.Sanitize(msg), c.sanitizer.SanitizeArgs(args)...)
}

func (c *childLogger) With(args ...any) Logger {
	return &childLogger{
		logger:    c.logger.With(c.sanitizer.SanitizeArgs(args)...),
		sanitizer: c.sanitizer,
	}
}

func (c *childLogger) Sync() error {
	return nil
}

func (c *childLogger) Shutdown() error {
	return nil
}
