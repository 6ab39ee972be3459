package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LegacyLogger 舊版 logger（使用 fmt.Fprint*，用於回退）
type LegacyLogger struct {
	level  *levelBox
	out    io.Writer
	errOut io.Writer
	fields []any
}

type levelBox struct {
	mu    sync.RWMutex
	level Level
}

// NewLegacyLogger 建立 legacy logger
func NewLegacyLogger() *LegacyLogger {
	return &LegacyLogger{
		level:  &levelBox{level: LevelInfo},
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// SetLevel 設定日誌級別
func (l *LegacyLogger) SetLevel(level Level) {
	l.level.mu.Lock()
	defer l.level.mu.Unlock()
	l.level.level = level
}

// shouldLog 判斷是否應該記錄
func (l *LegacyLogger) shouldLog(level Level) bool {
	l.level.mu.RLock()
	defer l.level.mu.RUnlock()
	return level >= l.level.level
}

func (l *LegacyLogger) write(w io.Writer, level Level, msg string, args []any) {
	if !l.shouldLog(level) {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(level.String()), msg)
	all := append(append([]any(nil), l.fields...), args...)
	for i := 0; i < len(all); i += 2 {
		if i+1 < len(all) {
			fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
		} else {
			fmt.Fprintf(&b, " %v", all[i])
		}
	}
	fmt.Fprintln(w, b.String())
}

// Debug 記錄 debug 級別日誌
func (l *LegacyLogger) Debug(msg string, args ...any) {
	l.write(l.out, LevelDebug, msg, args)
}

// Info 記錄 info 級別日誌
func (l *LegacyLogger) Info(msg string, args ...any) {
	l.write(l.out, LevelInfo, msg, args)
}

// Warn 記錄 warn 級別日誌
func (l *LegacyLogger) Warn(msg string, args ...any) {
	l.write(l.errOut, LevelWarn, msg, args)
}

// Error 記錄 error 級別日誌
func (l *LegacyLogger) Error(msg string, args ...any) {
	l.write(l.errOut, LevelError, msg, args)
}

// With 建立帶 context 的子 logger，與父 logger 共用級別
func (l *LegacyLogger) With(args ...any) Logger {
	return &LegacyLogger{
		level:  l.level,
		out:    l.out,
		errOut: l.errOut,
		fields: append(append([]any(nil), l.fields...), args...),
	}
}

// Sync 強制 flush
func (l *LegacyLogger) Sync() error {
	return nil
}

// Shutdown 優雅關閉
func (l *LegacyLogger) Shutdown() error {
	return nil
}
