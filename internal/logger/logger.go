package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// slogLevel はslogのレベルに変換する
func (l Level) slogLevel() slog.Level {
	switch l {
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

// ParseLevel は文字列をログレベルに変換する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Format は出力形式を表す
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat は文字列を出力形式に変換する
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Logger はslogベースのスレッドセーフなロガー
type Logger struct {
	sl    *slog.Logger
	level *slog.LevelVar
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New はテキスト形式の新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return NewWithFormat(out, minLevel, FormatText)
}

// NewWithFormat は出力形式を指定してロガーを作成する
func NewWithFormat(out io.Writer, minLevel Level, format Format) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(minLevel.slogLevel())

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		sl:    slog.New(h),
		level: lv,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

// Enabled は指定レベルのログが出力されるかを返す
func (l *Logger) Enabled(level Level) bool {
	return l.sl.Enabled(context.Background(), level.slogLevel())
}

// log は指定されたレベルでログを出力する
func (l *Logger) log(level Level, workerID string, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if workerID != "" {
		l.sl.Log(context.Background(), level.slogLevel(), msg, "worker", workerID)
	} else {
		l.sl.Log(context.Background(), level.slogLevel(), msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(workerID string, format string, args ...any) {
	l.log(LevelDebug, workerID, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(workerID string, format string, args ...any) {
	l.log(LevelInfo, workerID, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(workerID string, format string, args ...any) {
	l.log(LevelWarn, workerID, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(workerID string, format string, args ...any) {
	l.log(LevelError, workerID, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// SetDefault はデフォルトロガーを差し替える
func SetDefault(l *Logger) {
	Default = l
}

// Enabled はデフォルトロガーで指定レベルが有効かを返す
func Enabled(level Level) bool {
	return Default.Enabled(level)
}

// Debug はデバッグログを出力する
func Debug(workerID string, format string, args ...any) {
	Default.Debug(workerID, format, args...)
}

// Info は情報ログを出力する
func Info(workerID string, format string, args ...any) {
	Default.Info(workerID, format, args...)
}

// Warn は警告ログを出力する
func Warn(workerID string, format string, args ...any) {
	Default.Warn(workerID, format, args...)
}

// Error はエラーログを出力する
func Error(workerID string, format string, args ...any) {
	Default.Error(workerID, format, args...)
}
