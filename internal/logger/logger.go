package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger 定义日志接口，args 为键值对
type Logger interface {
	// Debug 记录调试信息
	Debug(msg string, args ...any)

	// Info 记录一般信息
	Info(msg string, args ...any)

	// Warn 记录警告信息
	Warn(msg string, args ...any)

	// Error 记录错误信息
	Error(msg string, args ...any)

	// Err 记录带错误对象的错误信息
	Err(err error, msg string, args ...any)

	// With 返回附带固定字段的子日志记录器
	With(args ...any) Logger
}

// Config 日志配置
type Config struct {
	Level   string    // debug / info / warn / error / disabled
	Output  io.Writer // 默认 os.Stdout
	Service string
}

// ZeroLogger 基于 zerolog 的默认实现
type ZeroLogger struct {
	zl zerolog.Logger
}

// New 创建日志记录器
func New(cfg Config) *ZeroLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	service := cfg.Service
	if service == "" {
		service = "mediasniff"
	}
	zl := zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
	return &ZeroLogger{zl: zl}
}

// Component 返回带 component 字段的子日志记录器
func Component(l Logger, name string) Logger {
	if l == nil {
		return NewNoopLogger()
	}
	return l.With("component", name)
}

// Debug 记录调试信息
func (l *ZeroLogger) Debug(msg string, args ...any) { l.write(l.zl.Debug(), msg, args) }

// Info 记录一般信息
func (l *ZeroLogger) Info(msg string, args ...any) { l.write(l.zl.Info(), msg, args) }

// Warn 记录警告信息
func (l *ZeroLogger) Warn(msg string, args ...any) { l.write(l.zl.Warn(), msg, args) }

// Error 记录错误信息
func (l *ZeroLogger) Error(msg string, args ...any) { l.write(l.zl.Error(), msg, args) }

// Err 记录带错误对象的错误信息
func (l *ZeroLogger) Err(err error, msg string, args ...any) {
	l.write(l.zl.Error().Err(err), msg, args)
}

// With 返回附带固定字段的子日志记录器
func (l *ZeroLogger) With(args ...any) Logger {
	return &ZeroLogger{zl: l.zl.With().Fields(pairs(args)).Logger()}
}

func (l *ZeroLogger) write(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	ev.Fields(pairs(args)).Msg(msg)
}

// pairs 把键值对参数转换为字段映射，缺失的值补为 MISSING
func pairs(args []any) map[string]any {
	if len(args)%2 != 0 {
		args = append(args, "MISSING")
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		m[key] = args[i+1]
	}
	return m
}

// NoopLogger 空日志实现,不输出任何日志
type NoopLogger struct{}

// NewNoopLogger 创建空日志记录器
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug 不执行任何操作
func (l *NoopLogger) Debug(msg string, args ...any) {}

// Info 不执行任何操作
func (l *NoopLogger) Info(msg string, args ...any) {}

// Warn 不执行任何操作
func (l *NoopLogger) Warn(msg string, args ...any) {}

// Error 不执行任何操作
func (l *NoopLogger) Error(msg string, args ...any) {}

// Err 不执行任何操作
func (l *NoopLogger) Err(err error, msg string, args ...any) {}

// With 返回自身
func (l *NoopLogger) With(args ...any) Logger { return l }
