// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	ArtifactIDKey ContextKey = "artifact_id"
	JobIDKey      ContextKey = "job_id"
	MessageIDKey  ContextKey = "message_id"
)

// contextKeys WithContext 提取的键（按输出顺序）
var contextKeys = []ContextKey{TraceIDKey, ArtifactIDKey, JobIDKey, MessageIDKey}

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	// base 不带 component 属性，Named 从它派生以替换组件名
	base      *slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level" yaml:"level"`
	Format    string `json:"format" yaml:"format"` // json or text
	Output    string `json:"output" yaml:"output"` // stdout, stderr, or file path
	Component string `json:"component" yaml:"-"`
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	return NewWithWriter(output, cfg.Format, level, cfg.Component)
}

// NewWithWriter 使用指定 writer 创建日志器（测试中写入 buffer）
func NewWithWriter(w io.Writer, format string, level slog.Level, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	base := slog.New(handler)
	l := base
	if component != "" {
		l = base.With(slog.String("component", component))
	}
	return &Logger{Logger: l, base: base, component: component}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// Discard 丢弃所有输出的日志器
func Discard() *Logger {
	return NewWithWriter(io.Discard, "text", slog.LevelError+4, "")
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// Named 派生子组件日志器，替换而非追加 component 属性
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger:    l.base.With(slog.String("component", component)),
		base:      l.base,
		component: component,
	}
}

// with 同时在当前日志器与 base 上追加属性
func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(attrs...),
		base:      l.base.With(attrs...),
		component: l.component,
	}
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	for _, k := range contextKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithArtifactID 添加 Artifact ID
func (l *Logger) WithArtifactID(artifactID string) *Logger {
	return l.with(slog.String("artifact_id", artifactID))
}

// WithJobID 添加 Job ID
func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(slog.String("job_id", jobID))
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(slog.Float64("duration_ms", float64(d.Milliseconds())))
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// ============================================================================
// 上下文辅助
// ============================================================================

// ContextWithArtifact 在上下文中记录 Artifact ID
func ContextWithArtifact(ctx context.Context, artifactID string) context.Context {
	return context.WithValue(ctx, ArtifactIDKey, artifactID)
}

// ContextWithJob 在上下文中记录 Job ID 与所属 Artifact ID
func ContextWithJob(ctx context.Context, artifactID, jobID string) context.Context {
	ctx = context.WithValue(ctx, ArtifactIDKey, artifactID)
	return context.WithValue(ctx, JobIDKey, jobID)
}

// ContextWithMessage 在上下文中记录队列消息 ID
func ContextWithMessage(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}
