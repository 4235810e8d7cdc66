package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	// 默认输出 JSON；本地调试时设置 LOG_FORMAT=console 获得彩色输出
	var out = os.Stdout
	if os.Getenv("LOG_FORMAT") == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return
	}
	base = zerolog.New(out).With().Timestamp().Logger()
}

// Init 为当前进程设置服务名字段，并应用 LOG_LEVEL 环境变量。
func Init(serviceName string) {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	base = base.Level(level).With().Str("service", serviceName).Logger()
}

// Logger 返回进程级的基础 logger。
func Logger() *zerolog.Logger {
	return &base
}

// Ctx 返回一个绑定了当前 trace 上下文的 logger。
// 如果 ctx 中存在有效的 span，日志会自动附带 trace_id / span_id，
// 便于在 Jaeger 和日志系统之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			enriched := l.With().
				Str("trace_id", sc.TraceID().String()).
				Str("span_id", sc.SpanID().String()).
				Logger()
			return &enriched
		}
		return l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		enriched := base.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
		return &enriched
	}
	return &base
}

// WithContext 把基础 logger 挂到 ctx 上，供下游 Ctx() 取用。
func WithContext(ctx context.Context) context.Context {
	return base.WithContext(ctx)
}
