package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level  string
	Format string
}

// NewLogger builds the process logger. Output is JSON lines unless
// format is "console".
func NewLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func LogAccess(logger zerolog.Logger, ctx RequestContext) {
	event := logger.Info()
	if ctx.Status >= 500 {
		event = logger.Error()
	} else if ctx.Status >= 400 {
		event = logger.Warn()
	}
	event.
		Str("request_id", defaultString(ctx.RequestID, "none")).
		Str("method", ctx.Method).
		Str("path", ctx.Path).
		Str("route", defaultString(ctx.Route, "unmatched")).
		Int("status", ctx.Status).
		Int64("duration_ms", ctx.Duration.Milliseconds()).
		Int64("bytes_in", ctx.BytesIn).
		Int64("bytes_out", ctx.BytesOut).
		Str("write_cache", defaultString(ctx.WriteCache, "none")).
		Str("user", defaultString(ctx.User, "anonymous")).
		Str("user_agent", ctx.UserAgent).
		Str("remote_addr", ctx.RemoteAddr)
	if len(ctx.Headers) > 0 && logger.GetLevel() <= zerolog.DebugLevel {
		headers := zerolog.Dict()
		for name, values := range ctx.Headers {
			headers.Str(name, RedactHeaderValue(name, strings.Join(values, ", ")))
		}
		event.Dict("headers", headers)
	}
	event.Msg("access")
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
