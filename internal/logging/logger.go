package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"resumeforge/internal/config"
)

// New 构建进程级 logger。配置了 Sentry DSN 时，ERROR 级别的记录同时上报。
// 返回的 flush 在进程退出前调用。
func New(logCfg config.LogConfig, sentryCfg config.SentryConfig) (*slog.Logger, func(), error) {
	handler, err := newHandler(os.Stdout, logCfg)
	if err != nil {
		return nil, nil, err
	}
	flush := func() {}

	if sentryCfg.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryCfg.DSN,
			Environment: sentryCfg.Environment,
		}); err != nil {
			return nil, nil, fmt.Errorf("init sentry: %w", err)
		}
		handler = NewMultiHandler(handler, NewSentryHandler(sentry.CurrentHub(), slog.LevelError))
		flush = func() { sentry.Flush(2 * time.Second) }
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, flush, nil
}

func newHandler(w io.Writer, cfg config.LogConfig) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// ParseLevel 解析 debug/info/warn/error，空串视为 info。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
