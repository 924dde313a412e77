package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// SentryHandler 把达到阈值的日志记录上报为 Sentry 事件。
// 记录中名为 "error" 的属性若是 error，则以异常上报，否则以消息上报。
type SentryHandler struct {
	hub    *sentry.Hub
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func NewSentryHandler(hub *sentry.Hub, level slog.Level) *SentryHandler {
	return &SentryHandler{hub: hub, level: level}
}

func (h *SentryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *SentryHandler) Handle(_ context.Context, record slog.Record) error {
	extra := sentry.Context{"message": record.Message}
	var cause error

	add := func(key string, a slog.Attr) {
		if err, ok := a.Value.Any().(error); ok && a.Key == "error" {
			cause = err
		}
		extra[key] = a.Value.String()
	}
	for _, a := range h.attrs {
		add(a.Key, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		add(h.prefix+a.Key, a)
		return true
	})

	h.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(record.Level))
		scope.SetContext("log", extra)
		if v, ok := extra["correlation_id"].(string); ok && v != "" {
			scope.SetTag("correlation_id", v)
		}
		if cause != nil {
			h.hub.CaptureException(errors.Join(errors.New(record.Message), cause))
			return
		}
		h.hub.CaptureMessage(record.Message)
	})
	return nil
}

func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *SentryHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func sentryLevel(l slog.Level) sentry.Level {
	switch {
	case l >= slog.LevelError:
		return sentry.LevelError
	case l >= slog.LevelWarn:
		return sentry.LevelWarning
	case l >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}
