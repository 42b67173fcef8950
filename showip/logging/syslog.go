package logging

import (
	"bytes"
	"context"
	"log/slog"
	"log/syslog"
	"strings"
	"sync"
)

// SyslogWriter is the part of *syslog.Writer that SyslogHandler uses.
type SyslogWriter interface {
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
	Close() error
}

var _ SyslogWriter = (*syslog.Writer)(nil)

func dialSystemLog(tag string) (SyslogWriter, error) {
	return syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
}

// SyslogHandler is a slog.Handler that writes records into the system log as
// "message key=value ...", at the priority matching their level. Time and
// level are left to syslog.
type SyslogHandler struct {
	w     SyslogWriter
	inner slog.Handler

	// shared by every handler derived from the same root
	mutex *sync.Mutex
	buf   *bytes.Buffer
}

var _ slog.Handler = (*SyslogHandler)(nil)

// NewSyslogHandler creates a handler writing records at or above level into
// w.
func NewSyslogHandler(w SyslogWriter, level slog.Leveler) *SyslogHandler {
	buf := &bytes.Buffer{}

	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey, slog.LevelKey, slog.MessageKey:
					return slog.Attr{}
				}
			}
			return a
		},
	})

	return &SyslogHandler{
		w:     w,
		inner: inner,
		mutex: &sync.Mutex{},
		buf:   buf,
	}
}

func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SyslogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	msg := r.Message
	if attrs := strings.TrimSpace(h.buf.String()); attrs != "" {
		msg += " " + attrs
	}

	switch {
	case r.Level >= slog.LevelError:
		return h.w.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.w.Warning(msg)
	case r.Level >= slog.LevelInfo:
		return h.w.Info(msg)
	default:
		return h.w.Debug(msg)
	}
}

func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	return &next
}

func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	return &next
}
