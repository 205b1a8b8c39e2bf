package logger

import (
	"context"
	"log/slog"
	"strings"
)

// CredentialKeys are attribute keys whose values must never reach a log sink.
var CredentialKeys = []string{
	"authorization",
	"token",
	"bearer_token",
	"secret_access_key",
	"session_token",
}

const redacted = "[REDACTED]"

// redactHandler replaces the value of any attribute whose key matches one of
// keys, case-insensitively, at any group depth.
type redactHandler struct {
	next slog.Handler
	keys map[string]struct{}
}

func newRedactHandler(next slog.Handler, keys []string) *redactHandler {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return &redactHandler{next: next, keys: set}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrub(a)
	}
	return &redactHandler{next: h.next.WithAttrs(scrubbed), keys: h.keys}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (h *redactHandler) scrub(a slog.Attr) slog.Attr {
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: v}
	}

	group := v.Group()
	scrubbed := make([]any, len(group))
	for i, ga := range group {
		scrubbed[i] = h.scrub(ga)
	}
	return slog.Group(a.Key, scrubbed...)
}
