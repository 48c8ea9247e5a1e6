// Package logging builds the structured slog.Logger used throughout
// SpaceSaver: a pretty console handler for interactive use and a JSON
// handler for machine consumption, selected by configuration.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// Options configures logger construction.
type Options struct {
	Level       string
	Format      string // "pretty" or "json"
	OutputPaths []string
	Development bool
}

// New builds a slog.Logger per opts, writing to every configured output
// path (in addition to "stdout"/"stderr" sentinels) simultaneously.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	writer, err := openWriters(opts.OutputPaths)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") && !opts.Development {
		handler = newJSONHandler(writer, level)
	} else {
		handler = newPrettyHandler(writer, level, opts.Development)
	}
	return slog.New(handler), nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func openWriters(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, p := range paths {
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("logging: open %s: %w", p, err)
			}
			writers = append(writers, f)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func newJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// prettyHandler renders plain key=value lines for interactive use.
type prettyHandler struct {
	w           io.Writer
	level       slog.Level
	development bool
	attrs       []slog.Attr
	groups      []string
}

func newPrettyHandler(w io.Writer, level slog.Level, development bool) *prettyHandler {
	return &prettyHandler{w: w, level: level, development: development}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	attrs := flattenAttrs(h.attrs, h.groups)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, flattenAttr(a, h.groups)...)
		return true
	})
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i][0] < attrs[j][0] })
	for _, kv := range attrs {
		b.WriteByte(' ')
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(kv[1])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		w:           h.w,
		level:       h.level,
		development: h.development,
		attrs:       append([]slog.Attr(nil), h.attrs...),
		groups:      append([]string(nil), h.groups...),
	}
}

func flattenAttrs(attrs []slog.Attr, groups []string) [][2]string {
	out := make([][2]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, flattenAttr(a, groups)...)
	}
	return out
}

func flattenAttr(a slog.Attr, groups []string) [][2]string {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		var out [][2]string
		for _, sub := range a.Value.Group() {
			out = append(out, flattenAttr(sub, append(groups, a.Key))...)
		}
		return out
	}
	return [][2]string{{key, formatValue(a.Value)}}
}

func formatValue(v slog.Value) string {
	s := v.String()
	if needsQuotes(s) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\"=")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelDebug && level < slog.LevelInfo:
		return "DEBUG"
	default:
		return "INFO "
	}
}
