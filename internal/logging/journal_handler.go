package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// syslogIdentifier tags journal entries so journalctl -t nodewarden works.
const syslogIdentifier = "nodewarden"

// JournalHandler is a slog.Handler that writes records to the systemd
// journal using native journal fields. Attributes become uppercased
// fields, with group names joined into the field name by underscores.
type JournalHandler struct {
	level  slog.Leveler
	prefix string            // joined group path, empty at the root
	bound  map[string]string // fields fixed by WithAttrs, already rendered
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the log record to systemd journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	priority := journalPriority(r.Level)

	fields := make(map[string]string, len(h.bound)+r.NumAttrs()+3)
	maps.Copy(fields, h.bound)
	r.Attrs(func(attr slog.Attr) bool {
		collectField(fields, h.prefix, attr)
		return true
	})

	// Reserved journal fields win over any attribute of the same name.
	fields["PRIORITY"] = strconv.Itoa(int(priority))
	fields["MESSAGE"] = r.Message
	fields["SYSLOG_IDENTIFIER"] = syslogIdentifier

	if err := journal.Send(r.Message, priority, fields); err != nil {
		// Keep the record visible somewhere when journald is down
		fmt.Fprintf(os.Stderr, "Journal write failed: %v\n", err)
		return err
	}

	return nil
}

// WithAttrs returns a new handler with additional attributes. The
// attributes are rendered to journal fields once, here, rather than on
// every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	bound := make(map[string]string, len(h.bound)+len(attrs))
	maps.Copy(bound, h.bound)
	for _, attr := range attrs {
		collectField(bound, h.prefix, attr)
	}

	return &JournalHandler{level: h.level, prefix: h.prefix, bound: bound}
}

// WithGroup returns a new handler with a group prefix.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	prefix := strings.ToUpper(name)
	if h.prefix != "" {
		prefix = h.prefix + "_" + prefix
	}

	return &JournalHandler{level: h.level, prefix: prefix, bound: h.bound}
}

// journalPriority maps slog levels to journal priorities.
func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// collectField renders one attribute into journal field syntax. Group
// members recurse with the group name folded into the prefix; inline
// groups (empty key) pass the prefix through unchanged.
func collectField(fields map[string]string, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := strings.ToUpper(attr.Key)
	if prefix != "" && key != "" {
		key = prefix + "_" + key
	}

	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := key
		if attr.Key == "" {
			inner = prefix
		}
		for _, member := range value.Group() {
			collectField(fields, inner, member)
		}
		return
	}

	if attr.Key == "" {
		return
	}
	fields[key] = fieldText(value)
}

// fieldText renders a resolved attribute value as journal field text.
func fieldText(value slog.Value) string {
	switch value.Kind() {
	case slog.KindInt64:
		return strconv.FormatInt(value.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(value.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(value.Bool())
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().Format(time.RFC3339Nano)
	default:
		return value.String()
	}
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
