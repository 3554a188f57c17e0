package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry represents a single recorded log line.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Recorder is a thread-safe circular buffer of recent log entries.
// Every handler chain feeds it so a crash dump carries the lead-up to
// a failure, not just the final error line.
type Recorder struct {
	entries []Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRecorder creates a recorder with the specified capacity.
func NewRecorder(size int) *Recorder {
	return &Recorder{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write adds an entry, overwriting the oldest entry when full.
func (r *Recorder) Write(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.size

	if r.count < r.size {
		r.count++
	}
}

// Snapshot returns all entries in chronological order.
func (r *Recorder) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]Entry, r.count)

	if r.count < r.size {
		// Not full yet, entries start at 0
		copy(result, r.entries[:r.count])
	} else {
		// Full, oldest entry is at head
		firstPart := r.entries[r.head:]
		secondPart := r.entries[:r.head]
		copy(result, firstPart)
		copy(result[len(firstPart):], secondPart)
	}

	return result
}

// Count returns the number of entries in the recorder.
func (r *Recorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// DumpTo writes all recorded entries to w, one formatted line each.
func (r *Recorder) DumpTo(w io.Writer) error {
	for _, entry := range r.Snapshot() {
		if _, err := fmt.Fprintln(w, FormatEntry(entry)); err != nil {
			return err
		}
	}
	return nil
}

// WriteCrashDump writes the recorder contents to a timestamped file in
// dir and returns its path. The reason appears in the file header so a
// technician reading the dump after the reboot knows what triggered it.
func WriteCrashDump(dir, reason string) (string, error) {
	rec := GetRecorder()
	if rec == nil {
		return "", fmt.Errorf("flight recorder not initialized")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating crash dump directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating crash dump file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# crash dump written %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "# reason: %s\n", reason)
	if err := rec.DumpTo(f); err != nil {
		return "", fmt.Errorf("writing crash dump: %w", err)
	}
	return path, nil
}

// RecorderHandler is a slog.Handler that feeds the flight recorder.
// It looks the recorder up on every record so handlers built before
// Initialize start recording once the recorder exists.
type RecorderHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewRecorderHandler creates a handler that writes to the flight recorder.
func NewRecorderHandler(level slog.Leveler) *RecorderHandler {
	return &RecorderHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *RecorderHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *RecorderHandler) Handle(_ context.Context, r slog.Record) error {
	rec := GetRecorder()
	if rec == nil {
		return nil
	}

	attrs := make(map[string]any)
	module := "app"

	// Handler-level attrs (from WithAttrs)
	for _, a := range h.attrs {
		if a.Key == "module" {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, h.groups, a)
		}
	}

	// Record-level attrs
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, h.groups, a)
		}
		return true
	})

	rec.Write(Entry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     module,
		Message:    r.Message,
		Attributes: attrs,
	})

	return nil
}

// flattenAttr extracts a slog.Attr into a flat map with dot-notation keys for groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, append(groups, a.Key), ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		// Errors render as their message
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *RecorderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &RecorderHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *RecorderHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &RecorderHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatEntry formats an Entry as a single display line.
func FormatEntry(entry Entry) string {
	var sb strings.Builder
	sb.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("] [")
	sb.WriteString(entry.Module)
	sb.WriteString("] ")
	sb.WriteString(entry.Message)

	// Attributes in key=value format, sorted for stable output
	if len(entry.Attributes) > 0 {
		keys := make([]string, 0, len(entry.Attributes))
		for k := range entry.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprint(entry.Attributes[k]))
		}
	}

	return sb.String()
}
