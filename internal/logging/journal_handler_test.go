package logging

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

func TestJournalPriority(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  journal.Priority
	}{
		{slog.LevelDebug, journal.PriDebug},
		{slog.LevelDebug - 4, journal.PriDebug},
		{slog.LevelInfo, journal.PriInfo},
		{slog.LevelWarn, journal.PriWarning},
		{slog.LevelError, journal.PriErr},
		{slog.LevelError + 4, journal.PriErr},
	}

	for _, tt := range tests {
		if got := journalPriority(tt.level); got != tt.want {
			t.Errorf("journalPriority(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestCollectFieldRendering(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		attr   slog.Attr
		want   map[string]string
	}{
		{"string", "", slog.String("mode", "config"), map[string]string{"MODE": "config"}},
		{"int", "", slog.Int("attempt", 3), map[string]string{"ATTEMPT": "3"}},
		{"bool", "", slog.Bool("active_low", true), map[string]string{"ACTIVE_LOW": "true"}},
		{"float", "", slog.Float64("load", 0.5), map[string]string{"LOAD": "0.5"}},
		{"duration", "", slog.Duration("timeout", 90 * time.Second), map[string]string{"TIMEOUT": "1m30s"}},
		{"prefixed", "PROCESS", slog.String("id", "streamd"), map[string]string{"PROCESS_ID": "streamd"}},
		{
			"group", "",
			slog.Group("process", slog.String("id", "streamd"), slog.Int("pid", 42)),
			map[string]string{"PROCESS_ID": "streamd", "PROCESS_PID": "42"},
		},
		{
			"inline group", "",
			slog.Attr{Value: slog.GroupValue(slog.String("kind", "hang"))},
			map[string]string{"KIND": "hang"},
		},
		{"empty attr", "", slog.Attr{}, map[string]string{}},
		{"keyless value", "", slog.Attr{Value: slog.StringValue("orphan")}, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make(map[string]string)
			collectField(fields, tt.prefix, tt.attr)
			if !reflect.DeepEqual(fields, tt.want) {
				t.Errorf("collectField(%v) produced %v, want %v", tt.attr, fields, tt.want)
			}
		})
	}
}

func TestJournalHandlerComposition(t *testing.T) {
	root := NewJournalHandler(slog.LevelInfo)

	derived, ok := root.WithGroup("process").WithAttrs([]slog.Attr{
		slog.String("id", "camerad"),
	}).(*JournalHandler)
	if !ok {
		t.Fatal("WithAttrs should return a *JournalHandler")
	}

	if derived.prefix != "PROCESS" {
		t.Errorf("prefix = %q, want %q", derived.prefix, "PROCESS")
	}
	if got := derived.bound["PROCESS_ID"]; got != "camerad" {
		t.Errorf("bound[PROCESS_ID] = %q, want %q", got, "camerad")
	}

	nested := derived.WithGroup("exit").(*JournalHandler)
	if nested.prefix != "PROCESS_EXIT" {
		t.Errorf("nested prefix = %q, want %q", nested.prefix, "PROCESS_EXIT")
	}

	// Derivation must not leak back into the root handler
	if root.prefix != "" || len(root.bound) != 0 {
		t.Errorf("root handler mutated: prefix=%q bound=%v", root.prefix, root.bound)
	}
}

func TestJournalHandlerEnabledTracksLevelVar(t *testing.T) {
	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	h := NewJournalHandler(&level)
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be disabled while the LevelVar is at warn")
	}

	level.Set(slog.LevelDebug)
	if !h.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be enabled after the LevelVar drops to debug")
	}
}
