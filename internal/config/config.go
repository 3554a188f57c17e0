package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix namespaces environment overrides, e.g. NODEWARDEN_LOGGING_LEVEL.
const envPrefix = "NODEWARDEN_"

// LoadConfig fills the options struct from the TOML file and the
// environment, with CLI > env > file precedence. Fields carry a toml
// tag with a dotted table path and an env tag with the variable name
// (minus the NODEWARDEN_ prefix). When cmd is given, flags the user
// set explicitly are left untouched.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	pinned := pinnedFlags(cmd)

	if path := configFilePath(v); path != "" {
		if err := applyFileValues(v, path, pinned); err != nil {
			return err
		}
	}
	applyEnvValues(v, pinned)
	return nil
}

// pinnedFlags collects the names of flags set explicitly on the
// command line. Those fields already hold the value the user asked
// for and must not be overwritten by file or environment.
func pinnedFlags(cmd *cobra.Command) map[string]bool {
	pinned := make(map[string]bool)
	if cmd == nil {
		return pinned
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			pinned[f.Name] = true
		}
	})
	return pinned
}

// configFilePath reads the Config field, which names the TOML file
// the remaining options may come from.
func configFilePath(v reflect.Value) string {
	f := v.FieldByName("Config")
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

func applyFileValues(v reflect.Value, path string, pinned map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing config file is normal: defaults, flags and env
		// still apply.
		return nil
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("toml")
		if key == "" || pinned[flagName(field.Name)] {
			continue
		}
		if value := lookup(tree, key); value != nil {
			assign(v.Field(i), value)
		}
	}
	return nil
}

func applyEnvValues(v reflect.Value, pinned map[string]bool) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("env")
		if key == "" || pinned[flagName(field.Name)] {
			continue
		}
		if raw := os.Getenv(envPrefix + key); raw != "" {
			assignString(v.Field(i), raw)
		}
	}
}

// flagName converts a field name to its kebab-case flag form,
// e.g. LoggingLevel -> logging-level.
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup walks a dotted key through nested TOML tables.
func lookup(tree map[string]any, key string) any {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := tree[part].(map[string]any)
		if !ok {
			return nil
		}
		tree = next
	}
	return tree[parts[len(parts)-1]]
}

// assign stores a decoded TOML value into an options field when the
// kinds line up. go-toml decodes integers as int64 and arrays as
// []any.
func assign(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, len(arr))
		for i, item := range arr {
			if s, ok := item.(string); ok {
				out[i] = s
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// assignString stores an environment value into an options field.
// Slices split on commas with surrounding whitespace trimmed.
func assignString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.Atoi(raw); err == nil {
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		out := make([]string, len(parts))
		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(out))
	}
}

// LoadLoggingConfig extracts the [logging] table from the config
// file. level and format are reserved keys; any other key sets that
// module's level. A missing or unparseable file yields the defaults.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var file struct {
		Logging map[string]string `toml:"logging"`
	}
	if toml.Unmarshal(data, &file) != nil {
		return cfg
	}

	for key, value := range file.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
