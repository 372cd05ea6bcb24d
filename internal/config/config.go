package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/spawn/internal/logging"
	"github.com/smazurov/spawn/internal/process"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` tag when reading environment variables.
const EnvPrefix = "SPAWN_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// If cmd is provided, flags explicitly set via CLI will not be overwritten.
//
// opts must point to a struct. Fields are bound through `toml:"section.key"`
// and `env:"KEY"` tags; a field named Config holds the config file path.
// A []string field tagged `split:"shell"` accepts a single string, split
// with shell-like quoting.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	// Build set of flags explicitly changed via CLI
	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	// Get config file path
	var configPath string
	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String {
		if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" && !changedFlags["config"] {
			field.SetString(envPath)
		}
		configPath = field.String()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		var config map[string]any
		if err := toml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}

		for i := 0; i < v.NumField(); i++ {
			fieldType := t.Field(i)

			// Skip if this flag was explicitly set via CLI
			if changedFlags[fieldNameToFlag(fieldType.Name)] {
				continue
			}

			tomlPath := fieldType.Tag.Get("toml")
			if tomlPath == "" {
				continue
			}
			if value := getNestedValue(config, tomlPath); value != nil {
				if err := setFieldValue(v.Field(i), fieldType, value); err != nil {
					return fmt.Errorf("config %s: %w", tomlPath, err)
				}
			}
		}
	}

	// Apply environment variable overrides (skip CLI-set flags)
	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)

		if changedFlags[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		envKey := fieldType.Tag.Get("env")
		if envKey == "" {
			continue
		}
		if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
			if err := setFieldValueFromString(v.Field(i), fieldType, envValue); err != nil {
				return fmt.Errorf("environment %s%s: %w", EnvPrefix, envKey, err)
			}
		}
	}

	return nil
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Interval" -> "interval".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			return nil
		}
	}
	return nil
}

var errWrongType = errors.New("wrong value type")

// setFieldValue sets a field from a decoded TOML value.
func setFieldValue(field reflect.Value, fieldType reflect.StructField, value any) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		switch val := value.(type) {
		case string:
			d, err := time.ParseDuration(val)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		case int64:
			field.SetInt(int64(time.Duration(val) * time.Second))
		case float64:
			field.SetInt(int64(val * float64(time.Second)))
		default:
			return fmt.Errorf("%w %T for duration", errWrongType, value)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w %T, want string", errWrongType, value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w %T, want bool", errWrongType, value)
		}
		field.SetBool(b)
	case reflect.Int:
		i, ok := value.(int64)
		if !ok {
			return fmt.Errorf("%w %T, want integer", errWrongType, value)
		}
		field.SetInt(i)
	case reflect.Uint:
		i, ok := value.(int64)
		if !ok || i < 0 {
			return fmt.Errorf("%w %v, want non-negative integer", errWrongType, value)
		}
		field.SetUint(uint64(i))
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		default:
			return fmt.Errorf("%w %T, want number", errWrongType, value)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		switch val := value.(type) {
		case []any:
			slice := make([]string, len(val))
			for i, item := range val {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("%w %T in array, want string", errWrongType, item)
				}
				slice[i] = s
			}
			field.Set(reflect.ValueOf(slice))
		case string:
			return setSliceFromString(field, fieldType, val)
		default:
			return fmt.Errorf("%w %T, want array", errWrongType, value)
		}
	}
	return nil
}

// setFieldValueFromString sets a field value from string (for env vars).
func setFieldValueFromString(field reflect.Value, fieldType reflect.StructField, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int:
		i, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint:
		i, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return err
		}
		field.SetUint(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			return setSliceFromString(field, fieldType, value)
		}
	}
	return nil
}

// setSliceFromString splits value with shell quoting for `split:"shell"`
// fields and on commas otherwise.
func setSliceFromString(field reflect.Value, fieldType reflect.StructField, value string) error {
	if fieldType.Tag.Get("split") == "shell" {
		args, err := process.ParseCommand(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(args))
		return nil
	}

	parts := strings.Split(value, ",")
	slice := make([]string, len(parts))
	for i, part := range parts {
		slice[i] = strings.TrimSpace(part)
	}
	field.Set(reflect.ValueOf(slice))
	return nil
}

// LoadLoggingConfig loads logging configuration from a TOML config file.
// Module levels come from a [logging.modules] table; any other string key
// under [logging] besides level and format is also read as a module level.
// A missing path yields the defaults.
func LoadLoggingConfig(configPath string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &rawConfig); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	for key, value := range rawConfig.Logging {
		switch val := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = val
			case "format":
				cfg.Format = val
			default:
				cfg.Modules[key] = val
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range val {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}

	return cfg, nil
}
