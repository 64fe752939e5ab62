package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in string values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadFile loads a YAML configuration file and substitutes ${VAR}
// placeholders from the environment. Missing environment variables are
// replaced with the empty string and logged as a warning.
func LoadFile(path string, logger *slog.Logger) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	if m == nil {
		if logger != nil {
			logger.Warn("configuration file is empty", slog.String("path", path))
		}
		return New(nil), nil
	}

	substituted, _ := substituteEnv(m, logger).(map[string]any)
	return New(substituted), nil
}

// LoadDir loads and merges the configuration directory layout:
//
//	main.yaml    - required, base configuration
//	logging.yaml - optional, merged under "logging"
//	modules.yaml - optional, merged under "modules"
//
// Optional files that fail to parse are skipped with a warning rather
// than failing the whole load.
func LoadDir(dir string, logger *slog.Logger) (Config, error) {
	if _, err := os.Stat(dir); err != nil {
		return Config{}, fmt.Errorf("configuration directory: %w", err)
	}

	cfg, err := LoadFile(filepath.Join(dir, "main.yaml"), logger)
	if err != nil {
		return Config{}, err
	}
	merged := cfg.Raw()

	if sub, ok := loadOptional(filepath.Join(dir, "logging.yaml"), logger); ok {
		if section, exists := sub.Raw()["logging"]; exists {
			merged["logging"] = section
		}
	}

	if sub, ok := loadOptional(filepath.Join(dir, "modules.yaml"), logger); ok {
		modules, _ := merged["modules"].(map[string]any)
		if modules == nil {
			modules = make(map[string]any)
		}
		for key, value := range sub.Raw() {
			modules[key] = value
		}
		merged["modules"] = modules
	}

	return New(merged), nil
}

func loadOptional(path string, logger *slog.Logger) (Config, bool) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, false
	}
	cfg, err := LoadFile(path, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("skipping optional config file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return Config{}, false
	}
	return cfg, true
}

// substituteEnv walks the decoded YAML tree and expands ${VAR}
// placeholders in every string value.
func substituteEnv(value any, logger *slog.Logger) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = substituteEnv(item, logger)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substituteEnv(item, logger)
		}
		return out
	case string:
		return envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
			name := envVarPattern.FindStringSubmatch(match)[1]
			val, ok := os.LookupEnv(name)
			if !ok {
				if logger != nil {
					logger.Warn("environment variable not set, substituting empty string",
						slog.String("variable", name))
				}
				return ""
			}
			return val
		})
	default:
		return value
	}
}
