package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hattiebot/toolpilot/internal/connectors"
)

// FileName is the config file looked up in the config dir.
const FileName = "config.yaml"

// Config holds runtime configuration. Secrets (e.g. API key) come from the
// environment or a .env file; config.yaml should reference them as ${VAR}.
type Config struct {
	// Model is the OpenRouter model id (e.g. moonshotai/kimi-k2.5).
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// UserID is passed to the prompt and written to the invocation log.
	UserID string `yaml:"user_id"`

	// ConfigDir is where config.yaml and the database live (e.g. ~/.config/toolpilot or .toolpilot).
	ConfigDir string `yaml:"-"`
	DBPath    string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	MaxParallel int           `yaml:"max_parallel"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	// ToolOutputMaxRunes caps tool output length (0 = no truncation).
	ToolOutputMaxRunes int `yaml:"tool_output_max_runes"`
	// CalendarMarkers are substrings of a full tool name that mark calendar tools.
	CalendarMarkers []string `yaml:"calendar_markers"`

	Retention Retention `yaml:"retention"`

	Connectors []connectors.Spec `yaml:"connectors"`
}

// Retention bounds the invocation log.
type Retention struct {
	MaxAge     time.Duration `yaml:"max_age"`
	MaxEntries int           `yaml:"max_entries"`
	// Schedule is a cron expression for the cleanup job.
	Schedule string `yaml:"schedule"`
}

// Default returns a Config with defaults for everything but the connectors.
func Default(configDir string) *Config {
	return &Config{
		Model:              "moonshotai/kimi-k2.5",
		UserID:             "local",
		ConfigDir:          configDir,
		DBPath:             filepath.Join(configDir, "toolpilot.db"),
		LogLevel:           "info",
		MaxParallel:        4,
		ToolTimeout:        30 * time.Second,
		ToolOutputMaxRunes: 8000,
		Retention: Retention{
			MaxAge:     30 * 24 * time.Hour,
			MaxEntries: 10000,
			Schedule:   "@hourly",
		},
	}
}

// DefaultConfigDir returns the default config directory (project-local .toolpilot if present, else ~/.config/toolpilot).
func DefaultConfigDir() string {
	cwd, _ := os.Getwd()
	local := filepath.Join(cwd, ".toolpilot")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "toolpilot")
}

// Load builds config from defaults, then <configDir>/config.yaml (or path, when set),
// then the environment. configDir can be empty to use TOOLPILOT_CONFIG_DIR or the default.
// A missing default config file is not an error; a missing explicit path is.
func Load(configDir, path string) (*Config, error) {
	if configDir == "" {
		if d := os.Getenv("TOOLPILOT_CONFIG_DIR"); d != "" {
			configDir = d
		} else {
			configDir = DefaultConfigDir()
		}
	}
	loadEnvFiles(configDir)

	cfg := Default(configDir)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnv(cfg)
	if !filepath.IsAbs(cfg.DBPath) && cfg.DBPath != ":memory:" {
		cfg.DBPath = filepath.Join(configDir, cfg.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands environment references in data and overlays the YAML onto cfg.
// Keys missing from the YAML keep their current value.
func Parse(data []byte, cfg *Config) error {
	expanded := ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// Validate checks limits and every connector spec.
func (c *Config) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel)
	}
	if c.ToolOutputMaxRunes < 0 {
		return fmt.Errorf("tool_output_max_runes must be >= 0, got %d", c.ToolOutputMaxRunes)
	}
	seen := make(map[string]bool, len(c.Connectors))
	for _, s := range c.Connectors {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate connector id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references with environment values.
// An unset ${VAR} without a default is left as written.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(m[1]); ok && val != "" {
			return val
		}
		if strings.Contains(match, ":-") {
			return m[2]
		}
		if val, ok := os.LookupEnv(m[1]); ok {
			return val
		}
		return match
	})
}

// loadEnvFiles loads .env from the working directory and the config dir.
// godotenv.Load does not overwrite variables that are already set.
func loadEnvFiles(configDir string) {
	for _, f := range []string{".env", filepath.Join(configDir, ".env")} {
		_ = godotenv.Load(f)
	}
}

// applyEnv overrides file values with TOOLPILOT_* variables. Priority: defaults < file < env.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && (cfg.APIKey == "" || strings.HasPrefix(cfg.APIKey, "${")) {
		cfg.APIKey = v
	}
	if v := os.Getenv("TOOLPILOT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TOOLPILOT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TOOLPILOT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TOOLPILOT_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("TOOLPILOT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TOOLPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TOOLPILOT_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogPretty = b
		}
	}
	if v := os.Getenv("TOOLPILOT_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxParallel = n
		}
	}
	if v := os.Getenv("TOOLPILOT_TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ToolTimeout = d
		}
	}
	if v := os.Getenv("TOOLPILOT_TOOL_OUTPUT_MAX_RUNES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ToolOutputMaxRunes = n
		}
	}
	if v := os.Getenv("TOOLPILOT_CALENDAR_MARKERS"); v != "" {
		var markers []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				markers = append(markers, m)
			}
		}
		cfg.CalendarMarkers = markers
	}
}
