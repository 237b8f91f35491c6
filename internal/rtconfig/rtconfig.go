// Package rtconfig loads the engine's runtime tunables: defaults, then
// an optional YAML file, then environment overrides decoded with
// envdecode, with a .env file loaded first via godotenv for local/dev
// runs.
package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BrowserConfig holds Browser Driver launch settings. The run and debug
// commands read ExecutablePath; LaunchTimeout and Headless are loaded but
// not read by any caller.
type BrowserConfig struct {
	ExecutablePath string `yaml:"executable_path" env:"REFRESHMINT_BROWSER_PATH"`
	LaunchTimeout  int    `yaml:"launch_timeout_ms" env:"REFRESHMINT_BROWSER_LAUNCH_TIMEOUT_MS"`
	Headless       bool   `yaml:"headless" env:"REFRESHMINT_BROWSER_HEADLESS"`
}

// SandboxConfig holds Sandbox Runtime settings. DebugSocketEnabled gates
// the debug command. The wait timeout and poll interval are exposed through
// WaitTimeout and PollInterval; the sandbox's waits use its own 30 s
// timeout and 100 ms poll interval and do not read them.
type SandboxConfig struct {
	DefaultWaitTimeout int  `yaml:"default_wait_timeout_ms" env:"REFRESHMINT_SANDBOX_WAIT_TIMEOUT_MS"`
	PollIntervalMS     int  `yaml:"poll_interval_ms" env:"REFRESHMINT_SANDBOX_POLL_INTERVAL_MS"`
	DebugSocketEnabled bool `yaml:"debug_socket_enabled" env:"REFRESHMINT_SANDBOX_DEBUG_SOCKET"`
}

// DedupConfig holds the Dedup Engine's matching tolerances at their
// default values. The dedup package classifies with its own constants and
// does not read these fields.
type DedupConfig struct {
	FuzzyDateToleranceDays   int     `yaml:"fuzzy_date_tolerance_days" env:"REFRESHMINT_DEDUP_FUZZY_DATE_DAYS"`
	FuzzyAmountEpsilon       float64 `yaml:"fuzzy_amount_epsilon" env:"REFRESHMINT_DEDUP_FUZZY_AMOUNT_EPSILON"`
	PendingFinalDays         int     `yaml:"pending_final_days" env:"REFRESHMINT_DEDUP_PENDING_FINAL_DAYS"`
	PendingFinalAbsTolerance float64 `yaml:"pending_final_abs_tolerance" env:"REFRESHMINT_DEDUP_PENDING_FINAL_ABS"`
	PendingFinalRelTolerance float64 `yaml:"pending_final_rel_tolerance" env:"REFRESHMINT_DEDUP_PENDING_FINAL_REL"`
}

// CategorizeConfig holds Categorization Engine settings. The suggest
// command reads LaplaceAlpha; classification uses the categorize package's
// own ConfidenceThreshold and AccountWarmupSize constants, not these fields.
type CategorizeConfig struct {
	LaplaceAlpha        float64 `yaml:"laplace_alpha" env:"REFRESHMINT_CATEGORIZE_ALPHA"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"REFRESHMINT_CATEGORIZE_THRESHOLD"`
	AccountWarmupSize   float64 `yaml:"account_warmup_size" env:"REFRESHMINT_CATEGORIZE_WARMUP"`
}

// LoggingConfig controls logrus setup.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"REFRESHMINT_LOG_LEVEL"`
	Format string `yaml:"format" env:"REFRESHMINT_LOG_FORMAT"`
	Output string `yaml:"output" env:"REFRESHMINT_LOG_OUTPUT"`
}

// Config is the top-level engine configuration.
type Config struct {
	LedgerRoot string `yaml:"ledger_root" env:"REFRESHMINT_LEDGER_ROOT"`

	Browser    BrowserConfig    `yaml:"browser"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Categorize CategorizeConfig `yaml:"categorize"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// New returns a Config populated with the engine's built-in defaults.
func New() *Config {
	return &Config{
		Browser: BrowserConfig{
			LaunchTimeout: 10_000,
			Headless:      false,
		},
		Sandbox: SandboxConfig{
			DefaultWaitTimeout: 30_000,
			PollIntervalMS:     100,
			DebugSocketEnabled: true,
		},
		Dedup: DedupConfig{
			FuzzyDateToleranceDays:   1,
			FuzzyAmountEpsilon:       0.005,
			PendingFinalDays:         7,
			PendingFinalAbsTolerance: 5.0,
			PendingFinalRelTolerance: 0.20,
		},
		Categorize: CategorizeConfig{
			LaplaceAlpha:        1.0,
			ConfidenceThreshold: 0.5,
			AccountWarmupSize:   20.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load loads a .env file (if present), an optional YAML file named by
// REFRESHMINT_CONFIG_FILE or ./refreshmint.config.yaml, then applies
// environment overrides, in that precedence order.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("REFRESHMINT_CONFIG_FILE"))
	if path == "" {
		path = "refreshmint.config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged field is present in the
		// environment; treat that case as "no overrides".
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// WaitTimeout returns Sandbox.DefaultWaitTimeout as a time.Duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Sandbox.DefaultWaitTimeout) * time.Millisecond
}

// PollInterval returns Sandbox.PollIntervalMS as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sandbox.PollIntervalMS) * time.Millisecond
}
