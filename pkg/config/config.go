// Package config loads the sessionizer configuration.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only supported config API version.
const CurrentVersion = "v1"

// Default locations, relative to the working directory.
const (
	DefaultLogFile              = "../input/log.csv"
	DefaultInactivityPeriodFile = "../input/inactivity_period.txt"
	DefaultOutputFile           = "../output/sessionization.txt"

	defaultMaxOpenConns  = 25
	defaultBatchSize     = 500
	defaultRetentionDays = 90
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// Config holds the complete sessionizer configuration.
type Config struct {
	APIVersion string         `yaml:"apiVersion"`
	Input      InputConfig    `yaml:"input"`
	Output     OutputConfig   `yaml:"output"`
	Database   DatabaseConfig `yaml:"database"`
	Audit      AuditConfig    `yaml:"audit"`
	Storage    StorageConfig  `yaml:"storage"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// InputConfig configures the access log and inactivity period sources.
type InputConfig struct {
	LogFile              string `yaml:"log_file"`
	InactivityPeriodFile string `yaml:"inactivity_period_file"`
	InactivityPeriod     int    `yaml:"inactivity_period"` // seconds; used when no file is set
	RequireSorted        *bool  `yaml:"require_sorted"`    // default: true
}

// OutputConfig configures the session output file.
type OutputConfig struct {
	File string `yaml:"file"`
}

// DatabaseConfig configures the optional PostgreSQL session sink.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	BatchSize    int    `yaml:"batch_size"`
}

// AuditConfig configures run auditing.
type AuditConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// StorageConfig configures object storage for s3:// locations.
type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the S3 client.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	ReadOnly        bool   `yaml:"read_only"` // reject s3:// output locations
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads configuration from a YAML file.
// The path is expected to come from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentVersion
	}
	if cfg.APIVersion != CurrentVersion {
		return nil, fmt.Errorf("unsupported config apiVersion %q (supported: %s)", cfg.APIVersion, CurrentVersion)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentVersion
	}
	if cfg.Input.LogFile == "" {
		cfg.Input.LogFile = DefaultLogFile
	}
	if cfg.Input.InactivityPeriodFile == "" && cfg.Input.InactivityPeriod == 0 {
		cfg.Input.InactivityPeriodFile = DefaultInactivityPeriodFile
	}
	if cfg.Input.RequireSorted == nil {
		sorted := true
		cfg.Input.RequireSorted = &sorted
	}
	if cfg.Output.File == "" {
		cfg.Output.File = DefaultOutputFile
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.BatchSize == 0 {
		cfg.Database.BatchSize = defaultBatchSize
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = defaultRetentionDays
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Input.LogFile == "" {
		errs = append(errs, "input.log_file is required")
	}
	if c.Output.File == "" {
		errs = append(errs, "output.file is required")
	}
	if c.Input.InactivityPeriodFile == "" && c.Input.InactivityPeriod <= 0 {
		errs = append(errs, "input.inactivity_period_file or a positive input.inactivity_period is required")
	}
	if c.Database.BatchSize < 0 {
		errs = append(errs, "database.batch_size must not be negative")
	}
	if c.Audit.Enabled && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when audit is enabled")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequireSortedInput reports whether decreasing timestamps are rejected.
func (c *Config) RequireSortedInput() bool {
	return c.Input.RequireSorted == nil || *c.Input.RequireSorted
}

// InactivityPeriod resolves the inactivity period. The side file, when set,
// takes precedence over the inline value.
func (c *Config) InactivityPeriod() (time.Duration, error) {
	if c.Input.InactivityPeriodFile != "" {
		return ReadInactivityPeriod(c.Input.InactivityPeriodFile)
	}
	if c.Input.InactivityPeriod <= 0 {
		return 0, fmt.Errorf("inactivity period must be positive, got %d", c.Input.InactivityPeriod)
	}
	return time.Duration(c.Input.InactivityPeriod) * time.Second, nil
}

// ReadInactivityPeriod reads a whole number of seconds from the first line
// of the file at path.
func ReadInactivityPeriod(path string) (time.Duration, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening inactivity period file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseInactivityPeriod(f)
}

// ParseInactivityPeriod parses a whole, positive number of seconds from the
// first line of r. Later lines are ignored.
func ParseInactivityPeriod(r io.Reader) (time.Duration, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("reading inactivity period: %w", err)
		}
		return 0, errors.New("inactivity period is empty")
	}

	line := strings.TrimSpace(scanner.Text())
	seconds, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("parsing inactivity period %q: %w", line, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("inactivity period must be positive, got %d", seconds)
	}

	return time.Duration(seconds) * time.Second, nil
}
