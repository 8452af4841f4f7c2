// Package config loads and validates scrivener's configuration.
//
// Configuration is a plain value object constructed once at process start
// (Load) and passed by reference into the batch lifecycle components. There
// is no ambient global configuration state; environment overrides are applied
// during Load and nowhere else.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file is absent or fields are unset.
const (
	DefaultBatchSize     = 100
	DefaultPollWorkers   = 4
	DefaultStaleAfter    = 24 * time.Hour
	DefaultModel         = "claude-sonnet-4-5"
	DefaultMaxTokens     = 1024
	DefaultBaseURL       = "https://api.anthropic.com"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	defaultDataDirName   = ".scrivener"
	defaultConfigName    = "config.yaml"
	defaultRequestBudget = 2 * time.Minute
)

// Batch size bounds. The remote batch API rejects oversized submissions, so
// the cap is enforced locally before anything is sent.
const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

// EnvAPIKey is the environment variable holding the remote API key. It always
// overrides the config file value.
const EnvAPIKey = "SCRIVENER_API_KEY"

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or "24h".
type Duration time.Duration

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config validation errors.
var (
	ErrBatchSizeOutOfRange = errors.New("batch size must be between 1 and 1000")
	ErrPollWorkersInvalid  = errors.New("poll workers must be at least 1")
	ErrStaleAfterNegative  = errors.New("stale_after cannot be negative")
	ErrDataDirEmpty        = errors.New("data directory cannot be empty")
)

// LoggingConfig holds the logging section of the config file.
type LoggingConfig struct {
	// Level is the minimum log level ("trace" through "fatal").
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
	// File optionally mirrors log output to a file.
	File string `yaml:"file"`
}

// RemoteConfig holds the remote batch API section.
type RemoteConfig struct {
	// BaseURL is the API endpoint root.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests. Usually supplied via SCRIVENER_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`
	// MaxTokens caps the generated comment length per request.
	MaxTokens int `yaml:"max_tokens"`
	// RequestTimeout bounds a single HTTP round trip (not the batch itself).
	RequestTimeout Duration `yaml:"request_timeout"`
}

// BatchConfig holds the batch lifecycle section.
type BatchConfig struct {
	// Size caps the number of items grouped into one submission.
	Size int `yaml:"size"`
	// PollWorkers bounds how many jobs one status pass inspects concurrently.
	PollWorkers int `yaml:"poll_workers"`
	// StaleAfter flags jobs older than this in status output. It never
	// triggers any state change on its own.
	StaleAfter Duration `yaml:"stale_after"`
}

// SourceConfig holds the source provider section.
type SourceConfig struct {
	// Root is the repository root scanned for files to document.
	Root string `yaml:"root"`
	// Extensions limits scanning to these file extensions (with dot).
	Extensions []string `yaml:"extensions"`
}

// Config is the complete scrivener configuration.
type Config struct {
	// DataDir is the root for all durable state (batch registry, quarantine).
	DataDir string `yaml:"data_dir"`

	Logging LoggingConfig `yaml:"logging"`
	Remote  RemoteConfig  `yaml:"remote"`
	Batch   BatchConfig   `yaml:"batch"`
	Source  SourceConfig  `yaml:"source"`
}

// DefaultDataDir returns ~/.scrivener, falling back to a relative directory
// when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, defaultDataDirName)
}

// DefaultConfigPath returns the default config file location inside the
// default data directory.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), defaultConfigName)
}

// New returns a Config populated with defaults only.
func New() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Remote: RemoteConfig{
			BaseURL:        DefaultBaseURL,
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			RequestTimeout: Duration(defaultRequestBudget),
		},
		Batch: BatchConfig{
			Size:        DefaultBatchSize,
			PollWorkers: DefaultPollWorkers,
			StaleAfter:  Duration(DefaultStaleAfter),
		},
		Source: SourceConfig{
			Root:       ".",
			Extensions: []string{".go", ".ts", ".js", ".py"},
		},
	}
}

// Load reads the config file at path (DefaultConfigPath when empty), merges
// it over the defaults, applies environment overrides, and validates the
// result. A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file is fine; run on defaults.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, unmarshalErr)
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.Remote.APIKey = key
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields so a sparse config file still
// produces a usable Config.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = DefaultBaseURL
	}
	if c.Remote.Model == "" {
		c.Remote.Model = DefaultModel
	}
	if c.Remote.MaxTokens == 0 {
		c.Remote.MaxTokens = DefaultMaxTokens
	}
	if c.Remote.RequestTimeout == 0 {
		c.Remote.RequestTimeout = Duration(defaultRequestBudget)
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Batch.PollWorkers == 0 {
		c.Batch.PollWorkers = DefaultPollWorkers
	}
	if c.Batch.StaleAfter == 0 {
		c.Batch.StaleAfter = Duration(DefaultStaleAfter)
	}
	if c.Source.Root == "" {
		c.Source.Root = "."
	}
	if len(c.Source.Extensions) == 0 {
		c.Source.Extensions = []string{".go", ".ts", ".js", ".py"}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside the lifecycle manager.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	if c.Batch.Size < MinBatchSize || c.Batch.Size > MaxBatchSize {
		return fmt.Errorf("%w: got %d", ErrBatchSizeOutOfRange, c.Batch.Size)
	}
	if c.Batch.PollWorkers < 1 {
		return fmt.Errorf("%w: got %d", ErrPollWorkersInvalid, c.Batch.PollWorkers)
	}
	if c.Batch.StaleAfter < 0 {
		return fmt.Errorf("%w: got %s", ErrStaleAfterNegative, c.Batch.StaleAfter)
	}
	return nil
}

// BatchDir returns the directory holding active batch records.
func (c *Config) BatchDir() string {
	return filepath.Join(c.DataDir, "batches")
}
