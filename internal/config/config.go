// Package config loads runtime configuration.
//
// Sources, later overriding earlier: defaults, YAML file, environment
// (CONN_ prefix), then explicit overrides from command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/KyungWonPark/Connectivity/internal/confound"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
)

// EnvPrefix is the environment variable prefix. Nested keys are separated
// by a double underscore: CONN_PIPELINE__QUEUE_SIZE sets pipeline.queue_size.
const EnvPrefix = "CONN_"

// ErrInvalid is returned when a loaded configuration fails validation
var ErrInvalid = errors.New("config: invalid")

// Config is the full runtime configuration
type Config struct {
	DataDir   string `koanf:"data_dir"`
	ResultDir string `koanf:"result_dir"`

	Confound struct {
		Key       string `koanf:"key"`
		Transpose bool   `koanf:"transpose"`
	} `koanf:"confound"`

	Extract struct {
		Standardize bool `koanf:"standardize"`
	} `koanf:"extract"`

	Pipeline struct {
		QueueSize int    `koanf:"queue_size"`
		Workers   int    `koanf:"workers"`
		Format    string `koanf:"format"`
		// Threshold zeroes correlations at or below it in magnitude; 0 is off
		Threshold float64 `koanf:"threshold"`
		FisherZ   bool    `koanf:"fisher_z"`
		// Limit processes only the first n subjects; 0 is all
		Limit int `koanf:"limit"`
	} `koanf:"pipeline"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	Metrics struct {
		Textfile string `koanf:"textfile"`
	} `koanf:"metrics"`
}

// Default returns the built-in configuration. The legacy DATA and RESULT
// environment variables seed the data and result directories.
func Default() *Config {
	cfg := &Config{
		DataDir:   os.Getenv("DATA"),
		ResultDir: os.Getenv("RESULT"),
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.ResultDir == "" {
		cfg.ResultDir = "result"
	}

	cfg.Confound.Key = confound.DefaultKey
	cfg.Confound.Transpose = true
	cfg.Pipeline.QueueSize = 4
	cfg.Pipeline.Format = string(arrayio.FormatNpy)
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

func (c *Config) toMap() map[string]any {
	return map[string]any{
		"data_dir":            c.DataDir,
		"result_dir":          c.ResultDir,
		"confound.key":        c.Confound.Key,
		"confound.transpose":  c.Confound.Transpose,
		"extract.standardize": c.Extract.Standardize,
		"pipeline.queue_size": c.Pipeline.QueueSize,
		"pipeline.workers":    c.Pipeline.Workers,
		"pipeline.format":     c.Pipeline.Format,
		"pipeline.threshold":  c.Pipeline.Threshold,
		"pipeline.fisher_z":   c.Pipeline.FisherZ,
		"pipeline.limit":      c.Pipeline.Limit,
		"log.level":           c.Log.Level,
		"log.format":          c.Log.Format,
		"metrics.textfile":    c.Metrics.Textfile,
	}
}

// Loader layers configuration sources
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader
type Option func(*Loader)

// WithFile adds a YAML file source. An empty path is ignored.
func WithFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvPrefix replaces EnvPrefix
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithOverrides sets dotted keys above every other source
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		for k, v := range values {
			l.overrides[k] = v
		}
	}
}

// NewLoader returns a Loader
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
		overrides: make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges all sources and validates the result
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(mapProvider(Default().toMap()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	transform := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := l.k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is shorthand for NewLoader(WithFile(path)).Load()
func Load(path string) (*Config, error) {
	return NewLoader(WithFile(path)).Load()
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var problems []string

	if c.Confound.Key == "" {
		problems = append(problems, "confound.key is empty")
	}
	if c.Pipeline.QueueSize < 1 {
		problems = append(problems, fmt.Sprintf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize))
	}
	if c.Pipeline.Workers < 0 {
		problems = append(problems, fmt.Sprintf("pipeline.workers must not be negative, got %d", c.Pipeline.Workers))
	}
	if _, err := arrayio.ParseFormat(c.Pipeline.Format); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Pipeline.Threshold < 0 || c.Pipeline.Threshold >= 1 {
		problems = append(problems, fmt.Sprintf("pipeline.threshold must be in [0, 1), got %v", c.Pipeline.Threshold))
	}
	if c.Pipeline.Limit < 0 {
		problems = append(problems, fmt.Sprintf("pipeline.limit must not be negative, got %d", c.Pipeline.Limit))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ErrReadBytesNotSupported is returned by the map provider's ReadBytes
var ErrReadBytesNotSupported = errors.New("config: map provider has no byte form")

// mapProvider feeds a flat map of dotted keys to koanf
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
