// Package logger builds the hclog loggers used across the tools.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Config holds logger configuration.
type Config struct {
	// Name is the root logger name.
	Name string
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string
	// Format is the output format (text, json).
	Format string
	// Output is the output writer (defaults to os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Name:   "connectivity",
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

// New creates a logger. Unknown levels fall back to info.
func New(cfg Config) hclog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       cfg.Name,
		Level:      level,
		Output:     output,
		JSONFormat: strings.EqualFold(cfg.Format, "json"),
	})
}

// OrNull returns l, or a discarding logger when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
