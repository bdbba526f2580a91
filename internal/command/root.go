// Package command provides CLI command definitions for the connectivity
// tool.
//
// It uses urfave/cli/v2. The root Before hook loads configuration and builds
// the logger and metrics registry shared by every command.
package command

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/KyungWonPark/Connectivity/internal/buildinfo"
	"github.com/KyungWonPark/Connectivity/internal/config"
	"github.com/KyungWonPark/Connectivity/internal/logger"
	"github.com/KyungWonPark/Connectivity/internal/metrics"
)

const (
	metaConfig  = "config"
	metaLogger  = "logger"
	metaMetrics = "metrics"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "connectivity",
		Usage:   "Confound loading and functional connectivity for resting-state fMRI",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ConfoundsCommand(),
			KeysCommand(),
			RunCommand(),
			Npy2CSVCommand(),
			PackCommand(),
		},
		Before: before,
		After:  after,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"CONN_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: trace, debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
	}
}

func before(c *cli.Context) error {
	overrides := make(map[string]any)
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	if c.IsSet("log-format") {
		overrides["log.format"] = c.String("log-format")
	}

	cfg, err := config.NewLoader(
		config.WithFile(c.String("config")),
		config.WithOverrides(overrides),
	).Load()
	if err != nil {
		return err
	}

	lg := logger.New(logger.Config{
		Name:   "connectivity",
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})

	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLogger] = lg
	c.App.Metadata[metaMetrics] = metrics.NewRegistry()
	return nil
}

// after dumps metrics when a textfile path is configured
func after(c *cli.Context) error {
	cfg, ok := c.App.Metadata[metaConfig].(*config.Config)
	if !ok || cfg.Metrics.Textfile == "" {
		return nil
	}

	if err := getMetrics(c).WriteTextfile(cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func getLogger(c *cli.Context) hclog.Logger {
	if lg, ok := c.App.Metadata[metaLogger].(hclog.Logger); ok {
		return lg
	}
	return hclog.NewNullLogger()
}

func getMetrics(c *cli.Context) *metrics.Registry {
	if reg, ok := c.App.Metadata[metaMetrics].(*metrics.Registry); ok {
		return reg
	}
	return nil
}

// requireArgs checks the positional argument count
func requireArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s: expected %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}
