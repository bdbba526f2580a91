package command

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/KyungWonPark/Connectivity/internal/connectivity"
	"github.com/KyungWonPark/Connectivity/internal/dataset"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
	"github.com/KyungWonPark/Connectivity/internal/pipeline"
)

// RunCommand runs the connectivity pipeline over a manifest.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Compute raw and confound-cleaned connectivity for every subject",
		ArgsUsage: "MANIFEST",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "result-dir",
				Usage: "Directory for run outputs (default from config)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: npy, csv, bin",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Process only the first N subjects",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Row workers per kernel (0 is one per CPU)",
			},
			&cli.IntFlag{
				Name:  "queue-size",
				Usage: "Subjects buffered between loading and correlation",
			},
			&cli.BoolFlag{
				Name:  "standardize",
				Usage: "Z-score region signals before correlation",
			},
			&cli.BoolFlag{
				Name:  "fisher-z",
				Usage: "Write Fisher z-transformed matrices",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Zero correlations at or below this magnitude",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	cfg := *getConfig(c)

	if c.IsSet("result-dir") {
		cfg.ResultDir = c.String("result-dir")
	}
	if c.IsSet("format") {
		cfg.Pipeline.Format = c.String("format")
	}
	if c.IsSet("limit") {
		cfg.Pipeline.Limit = c.Int("limit")
	}
	if c.IsSet("workers") {
		cfg.Pipeline.Workers = c.Int("workers")
	}
	if c.IsSet("queue-size") {
		cfg.Pipeline.QueueSize = c.Int("queue-size")
	}
	if c.IsSet("standardize") {
		cfg.Extract.Standardize = c.Bool("standardize")
	}
	if c.IsSet("fisher-z") {
		cfg.Pipeline.FisherZ = c.Bool("fisher-z")
	}
	if c.IsSet("threshold") {
		cfg.Pipeline.Threshold = c.Float64("threshold")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, err := arrayio.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return err
	}

	manifestPath := c.Args().First()
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(cfg.DataDir, manifestPath)
	}
	m, err := dataset.Load(manifestPath)
	if err != nil {
		return err
	}

	post := connectivity.Post{FisherZ: cfg.Pipeline.FisherZ}
	if cfg.Pipeline.Threshold > 0 {
		thr := cfg.Pipeline.Threshold
		post.Threshold = &thr
	}

	runner := pipeline.New(pipeline.Options{
		ResultDir:   cfg.ResultDir,
		Format:      format,
		QueueSize:   cfg.Pipeline.QueueSize,
		Workers:     cfg.Pipeline.Workers,
		ConfoundKey: cfg.Confound.Key,
		Transpose:   cfg.Confound.Transpose,
		Standardize: cfg.Extract.Standardize,
		Post:        post,
		Limit:       cfg.Pipeline.Limit,
		Logger:      getLogger(c),
		Metrics:     getMetrics(c),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, m)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "run %s: %d raw, %d clean (%d without confounds) in %s\n",
		res.RunID, res.Counts[pipeline.VariantRaw], res.Counts[pipeline.VariantClean], len(res.Skipped), res.Duration)
	fmt.Fprintf(c.App.Writer, "outputs in %s\n", res.Dir)
	return nil
}
