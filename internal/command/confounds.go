package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/KyungWonPark/Connectivity/internal/confound"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
)

// ConfoundsCommand loads a confound matrix and reports or converts it.
func ConfoundsCommand() *cli.Command {
	return &cli.Command{
		Name:      "confounds",
		Usage:     "Load a confound matrix from a structured array file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "Array key to read (default from config, R)",
			},
			&cli.BoolFlag{
				Name:  "transpose",
				Usage: "Transpose the stored array into time by regressor",
				Value: true,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the matrix to this .npy, .csv or .bin file",
			},
		},
		Action: confoundsAction,
	}
}

func confoundsAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	cfg := getConfig(c)
	path := c.Args().First()

	key := cfg.Confound.Key
	if c.IsSet("key") {
		key = c.String("key")
	}
	transpose := cfg.Confound.Transpose
	if c.IsSet("transpose") {
		transpose = c.Bool("transpose")
	}

	m, err := confound.Load(path,
		confound.WithKey(key),
		confound.WithTranspose(transpose),
		confound.WithLogger(getLogger(c)),
		confound.WithMetrics(getMetrics(c)),
	)
	if err != nil {
		return err
	}

	rows, cols := m.Dims()
	fmt.Fprintf(c.App.Writer, "%s: key %s, %d frames x %d regressors, fingerprint %016x\n",
		path, key, rows, cols, confound.Fingerprint(m))

	out := c.String("out")
	if out == "" {
		return nil
	}

	format, err := arrayio.FormatOf(out)
	if err != nil {
		return err
	}
	if err := arrayio.WriteMatrix(out, format, m); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
	return nil
}
