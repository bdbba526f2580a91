package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
)

// Npy2CSVCommand converts a 2-D .npy matrix to CSV.
func Npy2CSVCommand() *cli.Command {
	return &cli.Command{
		Name:      "npy2csv",
		Usage:     "Convert a .npy matrix to CSV",
		ArgsUsage: "FILE.npy [OUT.csv]",
		Action:    npy2csvAction,
	}
}

func npy2csvAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	fileName := c.Args().Get(0)
	out := c.Args().Get(1)
	if out == "" {
		out = fileName + ".csv"
	}

	m, err := arrayio.NpytoMat64(fileName)
	if err != nil {
		return err
	}
	getLogger(c).Debug("read npy file", "path", fileName)

	if err := arrayio.Mat64toCSV(out, m); err != nil {
		return err
	}

	rows, cols := m.Dims()
	fmt.Fprintf(c.App.Writer, "wrote %s (%d x %d)\n", out, rows, cols)
	return nil
}
