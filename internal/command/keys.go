package command

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/KyungWonPark/Connectivity/internal/confound"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
)

// KeysCommand lists the arrays stored in a structured array file.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "List the keys and shapes of a structured array file",
		ArgsUsage: "FILE",
		Action:    keysAction,
	}
}

func keysAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	path := c.Args().First()

	f, err := arrayio.OpenArrayFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", confound.ErrFileAccess, err)
	}
	defer f.Close()

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSHAPE")

	for _, key := range f.Keys() {
		a, err := f.Get(key)
		if err != nil {
			fmt.Fprintf(tw, "%s\t? (%v)\n", key, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, shapeString(a.Shape))
	}

	return tw.Flush()
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
