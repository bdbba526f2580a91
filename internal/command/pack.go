package command

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
)

// PackCommand bundles .npy and .csv matrices into one .npz container.
func PackCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Bundle matrices into an .npz confound container",
		ArgsUsage: "[KEY=]FILE ...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output .npz file",
				Required: true,
			},
		},
		Action: packAction,
	}
}

func packAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	arrays := make(map[string]*arrayio.Array, c.NArg())
	for _, arg := range c.Args().Slice() {
		key, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			key = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		if _, dup := arrays[key]; dup {
			return fmt.Errorf("pack: duplicate key %q", key)
		}

		a, err := readArray(path)
		if err != nil {
			return err
		}
		arrays[key] = a
	}

	out := c.String("out")
	if err := arrayio.WriteNpz(out, arrays); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %s (%d arrays)\n", out, len(arrays))
	return nil
}

func readArray(path string) (*arrayio.Array, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return arrayio.ReadNpy(path)
	case ".csv":
		m, err := arrayio.CSVtoMat64(path)
		if err != nil {
			return nil, err
		}
		return arrayio.ArrayOf(m), nil
	}
	return nil, fmt.Errorf("pack: %s: %w", path, arrayio.ErrUnsupportedFormat)
}
