// Command connectivity loads confound matrices and computes functional
// connectivity for resting-state fMRI studies.
package main

import (
	"fmt"
	"os"

	"github.com/KyungWonPark/Connectivity/internal/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
