package main

import (
	"os"

	cerr "cci/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Commands print their own one-line message to stderr via
		// cobra; only the exit code is decided here.
		os.Exit(cerr.ExitCode(err))
	}
}
