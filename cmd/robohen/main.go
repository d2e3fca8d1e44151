// Package main provides robohen, a single-file archive engine built on the
// TAR/PAX wire format.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/robohen/robohen/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, os.Environ(), sigCh)

	os.Exit(exitCode)
}
