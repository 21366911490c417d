package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/commandpost/commandpost-go/launcher/internal/cmd"
)

// Set by the build process using ldflags.
var (
	version   = "unknown"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	root := cmd.NewRootCmd(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
