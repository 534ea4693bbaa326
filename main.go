// Command passcode encrypts files with a password-derived key, verifies every
// container and securely erases the originals.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/idelchi/passcode/internal/commands"
	"github.com/idelchi/passcode/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "unknown - unofficial build"

func main() {
	os.Exit(run())
}

func run() int {
	// Interrupts stop jobs from starting; jobs already running finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Config{}

	if err := commands.NewRootCommand(cfg, version).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck

		return 1
	}

	return 0
}
