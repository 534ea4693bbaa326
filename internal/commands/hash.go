package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
)

// NewHashCommand creates a new cobra command for the hash subcommand.
func NewHashCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "hash [flags] paths...",
		Short:   "Print base64 SHA-256 digests of files",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: preRun(cfg, "KeyFile", "ChunkSize", "BundleName"),
		RunE: run(cfg, noPassword, func(cmd *cobra.Command, r *logic.Runner) error {
			return r.Hash(cmd.Context())
		}),
	}
}
