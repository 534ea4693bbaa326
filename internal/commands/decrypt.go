package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
)

// NewDecryptCommand creates a new cobra command for the decrypt subcommand.
func NewDecryptCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decrypt [flags] paths...",
		Aliases: []string{"dec"},
		Short:   "Decrypt containers",
		Long: `Decrypt every .lock file given or found under a directory argument.
Decrypted bundles are unpacked in place. Containers are removed only after success.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: preRun(cfg, "ChunkSize", "BundleName"),
		RunE: run(cfg, askPassword, func(cmd *cobra.Command, r *logic.Runner) error {
			return r.Decrypt(cmd.Context())
		}),
	}

	cmd.Flags().StringP("output", "o", "", "Write the decrypted file here; needs exactly one container")

	return cmd
}
