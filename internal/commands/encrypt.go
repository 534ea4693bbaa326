package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
)

// NewEncryptCommand creates a new cobra command for the encrypt subcommand.
func NewEncryptCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "encrypt [flags] paths...",
		Aliases: []string{"enc"},
		Short:   "Encrypt, verify and erase files",
		Long: `Encrypt every file into <file>.lock and every directory into <dir>.zip.lock.
Each container is decrypted and compared with the original before the original is erased.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: preRun(cfg),
		RunE: run(cfg, askPassword, func(cmd *cobra.Command, r *logic.Runner) error {
			return r.Encrypt(cmd.Context())
		}),
	}

	cmd.Flags().StringP("chunk-size", "c", config.DefaultChunkSize, "Plaintext bytes per record, e.g. 32MiB or 1048576")
	cmd.Flags().Bool("keep", false, "Keep the originals after successful verification")
	cmd.Flags().BoolP("bundle", "b", false, "Encrypt all arguments into a single bundle")
	cmd.Flags().String("bundle-name", config.DefaultBundleName, "File name of the bundle, created next to the first argument")

	return cmd
}
