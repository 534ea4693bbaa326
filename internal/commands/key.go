package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
)

// NewKeyCommand groups the key file subcommands.
func NewKeyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the key file",
		Long: `Generate a key file from a password, or check a password against one.
The key file holds the salt and the derived key itself, so keep it private.`,
	}

	cmd.AddCommand(newKeyGenerateCommand(cfg), newKeyCheckCommand(cfg))

	return cmd
}

func newKeyGenerateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate [flags]",
		Aliases: []string{"gen"},
		Short:   "Generate a new key file",
		Args:    cobra.NoArgs,
		PreRunE: preRun(cfg, "Files", "ChunkSize", "BundleName"),
		RunE: run(cfg, confirmPassword, func(_ *cobra.Command, r *logic.Runner) error {
			return r.GenerateKey()
		}),
	}

	cmd.Flags().Bool("force", false, "Replace an existing key file")

	return cmd
}

func newKeyCheckCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "check [flags]",
		Short:   "Check a password against the key file",
		Args:    cobra.NoArgs,
		PreRunE: preRun(cfg, "Files", "ChunkSize", "BundleName"),
		RunE: run(cfg, askPassword, func(_ *cobra.Command, r *logic.Runner) error {
			return r.CheckKey()
		}),
	}
}
