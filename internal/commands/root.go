package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idelchi/passcode/internal/config"
)

// NewRootCommand creates the root command with common configuration.
// It sets up environment variable binding and flag handling.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	v := viper.New()

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "passcode [flags] command [flags]",
		Short: "Password-based file encryption",
		Long: `A file encryption utility that derives its key from a password.
Every container is verified by decrypting it before the original is securely erased.
Provides commands for key generation, encryption, decryption and hashing.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindEnv("password"); err != nil {
				return fmt.Errorf("binding environment: %w", err)
			}

			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("binding flags: %w", err)
			}

			if err := v.Unmarshal(cfg); err != nil {
				return fmt.Errorf("parsing configuration: %w", err)
			}

			return nil
		},
	}

	root.PersistentFlags().StringP("key-file", "k", "", "Path to the key file")
	root.PersistentFlags().IntP("parallel", "j", runtime.NumCPU(), "Number of parallel jobs, defaults to number of CPUs")
	root.PersistentFlags().Duration("timeout", config.DefaultTimeout, "Abandon jobs not started after this long, 0 disables")
	root.PersistentFlags().StringSliceP("exclude", "e", nil, "Glob patterns of paths to leave out")
	root.PersistentFlags().String("exclude-from", "", "JSONC file with a list of exclude patterns")
	root.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-error output")
	root.PersistentFlags().Bool("stats", false, "Print statistics after the run")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	root.PersistentFlags().BoolP("show", "s", false, "Show the configuration and exit")

	root.AddCommand(
		NewKeyCommand(cfg),
		NewEncryptCommand(cfg),
		NewDecryptCommand(cfg),
		NewHashCommand(cfg),
	)

	return root
}
