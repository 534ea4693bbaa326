// Package commands provides the command-line interface for the passcode tool.
//
// It implements commands for:
//   - key generation and checking
//   - encryption
//   - decryption
//   - hashing
//
// The package handles command-line parsing, configuration validation,
// and environment variable binding through cobra and viper.
package commands

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
)

// preRun returns a PreRunE handler that stores positional args in cfg.Files
// and validates the configuration, leaving out the fields named in skip.
func preRun(cfg *config.Config, skip ...string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		cfg.Files = args

		if cfg.Show {
			return nil
		}

		return cfg.Validate(skip...)
	}
}

// passwordMode tells run whether a command needs the password, and whether to confirm it.
type passwordMode int

const (
	noPassword passwordMode = iota
	askPassword
	confirmPassword
)

// run returns a RunE handler that prints the configuration for --show,
// or reads the password and hands a Runner to fn.
func run(cfg *config.Config, pw passwordMode, fn func(*cobra.Command, *logic.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if cfg.Show {
			return show(cmd.OutOrStdout(), cfg)
		}

		var secret []byte

		if pw != noPassword {
			var err error

			secret, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.Password, pw == confirmPassword)
			if err != nil {
				return err
			}

			defer clear(secret)
		}

		runner, err := logic.New(cfg, secret, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		return fn(cmd, runner)
	}
}

func show(w io.Writer, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return fmt.Errorf("marshalling configuration: %w", err)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	return nil
}
