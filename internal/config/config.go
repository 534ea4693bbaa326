// Package config holds the command-line configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

const (
	// DefaultChunkSize is the default plaintext window per record.
	DefaultChunkSize = "32MiB"
	// DefaultTimeout bounds a whole batch.
	DefaultTimeout = time.Hour
	// DefaultBundleName names the bundle built from several items.
	DefaultBundleName = "encrypted_bundle.zip"
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "PASSCODE"
)

// Config is the resolved configuration of one command invocation.
type Config struct {
	// KeyFile is the path of the key file.
	KeyFile string `label:"--key-file" mapstructure:"key-file" yaml:"key-file" validate:"required"`

	// Password is read from PASSCODE_PASSWORD; when empty the user is prompted.
	Password string `label:"PASSCODE_PASSWORD" mapstructure:"password" yaml:"password"`

	// ChunkSize is a human-readable size such as "32MiB" or "1048576".
	ChunkSize string `label:"--chunk-size" mapstructure:"chunk-size" yaml:"chunk-size" validate:"chunksize"`

	// Parallel is the number of concurrent jobs; 0 means one per CPU.
	Parallel int `label:"--parallel" mapstructure:"parallel" yaml:"parallel" validate:"gte=0"`

	// Timeout bounds a batch; 0 disables it.
	Timeout time.Duration `label:"--timeout" mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`

	// Keep retains originals after successful verification.
	Keep bool `mapstructure:"keep" yaml:"keep"`

	// Force overwrites an existing key file when generating.
	Force bool `mapstructure:"force" yaml:"force"`

	// Bundle encrypts all arguments as one bundle.
	Bundle bool `mapstructure:"bundle" yaml:"bundle"`

	// BundleName is the file name of the bundle, created next to the first argument.
	BundleName string `label:"--bundle-name" mapstructure:"bundle-name" yaml:"bundle-name" validate:"required,excludesall=/\\"`

	// Output is the decrypted path; only valid for a single container.
	Output string `label:"--output" mapstructure:"output" yaml:"output"`

	// Exclude holds glob patterns of paths to leave out.
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`

	// ExcludeFrom is a JSONC file with more exclude patterns.
	ExcludeFrom string `label:"--exclude-from" mapstructure:"exclude-from" yaml:"exclude-from"`

	Quiet    bool   `mapstructure:"quiet" yaml:"quiet"`
	Stats    bool   `mapstructure:"stats" yaml:"stats"`
	LogLevel string `label:"--log-level" mapstructure:"log-level" yaml:"log-level" validate:"oneof=debug info warn error"`
	NoColor  bool   `mapstructure:"no-color" yaml:"no-color"`
	Show     bool   `mapstructure:"show" yaml:"show"`

	// Files are the positional arguments.
	Files []string `label:"arguments" mapstructure:"-" yaml:"files" validate:"min=1"`
}

// ChunkBytes returns the parsed chunk size. It assumes Validate passed.
func (c Config) ChunkBytes() int {
	n, _ := parseChunkSize(c.ChunkSize) //nolint:errcheck // validated

	return n
}

// Masked returns a copy safe to print.
func (c Config) Masked() Config {
	if c.Password != "" {
		c.Password = strings.Repeat("*", 8) //nolint:mnd
	}

	return c
}

// Validate checks the configuration against its struct tags and cross-field rules.
// Fields named in skip (Go field names) are not checked, for commands that do not use them.
func (c Config) Validate(skip ...string) error {
	validate, err := newValidator()
	if err != nil {
		return err
	}

	if len(skip) > 0 {
		err = validate.StructExcept(c, skip...)
	} else {
		err = validate.Struct(c)
	}

	if err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			return describe(invalid)
		}

		return fmt.Errorf("validating configuration: %w", err)
	}

	if c.Output != "" && len(c.Files) > 1 {
		return fmt.Errorf("%w: --output needs exactly one argument, got %d", ErrInvalid, len(c.Files))
	}

	return nil
}

// ErrInvalid is returned for configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

func describe(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))

	for _, e := range errs {
		switch e.Tag() {
		case "chunksize":
			messages = append(messages, fmt.Sprintf("%s: %q is not a size between 1 B and %s",
				e.Field(), e.Value(), humanize.IBytes(maxChunkSize)))
		case "required":
			messages = append(messages, e.Field()+" is required")
		case "min":
			messages = append(messages, fmt.Sprintf("%s: at least %s needed", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s: failed %q %s (got %v)", e.Field(), e.Tag(), e.Param(), e.Value()))
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

// parseChunkSize accepts plain byte counts and humanized sizes such as "32MiB" or "1 MB".
func parseChunkSize(s string) (int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parsing chunk size %q: %w", s, err)
	}

	if n == 0 || n > maxChunkSize {
		return 0, fmt.Errorf("chunk size %s out of range", humanize.IBytes(n))
	}

	return int(n), nil //nolint:gosec // bounded by maxChunkSize
}
