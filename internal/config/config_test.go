package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/passcode/internal/config"
)

func valid() config.Config {
	return config.Config{
		KeyFile:    "secret.key",
		ChunkSize:  config.DefaultChunkSize,
		Timeout:    config.DefaultTimeout,
		BundleName: config.DefaultBundleName,
		LogLevel:   "info",
		Files:      []string{"a.txt"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults"},
		{name: "plain bytes", mutate: func(c *config.Config) { c.ChunkSize = "1048576" }},
		{name: "spaced unit", mutate: func(c *config.Config) { c.ChunkSize = "1 MB" }},
		{name: "max chunk", mutate: func(c *config.Config) { c.ChunkSize = "1GiB" }},
		{name: "chunk too big", mutate: func(c *config.Config) { c.ChunkSize = "2GiB" }, wantErr: "--chunk-size"},
		{name: "chunk zero", mutate: func(c *config.Config) { c.ChunkSize = "0" }, wantErr: "--chunk-size"},
		{name: "chunk garbage", mutate: func(c *config.Config) { c.ChunkSize = "lots" }, wantErr: "--chunk-size"},
		{name: "no key file", mutate: func(c *config.Config) { c.KeyFile = "" }, wantErr: "--key-file is required"},
		{name: "no files", mutate: func(c *config.Config) { c.Files = nil }, wantErr: "arguments"},
		{name: "negative parallel", mutate: func(c *config.Config) { c.Parallel = -1 }, wantErr: "--parallel"},
		{name: "bad level", mutate: func(c *config.Config) { c.LogLevel = "loud" }, wantErr: "--log-level"},
		{name: "bundle name with dir", mutate: func(c *config.Config) { c.BundleName = "x/y.zip" }, wantErr: "--bundle-name"},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Timeout = -time.Second }, wantErr: "--timeout"},
		{
			name:    "output with many files",
			mutate:  func(c *config.Config) { c.Output = "out"; c.Files = []string{"a.lock", "b.lock"} },
			wantErr: "--output",
		},
		{name: "output with one file", mutate: func(c *config.Config) { c.Output = "out" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSkip(t *testing.T) {
	t.Parallel()

	cfg := valid()
	cfg.Files = nil

	require.Error(t, cfg.Validate())
	require.NoError(t, cfg.Validate("Files"))

	cfg = valid()
	cfg.KeyFile = ""

	require.NoError(t, cfg.Validate("KeyFile"))
}

func TestChunkBytes(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]int{
		"32MiB":   32 << 20,
		"1 MB":    1_000_000,
		"1048576": 1 << 20,
		"1GiB":    1 << 30,
	} {
		cfg := valid()
		cfg.ChunkSize = in
		assert.Equal(t, want, cfg.ChunkBytes(), in)
	}
}

func TestMasked(t *testing.T) {
	t.Parallel()

	cfg := valid()
	cfg.Password = "hunter2"

	masked := cfg.Masked()
	assert.NotContains(t, masked.Password, "hunter2")
	assert.Equal(t, "hunter2", cfg.Password, "original is not modified")

	cfg.Password = ""
	assert.Empty(t, cfg.Masked().Password)
}
