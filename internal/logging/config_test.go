package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Console)
	assert.False(t, cfg.OTEL)
	assert.Equal(t, "launchpad", cfg.Service)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, time.Second, cfg.Sampling.Tick)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Contains(t, cfg.Redaction.Keys, "github_token")
	assert.Contains(t, cfg.Redaction.Keys, "nats_token")
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"console format", func(c *Config) { c.Format = "console" }, ""},
		{"unknown format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no output", func(c *Config) { c.Console = false }, "at least one output"},
		{"otel only", func(c *Config) { c.Console = false; c.OTEL = true }, ""},
		{"zero sampling tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"zero sampling initial", func(c *Config) { c.Sampling.Initial = 0 }, "sampling initial"},
		{"sampling off ignores tick", func(c *Config) { c.Sampling = SamplingConfig{} }, ""},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"[unclosed"} }, "invalid redaction pattern"},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", maxPatternLen+1)} }, "too long"},
		{"redaction off ignores patterns", func(c *Config) {
			c.Redaction.Enabled = false
			c.Redaction.Patterns = []string{"[unclosed"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
