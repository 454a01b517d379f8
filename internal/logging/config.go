package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level
	Format string // json or console

	// Console writes entries to stderr. stdout belongs to command output
	// such as `launchpad deploy` results.
	Console bool
	// OTEL also sends entries through the OpenTelemetry log bridge.
	OTEL bool

	// Service is added to every entry as the service field.
	Service string

	Caller bool
	// Stacktraces adds a stack to error entries.
	Stacktraces bool

	Sampling  SamplingConfig
	Redaction RedactionConfig
}

// SamplingConfig bounds repeated debug and info entries. Warnings and
// errors are never sampled.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists what the encoder masks. Keys match field names
// case-insensitively; patterns are masked wherever they occur in a
// message or string value.
type RedactionConfig struct {
	Enabled  bool
	Keys     []string
	Patterns []string
}

const maxPatternLen = 200

// NewDefaultConfig returns the config launchpad starts from.
func NewDefaultConfig() *Config {
	return &Config{
		Level:       zapcore.InfoLevel,
		Format:      "json",
		Console:     true,
		Service:     "launchpad",
		Caller:      true,
		Stacktraces: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Redaction: DefaultRedaction(),
	}
}

// DefaultRedaction covers the credentials launchpad handles: GitHub
// tokens, NATS tokens and nkey seeds, and credentials embedded in git
// remote URLs.
func DefaultRedaction() RedactionConfig {
	return RedactionConfig{
		Enabled: true,
		Keys: []string{
			"password", "secret", "token", "authorization", "credential", "private_key",
			"github_token", "nats_token", "nkey_seed", "webhook_secret",
		},
		Patterns: []string{
			`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
			`gh[pousr]_[A-Za-z0-9]{36,}`,
			`github_pat_[A-Za-z0-9_]{22,}`,
			`\bS[OAU][A-Z2-7]{56}\b`,
			`://[^/\s:@]+:[^/\s@]+@`,
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Console && !c.OTEL {
		return errors.New("at least one output must be enabled (console or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return errors.New("sampling tick must be > 0 when sampling enabled")
	}
	if c.Sampling.Enabled && c.Sampling.Initial <= 0 {
		return errors.New("sampling initial must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
