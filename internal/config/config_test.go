package config

import (
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v, want nil", err)
	}
	if cfg.Pipeline.Provider != "local" {
		t.Errorf("Pipeline.Provider = %q, want local", cfg.Pipeline.Provider)
	}
	if !cfg.Pipeline.Recovery || !cfg.Pipeline.Rollback {
		t.Error("recovery and rollback should be enabled by default")
	}
	if cfg.Pipeline.MaxNetworkRetries != 3 {
		t.Errorf("Pipeline.MaxNetworkRetries = %d, want 3", cfg.Pipeline.MaxNetworkRetries)
	}
	if cfg.VCS.Host != "local" {
		t.Errorf("VCS.Host = %q, want local", cfg.VCS.Host)
	}
	if cfg.Temporal.DeploymentTaskQueue != "launchpad-deploy" {
		t.Errorf("Temporal.DeploymentTaskQueue = %q, want launchpad-deploy", cfg.Temporal.DeploymentTaskQueue)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Pipeline.Provider = "jenkins" },
			wantErr: "unknown validation provider",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Pipeline.MaxNetworkRetries = -1 },
			wantErr: "negative",
		},
		{
			name:    "unknown vcs host",
			mutate:  func(c *Config) { c.VCS.Host = "gitlab" },
			wantErr: "unknown vcs host",
		},
		{
			name:    "github host without token",
			mutate:  func(c *Config) { c.VCS.Host = "github" },
			wantErr: "github token required",
		},
		{
			name: "github host with token",
			mutate: func(c *Config) {
				c.VCS.Host = "github"
				c.GitHub.Token = Secret("ghp_example")
			},
		},
		{
			name:    "actions provider on local host",
			mutate:  func(c *Config) { c.Pipeline.Provider = "github-actions" },
			wantErr: "requires the github vcs host",
		},
		{
			name:    "quality threshold out of range",
			mutate:  func(c *Config) { c.Validation.QualityThreshold = 101 },
			wantErr: "quality threshold",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
