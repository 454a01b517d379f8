// Package config provides configuration loading for launchpad.
//
// Configuration is read from a YAML file and overridden by environment
// variables. Every section maps onto one component; cmd/launchpad turns the
// sections into component options.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation providers accepted in PipelineConfig.Provider.
var providers = map[string]bool{
	"github-actions": true,
	"temporal":       true,
	"nats":           true,
	"local":          true,
}

// Config holds the complete launchpad configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	VCS           VCSConfig           `koanf:"vcs"`
	GitHub        GitHubConfig        `koanf:"github"`
	Validation    ValidationConfig    `koanf:"validation"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	NATS          NATSConfig          `koanf:"nats"`
	Deploy        DeployConfig        `koanf:"deploy"`
	Catalog       CatalogConfig       `koanf:"catalog"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// PipelineConfig holds orchestrator and poller settings.
type PipelineConfig struct {
	// Provider is the default validation provider (default: local)
	Provider string `koanf:"provider"`

	Recovery          bool          `koanf:"recovery"`
	Rollback          bool          `koanf:"rollback"`
	MaxNetworkRetries int           `koanf:"max_network_retries"`
	NetworkBaseDelay  time.Duration `koanf:"network_base_delay"`

	PollInterval    time.Duration `koanf:"poll_interval"`
	PollMaxInterval time.Duration `koanf:"poll_max_interval"`
	PollTimeout     time.Duration `koanf:"poll_timeout"`

	// Temporal submits deployments to a Temporal worker instead of running
	// them in-process.
	Temporal bool `koanf:"temporal"`
}

// VCSConfig selects the version-control host.
type VCSConfig struct {
	// Host is github or local (default: local)
	Host string `koanf:"host"`

	// Root is where the local host keeps repositories.
	Root string `koanf:"root"`

	AuthorName    string `koanf:"author_name"`
	AuthorEmail   string `koanf:"author_email"`
	DefaultBranch string `koanf:"default_branch"`
}

// GitHubConfig holds GitHub host and Actions settings.
type GitHubConfig struct {
	Token   Secret `koanf:"token"`
	BaseURL string `koanf:"base_url"`

	// User is the authenticated login; other owners are organisations.
	User    string `koanf:"user"`
	Private bool   `koanf:"private"`

	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
	MaxRetries        int     `koanf:"max_retries"`

	// WorkflowFile is the Actions workflow committed into each repository.
	WorkflowFile string `koanf:"workflow_file"`
}

// ValidationConfig configures the artifact checker.
type ValidationConfig struct {
	TemplateFile     string `koanf:"template_file"`
	QualityThreshold int    `koanf:"quality_threshold"`

	// SecretScan enables the security scan; Gitleaks adds the gitleaks rule set.
	SecretScan bool `koanf:"secret_scan"`
	Gitleaks   bool `koanf:"gitleaks"`
}

// TemporalConfig holds Temporal client settings.
type TemporalConfig struct {
	HostPort            string        `koanf:"host_port"`
	Namespace           string        `koanf:"namespace"`
	ValidationTaskQueue string        `koanf:"validation_task_queue"`
	DeploymentTaskQueue string        `koanf:"deployment_task_queue"`
	DeploymentTimeout   time.Duration `koanf:"deployment_timeout"`
}

// NATSConfig holds NATS connection, validation and notification settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	Token          Secret        `koanf:"token"`
	Subject        string        `koanf:"subject"`
	Queue          string        `koanf:"queue"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// Notify publishes pipeline events under NotifySubject.
	Notify        bool   `koanf:"notify"`
	NotifySubject string `koanf:"notify_subject"`
}

// DeployConfig configures the filesystem deployment target.
type DeployConfig struct {
	Root              string        `koanf:"root"`
	PlatformConfig    string        `koanf:"platform_config"`
	ReloadURL         string        `koanf:"reload_url"`
	ReadinessURL      string        `koanf:"readiness_url"`
	APIURL            string        `koanf:"api_url"`
	ReadinessTimeout  time.Duration `koanf:"readiness_timeout"`
	ReadinessInterval time.Duration `koanf:"readiness_interval"`
}

// CatalogConfig configures the file catalog.
type CatalogConfig struct {
	Dir string `koanf:"dir"`
}

// LoggingConfig overrides the logger's level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`

	// Protocol is grpc or http/protobuf (default: grpc)
	Protocol string `koanf:"protocol"`

	// TLS is required for collectors off this machine.
	TLS    bool   `koanf:"tls"`
	CAFile string `koanf:"ca_file"`

	// SampleRate is the fraction of pipeline runs traced (default: 1)
	SampleRate float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Provider:          "local",
			Recovery:          true,
			Rollback:          true,
			MaxNetworkRetries: 3,
			NetworkBaseDelay:  time.Second,
			PollInterval:      5 * time.Second,
			PollMaxInterval:   time.Minute,
			PollTimeout:       30 * time.Minute,
		},
		VCS: VCSConfig{
			Host:          "local",
			AuthorName:    "launchpad",
			AuthorEmail:   "launchpad@localhost",
			DefaultBranch: "main",
		},
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			Burst:             5,
			MaxRetries:        2,
		},
		Validation: ValidationConfig{
			TemplateFile:     "template.yaml",
			QualityThreshold: 70,
			SecretScan:       true,
			Gitleaks:         true,
		},
		Temporal: TemporalConfig{
			HostPort:            "localhost:7233",
			Namespace:           "default",
			ValidationTaskQueue: "launchpad-validation",
			DeploymentTaskQueue: "launchpad-deploy",
			DeploymentTimeout:   time.Hour,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			Subject:        "launchpad.validate",
			Queue:          "launchpad-validators",
			RequestTimeout: 5 * time.Minute,
			NotifySubject:  "launchpad.events",
		},
		Deploy: DeployConfig{
			ReadinessTimeout:  time.Minute,
			ReadinessInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "launchpad",
			SampleRate:      1,
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - The validation provider or VCS host is unknown
//   - The GitHub host or the github-actions provider is selected without a token
//   - The quality threshold is outside 0-100
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if !providers[c.Pipeline.Provider] {
		return fmt.Errorf("unknown validation provider: %q", c.Pipeline.Provider)
	}
	if c.Pipeline.MaxNetworkRetries < 0 {
		return errors.New("max network retries cannot be negative")
	}

	switch c.VCS.Host {
	case "local":
	case "github":
		if !c.GitHub.Token.IsSet() {
			return errors.New("github token required for the github host")
		}
	default:
		return fmt.Errorf("unknown vcs host: %q", c.VCS.Host)
	}
	if c.Pipeline.Provider == "github-actions" && c.VCS.Host != "github" {
		return errors.New("github-actions provider requires the github vcs host")
	}

	if c.Validation.QualityThreshold < 0 || c.Validation.QualityThreshold > 100 {
		return fmt.Errorf("invalid quality threshold: %d (must be 0-100)", c.Validation.QualityThreshold)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
