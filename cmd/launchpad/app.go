package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/ci/actions"
	"github.com/fyrsmithlabs/launchpad/internal/ci/local"
	"github.com/fyrsmithlabs/launchpad/internal/ci/natsci"
	"github.com/fyrsmithlabs/launchpad/internal/ci/temporalci"
	"github.com/fyrsmithlabs/launchpad/internal/config"
	"github.com/fyrsmithlabs/launchpad/internal/deploy"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/notify"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/poller"
	"github.com/fyrsmithlabs/launchpad/internal/recovery"
	"github.com/fyrsmithlabs/launchpad/internal/secrets"
	"github.com/fyrsmithlabs/launchpad/internal/telemetry"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
	"github.com/fyrsmithlabs/launchpad/internal/vcs/githubhost"
	"github.com/fyrsmithlabs/launchpad/internal/vcs/localgit"
)

// app holds the process-wide components built from configuration. Clients
// are created on first use and released by close.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry

	scanner  *secrets.Scanner
	checker  *validation.Checker
	catalog  *catalog.File
	nc       *nats.Conn
	temporal client.Client

	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := loggingConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, tel: tel}
	a.closers = append(a.closers, func() error { return tel.Shutdown(context.Background()) })
	return a, nil
}

// close releases clients in reverse creation order.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	obs := cfg.Observability
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = obs.EnableTelemetry
	tc.ServiceName = obs.ServiceName
	tc.ServiceVersion = version
	if obs.Endpoint != "" {
		tc.Endpoint = obs.Endpoint
	}
	if obs.Protocol != "" {
		tc.Protocol = obs.Protocol
	}
	tc.Insecure = !obs.TLS
	tc.CAFile = obs.CAFile
	tc.SampleRate = obs.SampleRate
	return tc
}

func loggingConfig(cfg *config.Config) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		lc.Level = level
	}
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.OTEL = cfg.Observability.EnableTelemetry
	if cfg.Observability.ServiceName != "" {
		lc.Service = cfg.Observability.ServiceName
	}
	return lc, nil
}

func (a *app) secretScanner() (*secrets.Scanner, error) {
	if a.scanner != nil || !a.cfg.Validation.SecretScan {
		return a.scanner, nil
	}
	sc := secrets.DefaultConfig()
	sc.Gitleaks = a.cfg.Validation.Gitleaks
	scanner, err := secrets.New(sc)
	if err != nil {
		return nil, fmt.Errorf("creating secret scanner: %w", err)
	}
	a.scanner = scanner
	return scanner, nil
}

func (a *app) validationChecker() (*validation.Checker, error) {
	if a.checker != nil {
		return a.checker, nil
	}
	scanner, err := a.secretScanner()
	if err != nil {
		return nil, err
	}
	a.checker = validation.NewChecker(scanner, validation.Options{
		TemplateFile:     a.cfg.Validation.TemplateFile,
		QualityThreshold: a.cfg.Validation.QualityThreshold,
	})
	return a.checker, nil
}

func (a *app) fileCatalog() (*catalog.File, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	c, err := catalog.NewFile(a.cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	a.catalog = c
	return c, nil
}

func (a *app) natsConn() (*nats.Conn, error) {
	if a.nc != nil {
		return a.nc, nil
	}
	opts := []nats.Option{nats.Name("launchpad")}
	if a.cfg.NATS.Token.IsSet() {
		opts = append(opts, nats.Token(a.cfg.NATS.Token.Value()))
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", a.cfg.NATS.URL, err)
	}
	a.nc = nc
	a.closers = append(a.closers, func() error {
		if nc.IsClosed() {
			return nil
		}
		return nc.Drain()
	})
	return nc, nil
}

func (a *app) temporalClient() (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}
	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	a.temporal = c
	a.closers = append(a.closers, func() error { c.Close(); return nil })
	return c, nil
}

// host returns the configured version-control host. The GitHub host is also
// returned separately for the Actions provider.
func (a *app) host(ctx context.Context) (vcs.Host, *githubhost.Host, error) {
	switch a.cfg.VCS.Host {
	case "github":
		gh, err := githubhost.NewClient(ctx, a.cfg.GitHub.Token, a.cfg.GitHub.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		h := githubhost.New(gh, githubOptions(a.cfg), a.logger)
		return h, h, nil
	default:
		h, err := localgit.New(a.cfg.VCS.Root, localgit.Options{
			AuthorName:    a.cfg.VCS.AuthorName,
			AuthorEmail:   a.cfg.VCS.AuthorEmail,
			DefaultBranch: a.cfg.VCS.DefaultBranch,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening local git host: %w", err)
		}
		return h, nil, nil
	}
}

func githubOptions(cfg *config.Config) githubhost.Options {
	retry := githubhost.DefaultRetryConfig()
	retry.MaxRetries = cfg.GitHub.MaxRetries
	return githubhost.Options{
		User:              cfg.GitHub.User,
		Private:           cfg.GitHub.Private,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
		Retry:             *retry,
	}
}

// providers builds every validation provider the configuration can serve.
// The local provider is always present; the others are added when their
// backend is configured as the default or reachable.
func (a *app) providers(gh *githubhost.Host) (*ci.Set, error) {
	checker, err := a.validationChecker()
	if err != nil {
		return nil, err
	}
	list := []ci.Provider{local.New(checker, a.logger)}

	if gh != nil {
		list = append(list, actions.New(gh, actions.Options{WorkflowFile: a.cfg.GitHub.WorkflowFile}, a.logger))
	}

	switch a.cfg.Pipeline.Provider {
	case string(ci.KindNATS):
		nc, err := a.natsConn()
		if err != nil {
			return nil, err
		}
		p, err := natsci.New(nc, natsOptions(a.cfg), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		list = append(list, p)
	case string(ci.KindTemporal):
		tc, err := a.temporalClient()
		if err != nil {
			return nil, err
		}
		list = append(list, temporalci.New(tc, temporalci.Options{TaskQueue: a.cfg.Temporal.ValidationTaskQueue}, a.logger))
	}

	return ci.NewSet(list...)
}

func natsOptions(cfg *config.Config) natsci.Options {
	return natsci.Options{
		Subject:        cfg.NATS.Subject,
		Queue:          cfg.NATS.Queue,
		RequestTimeout: cfg.NATS.RequestTimeout,
	}
}

func pollerOptions(cfg *config.Config) poller.Options {
	return poller.Options{
		Interval:    cfg.Pipeline.PollInterval,
		MaxInterval: cfg.Pipeline.PollMaxInterval,
		Multiplier:  2,
		Timeout:     cfg.Pipeline.PollTimeout,
	}
}

func deployOptions(cfg *config.Config) deploy.Options {
	return deploy.Options{
		Root:              cfg.Deploy.Root,
		PlatformConfig:    cfg.Deploy.PlatformConfig,
		ReloadURL:         cfg.Deploy.ReloadURL,
		ReadinessURL:      cfg.Deploy.ReadinessURL,
		APIURL:            cfg.Deploy.APIURL,
		ReadinessTimeout:  cfg.Deploy.ReadinessTimeout,
		ReadinessInterval: cfg.Deploy.ReadinessInterval,
	}
}

func orchestratorOptions(cfg *config.Config) orchestrator.Options {
	return orchestrator.Options{
		Recovery: cfg.Pipeline.Recovery,
		Rollback: cfg.Pipeline.Rollback,
	}
}

// notifier logs every event and, when enabled, publishes it on NATS.
func (a *app) notifier() (notify.Notifier, error) {
	scanner, err := a.secretScanner()
	if err != nil {
		return nil, err
	}
	var redactor notify.Redactor
	if scanner != nil {
		redactor = scanner
	}
	notifiers := notify.Multi{notify.NewLog(a.logger, redactor)}
	if a.cfg.NATS.Notify {
		nc, err := a.natsConn()
		if err != nil {
			return nil, err
		}
		n, err := notify.NewNATS(nc, a.cfg.NATS.NotifySubject, redactor)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

// orchestrator wires the full pipeline.
func (a *app) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	host, gh, err := a.host(ctx)
	if err != nil {
		return nil, err
	}
	providers, err := a.providers(gh)
	if err != nil {
		return nil, err
	}
	target, err := deploy.NewFilesystem(deployOptions(a.cfg), &http.Client{Timeout: 10 * time.Second}, a.logger)
	if err != nil {
		return nil, err
	}
	cat, err := a.fileCatalog()
	if err != nil {
		return nil, err
	}
	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}
	scanner, err := a.secretScanner()
	if err != nil {
		return nil, err
	}

	stages, err := pipeline.NewStages(pipeline.Deps{
		Host:      host,
		Providers: providers,
		Poller:    poller.New(pollerOptions(a.cfg)),
		Target:    target,
		Catalog:   cat,
		Notifier:  notifier,
		Scanner:   scanner,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building pipeline stages: %w", err)
	}

	var registry *recovery.Registry
	if a.cfg.Pipeline.Recovery {
		registry, err = recovery.NewRegistry(pipeline.DefaultStrategies(pipeline.StrategyOptions{
			NetworkBaseDelay:  a.cfg.Pipeline.NetworkBaseDelay,
			NetworkMaxRetries: a.cfg.Pipeline.MaxNetworkRetries,
		}, cat)...)
		if err != nil {
			return nil, err
		}
	}

	o := orchestrator.NewForStages(stages, registry, orchestratorOptions(a.cfg), a.logger)
	o.SetTracer(a.tel.Tracer("github.com/fyrsmithlabs/launchpad/internal/orchestrator"))
	a.logger.Debug(ctx, "orchestrator ready",
		zap.String("vcs_host", a.cfg.VCS.Host),
		zap.Strings("providers", kinds(providers)),
		zap.Bool("recovery", a.cfg.Pipeline.Recovery),
		zap.Bool("rollback", a.cfg.Pipeline.Rollback))
	return o, nil
}

func kinds(set *ci.Set) []string {
	var out []string
	for _, k := range set.Kinds() {
		out = append(out, string(k))
	}
	return out
}
