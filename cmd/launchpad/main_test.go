package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchpad/internal/config"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/telemetry"
)

func TestLoggingConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"

	lc, err := loggingConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.Equal(t, "console", lc.Format)
	assert.False(t, lc.OTEL)
	assert.Equal(t, cfg.Observability.ServiceName, lc.Service)

	cfg.Logging.Level = "loud"
	_, err = loggingConfig(&cfg)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestTelemetryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Observability.EnableTelemetry = true
	cfg.Observability.Endpoint = "localhost:14317"

	tc := telemetryConfig(&cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "launchpad", tc.ServiceName)
	assert.Equal(t, "localhost:14317", tc.Endpoint)
	assert.Equal(t, version, tc.ServiceVersion)
	assert.True(t, tc.Insecure)
	assert.Equal(t, 1.0, tc.SampleRate)
	assert.NoError(t, tc.Validate())

	cfg.Observability.Endpoint = "otel.platform.internal:4317"
	assert.Error(t, telemetryConfig(&cfg).Validate(), "remote collectors need tls")

	cfg.Observability.TLS = true
	cfg.Observability.Protocol = "http/protobuf"
	tc = telemetryConfig(&cfg)
	assert.False(t, tc.Insecure)
	assert.Equal(t, telemetry.ProtocolHTTP, tc.Protocol)
	assert.NoError(t, tc.Validate())
}

func TestComponentOptions(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.User = "octo"
	cfg.GitHub.MaxRetries = 4
	cfg.Deploy.Root = "/srv/templates"
	cfg.Deploy.ReadinessURL = "http://localhost:8080/ready"
	cfg.Pipeline.Recovery = false

	gh := githubOptions(&cfg)
	assert.Equal(t, "octo", gh.User)
	assert.Equal(t, 4, gh.Retry.MaxRetries)
	assert.Equal(t, float64(10), gh.RequestsPerSecond)
	assert.Equal(t, 5, gh.Burst)

	po := pollerOptions(&cfg)
	assert.Equal(t, 5*time.Second, po.Interval)
	assert.Equal(t, time.Minute, po.MaxInterval)
	assert.Equal(t, 30*time.Minute, po.Timeout)

	do := deployOptions(&cfg)
	assert.Equal(t, "/srv/templates", do.Root)
	assert.Equal(t, "http://localhost:8080/ready", do.ReadinessURL)
	assert.Equal(t, time.Minute, do.ReadinessTimeout)

	oo := orchestratorOptions(&cfg)
	assert.False(t, oo.Recovery)
	assert.True(t, oo.Rollback)

	no := natsOptions(&cfg)
	assert.Equal(t, "launchpad.validate", no.Subject)
	assert.Equal(t, "launchpad-validators", no.Queue)
}

func TestLoadInput(t *testing.T) {
	t.Run("bundle directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.yaml"),
			[]byte("name: payments-service\nowner: platform\n"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "template.yaml"),
			[]byte("name: payments-service\n"), 0o600))

		in, err := loadInput(dir, "")
		require.NoError(t, err)
		require.NotNil(t, in.Bundle)
		assert.Nil(t, in.Specification)
		assert.Equal(t, "payments-service", in.Name())
		assert.Equal(t, "platform", in.Owner())
	})

	t.Run("specification file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "spec.yaml")
		require.NoError(t, os.WriteFile(path,
			[]byte("name: ledger-service\nowner: finance\ndescription: Ledger API\n"), 0o600))

		in, err := loadInput("", path)
		require.NoError(t, err)
		require.NotNil(t, in.Specification)
		assert.Nil(t, in.Bundle)
		assert.Equal(t, "ledger-service", in.Name())
		assert.Equal(t, "Ledger API", in.Specification.Description)
	})

	t.Run("missing specification", func(t *testing.T) {
		_, err := loadInput("", filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read specification")
	})
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progressPrinter(&buf)(orchestrator.StageProgress{
		Stage:      pipeline.StageCreateRepository,
		Status:     orchestrator.StageCompleted,
		Message:    "repository created",
		Percentage: 20,
	})
	assert.Contains(t, buf.String(), "[ 20%]")
	assert.Contains(t, buf.String(), string(pipeline.StageCreateRepository))
	assert.Contains(t, buf.String(), "repository created")
}

func TestFailureMessage(t *testing.T) {
	res := &orchestrator.Result{Status: orchestrator.StatusFailed, State: pipeline.StateClosed}
	assert.Equal(t, string(pipeline.StateClosed), failureMessage(res))

	res.Failure = &orchestrator.Failure{Kind: failure.KindPermission, Component: "vcs", Message: "forbidden"}
	assert.Equal(t, "forbidden (vcs/PermissionError)", failureMessage(res))
}

func TestStartEmbeddedNATS(t *testing.T) {
	srv, err := startEmbeddedNATS("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}

func TestNATSConn_SendsToken(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true,
		Authorization: "nats-s3cret",
	})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Cleanup(srv.Shutdown)

	cfg := config.Default()
	cfg.NATS.URL = srv.ClientURL()
	a := &app{cfg: &cfg, logger: logging.NewTestLogger().Logger}
	defer func() { assert.NoError(t, a.close()) }()

	_, err = a.natsConn()
	require.Error(t, err, "server requires a token")

	cfg.NATS.Token = config.Secret("nats-s3cret")
	nc, err := a.natsConn()
	require.NoError(t, err)
	assert.True(t, nc.IsConnected())
}

func TestNewApp_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	a, err := newApp(context.Background(), "")
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.close()) }()

	assert.Equal(t, filepath.Join(home, ".local", "share", "launchpad", "catalog"), a.cfg.Catalog.Dir)

	cat, err := a.fileCatalog()
	require.NoError(t, err)
	assert.Empty(t, cat.List())

	o, err := a.orchestrator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.AllStages(), o.Stages())
}
