package main

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci/natsci"
)

var validatorFlags struct {
	embedded bool
	host     string
	port     int
}

// validatorCmd answers NATS validation requests
var validatorCmd = &cobra.Command{
	Use:   "validator",
	Short: "Answer validation requests over NATS",
	Long: `Run a validation responder in the nats.queue queue group.

Pipelines using the nats provider publish bundles on <nats.subject>.request
and wait for the report on <nats.subject>.result.<run id>.

Examples:
  # Join an existing NATS cluster
  launchpad validator

  # Run a single-node NATS server in-process for local development
  launchpad validator --embedded --port 4222`,
	Args: cobra.NoArgs,
	RunE: runValidator,
}

func init() {
	f := validatorCmd.Flags()
	f.BoolVar(&validatorFlags.embedded, "embedded", false, "start an in-process NATS server")
	f.StringVar(&validatorFlags.host, "host", "127.0.0.1", "embedded server listen address")
	f.IntVar(&validatorFlags.port, "port", natsserver.DEFAULT_PORT, "embedded server port (-1 for random)")
}

func runValidator(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if validatorFlags.embedded {
			srv, err := startEmbeddedNATS(validatorFlags.host, validatorFlags.port)
			if err != nil {
				return err
			}
			defer func() {
				if a.nc != nil {
					a.nc.Close()
				}
				srv.Shutdown()
				srv.WaitForShutdown()
			}()
			a.cfg.NATS.URL = srv.ClientURL()
			a.logger.Info(ctx, "embedded nats server started", zap.String("url", srv.ClientURL()))
		}

		nc, err := a.natsConn()
		if err != nil {
			return err
		}
		checker, err := a.validationChecker()
		if err != nil {
			return err
		}

		responder := natsci.NewResponder(nc, checker, natsOptions(a.cfg), a.logger)
		if err := responder.Start(ctx); err != nil {
			return err
		}
		a.logger.Info(ctx, "validator listening",
			zap.String("url", nc.ConnectedUrlRedacted()),
			zap.String("subject", a.cfg.NATS.Subject),
			zap.String("queue", a.cfg.NATS.Queue))

		<-ctx.Done()
		a.logger.Info(ctx, "stopping validator")
		return responder.Close()
	})
}

// startEmbeddedNATS runs a single-node server and waits until it accepts
// connections.
func startEmbeddedNATS(host string, port int) (*natsserver.Server, error) {
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:           host,
		Port:           port,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready on %s:%d", host, port)
	}
	return srv, nil
}

