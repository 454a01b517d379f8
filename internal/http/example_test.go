package http_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/launchpad/internal/http"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
)

// ExampleServer demonstrates how to create and start the HTTP server.
func ExampleServer() {
	logger := logging.NewTestLogger().Logger

	// Any Runner works; cmd/launchpad passes the orchestrator.
	runner := httpserver.RunnerFunc(func(ctx context.Context, in pipeline.Input) (*orchestrator.Result, error) {
		return &orchestrator.Result{Status: orchestrator.StatusSuccess}, nil
	})

	cfg := &httpserver.Config{
		Host:     "localhost",
		Port:     0,
		Provider: "local",
	}

	server, err := httpserver.NewServer(httpserver.Deps{Runner: runner}, logger, cfg)
	if err != nil {
		panic(err)
	}

	// Start server in background
	go func() {
		if err := server.Start(); err != nil {
			logger.Debug(context.Background(), "server stopped", zap.Error(err))
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error(ctx, "shutdown error", zap.Error(err))
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
