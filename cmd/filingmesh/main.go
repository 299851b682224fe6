// filingmesh runs one submission-processing node: the event log
// store, the entity shard router, the manager relay, and the HTTP
// gateway in front of them.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filingmesh/filingmesh/pkg/coordinator"
	"github.com/filingmesh/filingmesh/pkg/entity"
	"github.com/filingmesh/filingmesh/pkg/eventlog"
	"github.com/filingmesh/filingmesh/pkg/gateway"
	"github.com/filingmesh/filingmesh/pkg/ingest"
	"github.com/filingmesh/filingmesh/pkg/manager"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := gateway.ConfigFromEnv()

	if err := run(cfg, logger); err != nil {
		logger.Error("node exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg gateway.Config, logger *slog.Logger) error {
	store, err := eventlog.Open(cfg.DBPath, eventlog.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	entities := entity.NewRouter(store,
		entity.WithRouterLogger(logger),
		entity.WithIdleTimeout(cfg.EntityIdleTimeout),
		entity.WithCallTimeout(cfg.CallTimeout),
	)

	relay := manager.NewRelay(logger)
	coord := coordinator.New(entities, relay, coordinator.WithLogger(logger))
	ingestor := ingest.New(ingest.WithLogger(logger))

	handler := gateway.NewHandler(entities, coord, ingestor, gateway.NewMemoryDirectory(),
		gateway.WithHandlerLogger(logger),
		gateway.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.NewRouter(handler, entities, relay, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// entities drain before the store closes so every accepted
	// command reaches the log
	if err := entities.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
