// Command canvas-watch connects the ingestion bridge to a canvas event
// stream and logs every store change it produces. Useful against the
// simulator or a real server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"canvas-engine/application/store"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/infrastructure/bridge"
	"canvas-engine/infrastructure/config"
	"canvas-engine/infrastructure/di"
	pkgerrors "canvas-engine/pkg/errors"
)

func main() {
	projectFlag := flag.String("project", "demo", "project id to subscribe to")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger
	defer logger.Sync()

	projectID := valueobjects.ProjectID(*projectFlag)

	unsubscribe := container.Store.Subscribe(func(change store.Change) {
		logger.Info("canvas changed",
			zap.String("layer", change.Layer.String()),
			zap.String("kind", string(change.Kind)),
			zap.String("nodeID", change.NodeID.String()),
			zap.String("edgeID", change.EdgeID.String()),
		)
	})
	defer unsubscribe()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, container, logger)
	}

	b := container.NewBridge(projectID, bridge.WithStateHandler(func(state bridge.State, err error) {
		if err != nil {
			logger.Error("bridge state changed",
				zap.String("state", string(state)),
				zap.Error(err),
			)
			return
		}
		logger.Info("bridge state changed", zap.String("state", string(state)))
	}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutting down...")
		b.Close()
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			logger.Warn("bridge did not stop in time")
		}
	case err := <-errCh:
		if err != nil && pkgerrors.IsConnectivity(err) {
			logger.Error("stream unreachable, giving up", zap.Error(err))
			os.Exit(1)
		}
		if err != nil {
			logger.Error("bridge stopped", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("Stopped")
}

func serveMetrics(addr string, container *di.Container, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{}))
	logger.Info("Serving metrics", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}
