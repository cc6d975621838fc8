package di

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"canvas-engine/application/navigation"
	"canvas-engine/application/store"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/infrastructure/api"
	"canvas-engine/infrastructure/bridge"
	"canvas-engine/infrastructure/config"
	"canvas-engine/pkg/observability"
)

// ProvideLogger creates the zap logger for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// ProvideRegistry creates the Prometheus registry.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetrics registers the engine's collectors. Disabled metrics
// yield a nil Metrics; every consumer is nil-safe.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *observability.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewMetrics(reg)
}

// ProvideStore creates the canvas store.
func ProvideStore(logger *zap.Logger, metrics *observability.Metrics) *store.CanvasStore {
	return store.NewCanvasStore(logger, metrics)
}

// ProvideNavigator creates the navigation controller.
func ProvideNavigator(logger *zap.Logger) *navigation.Navigator {
	return navigation.NewNavigator(logger)
}

// ProvideAPIClient creates the REST collaborator client.
func ProvideAPIClient(cfg *config.Config, logger *zap.Logger) *api.Client {
	return api.NewClient(api.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout(),
	}, logger)
}

// NewBridge constructs an ingestion bridge for one project, wired to the
// container's store. By default the bridge resyncs layer state through
// the REST client after every reconnect.
func (c *Container) NewBridge(projectID valueobjects.ProjectID, opts ...bridge.Option) *bridge.Bridge {
	resync := func(ctx context.Context) {
		if err := c.APIClient.SyncStore(ctx, c.Store, projectID); err != nil {
			c.Logger.Warn("post-reconnect resync failed", zap.Error(err))
		}
	}
	opts = append([]bridge.Option{bridge.WithResyncHandler(resync)}, opts...)

	return bridge.NewBridge(bridge.Config{
		BaseURL:     c.Config.Stream.BaseURL,
		ProjectID:   projectID,
		BackoffBase: c.Config.Stream.BackoffBase(),
		MaxAttempts: c.Config.Stream.MaxAttempts,
	}, c.Store, c.Logger, c.Metrics, opts...)
}
