//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"canvas-engine/application/navigation"
	"canvas-engine/application/store"
	"canvas-engine/infrastructure/api"
	"canvas-engine/infrastructure/config"
	"canvas-engine/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Store     *store.CanvasStore
	Navigator *navigation.Navigator
	APIClient *api.Client
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideStore,
	ProvideNavigator,
	ProvideAPIClient,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
