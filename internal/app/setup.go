// Package app contains the application setup for the storefront service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/metrics"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
)

type Dependencies struct {
	Sessions *session.Manager
	Source   catalog.ProductSource
	Checkout *checkout.Service
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

func SetupDependencies(source catalog.ProductSource, publisher messaging.Publisher, logger *slog.Logger) *Dependencies {
	reg := metrics.NewRegistry()
	cartStore := cart.NewMemoryStore()

	return &Dependencies{
		Sessions: session.NewManager(source, cartStore, reg, logger),
		Source:   source,
		Checkout: checkout.NewService(publisher, reg, logger),
		Metrics:  reg,
		Logger:   logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the storefront.
// Used by handler tests to set up the full middleware chain.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the storefront application.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	storefrontHandler := rest.NewHandler(deps.Sessions, deps.Source, deps.Checkout, deps.Logger)
	storefrontHandler.RegisterRoutes(mux)
	mux.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
}

// SetupHttpServer creates and configures an HTTP server for the storefront application.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {

	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
