// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Catalog fetch lifecycle
	FetchTotal    prometheus.Counter
	FetchErrors   prometheus.Counter
	StaleDiscards prometheus.Counter

	// Cart ledger
	CartMutations prometheus.Counter
	Checkouts     prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	fetchTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_catalog_fetch_total"})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_catalog_fetch_errors_total"})
	staleDiscards := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_catalog_stale_discards_total"})
	cartMutations := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_cart_mutations_total"})
	checkouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_checkouts_total"})

	r.MustRegister(fetchTotal, fetchErrors, staleDiscards, cartMutations, checkouts)
	return &Registry{
		reg:           r,
		FetchTotal:    fetchTotal,
		FetchErrors:   fetchErrors,
		StaleDiscards: staleDiscards,
		CartMutations: cartMutations,
		Checkouts:     checkouts,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
