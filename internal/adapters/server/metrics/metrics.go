// Package metrics exports marketplace lifecycle counters in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "barter"

// Recorder implements app.Metrics over a private registry.
type Recorder struct {
	registry       *prometheus.Registry
	itemsCreated   prometheus.Counter
	offersCreated  prometheus.Counter
	transitions    *prometheus.CounterVec
	partialCommits prometheus.Counter
	reconciled     prometheus.Counter
}

var _ app.Metrics = (*Recorder)(nil)

// NewRecorder builds a recorder with its own registry. Go runtime and process
// collectors are registered when withRuntime is set.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		itemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_created_total",
			Help:      "Items listed.",
		}),
		offersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_created_total",
			Help:      "Offers proposed.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_transitions_total",
			Help:      "Committed offer status transitions by target status.",
		}, []string{"status"}),
		partialCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_commits_total",
			Help:      "Offer transitions whose dependent item writes did not all succeed.",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_offers_total",
			Help:      "Offers whose outstanding item writes were completed by reconciliation.",
		}),
	}
	r.registry.MustRegister(r.itemsCreated, r.offersCreated, r.transitions, r.partialCommits, r.reconciled)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// ItemCreated counts one listed item.
func (r *Recorder) ItemCreated() { r.itemsCreated.Inc() }

// OfferCreated counts one proposed offer.
func (r *Recorder) OfferCreated() { r.offersCreated.Inc() }

// OfferTransitioned counts one committed transition into status.
func (r *Recorder) OfferTransitioned(status domain.OfferStatus) {
	r.transitions.WithLabelValues(string(status)).Inc()
}

// PartialCommit counts one partially committed transition.
func (r *Recorder) PartialCommit() { r.partialCommits.Inc() }

// OfferReconciled counts one reconciled offer.
func (r *Recorder) OfferReconciled() { r.reconciled.Inc() }

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
