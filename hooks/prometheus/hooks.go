// Package promhooks exports asidecache events as Prometheus metrics.
package promhooks

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/asidecache"
	"github.com/unkn0wn-root/asidecache/internal/util"
)

// Hooks holds the cache metrics. Everything is a counter except
// RemoteAlive, which mirrors the liveness monitor (1 alive, 0 dead).
type Hooks struct {
	SelfHeals         *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	WriteBackFailures *prometheus.CounterVec
	LivenessChanges   *prometheus.CounterVec
	FallbackClears    prometheus.Counter
	RemoteAlive       prometheus.Gauge
}

var _ asidecache.Hooks = (*Hooks)(nil)

// New registers the metrics with reg; nil means the default registerer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "asidecache"
	}
	f := promauto.With(reg)
	return &Hooks{
		SelfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Entries deleted on read because they could not be decoded",
		}, []string{"namespace", "reason"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store calls that failed and were degraded to a miss",
		}, []string{"op"}),
		WriteBackFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_back_failures_total",
			Help:      "Background write-backs that did not persist",
		}, []string{"namespace", "reason"}),
		LivenessChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_transitions_total",
			Help:      "Remote store liveness transitions",
		}, []string{"to"}),
		FallbackClears: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_region_clears_total",
			Help:      "Fallback regions cleared after the remote store recovered",
		}),
		RemoteAlive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_alive",
			Help:      "Whether the remote store answered the last probe",
		}),
	}
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	h.SelfHeals.WithLabelValues(util.Namespace(storageKey), reason).Inc()
}

func (h *Hooks) StoreError(op string, _ error) {
	h.StoreErrors.WithLabelValues(op).Inc()
}

func (h *Hooks) WriteBackFailed(namespace string, err error) {
	reason := "not_stored"
	switch {
	case errors.Is(err, asidecache.ErrWriteBackDropped):
		reason = "dropped"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case !errors.Is(err, asidecache.ErrNotStored):
		reason = "error"
	}
	h.WriteBackFailures.WithLabelValues(namespace, reason).Inc()
}

func (h *Hooks) LivenessChanged(alive bool) {
	if alive {
		h.LivenessChanges.WithLabelValues("alive").Inc()
		h.RemoteAlive.Set(1)
		return
	}
	h.LivenessChanges.WithLabelValues("dead").Inc()
	h.RemoteAlive.Set(0)
}

func (h *Hooks) FallbackCleared(regions int) {
	h.FallbackClears.Add(float64(regions))
}
