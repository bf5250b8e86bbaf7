package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workerCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botkeeper",
			Subsystem: "supervisor",
			Name:      "crashes_total",
			Help:      "Number of unexpected worker deaths detected.",
		}, []string{"owner"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botkeeper",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of successful auto-restarts.",
		}, []string{"owner"},
	)
	workerGiveups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botkeeper",
			Subsystem: "supervisor",
			Name:      "giveups_total",
			Help:      "Number of workers finalized to error after exhausting restart attempts.",
		}, []string{"owner"},
	)
	supervisedWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "botkeeper",
			Subsystem: "supervisor",
			Name:      "supervised_workers",
			Help:      "Current number of supervised workers.",
		},
	)
	restartBackoff = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "botkeeper",
			Subsystem: "supervisor",
			Name:      "restart_backoff_seconds",
			Help:      "Backoff waits inserted before restart attempts.",
			Buckets:   []float64{1, 5, 10, 30, 60, 300},
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerCrashes, workerRestarts, workerGiveups, supervisedWorkers, restartBackoff}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncCrash(owner int64)   { workerCrashes.WithLabelValues(ownerLabel(owner)).Inc() }
func IncRestart(owner int64) { workerRestarts.WithLabelValues(ownerLabel(owner)).Inc() }
func IncGiveup(owner int64)  { workerGiveups.WithLabelValues(ownerLabel(owner)).Inc() }

func SetSupervisedWorkers(n int) { supervisedWorkers.Set(float64(n)) }

func ObserveBackoff(seconds float64) { restartBackoff.Observe(seconds) }

func ownerLabel(owner int64) string { return strconv.FormatInt(owner, 10) }
