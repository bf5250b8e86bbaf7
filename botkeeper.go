package botkeeper

import (
	"context"
	"net/http"
	"time"

	cfg "github.com/inkyu/botkeeper/internal/config"
	"github.com/inkyu/botkeeper/internal/history"
	"github.com/inkyu/botkeeper/internal/history/clickhouse"
	"github.com/inkyu/botkeeper/internal/metrics"
	"github.com/inkyu/botkeeper/internal/policy"
	iapi "github.com/inkyu/botkeeper/internal/server"
	"github.com/inkyu/botkeeper/internal/status"
	storefactory "github.com/inkyu/botkeeper/internal/status/factory"
	"github.com/inkyu/botkeeper/internal/supervisor"
	"github.com/inkyu/botkeeper/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type WorkerConfig = worker.Config

type WorkerFactory = worker.Factory

type Status = status.Status

type StatusRecord = status.Record

type Store = status.Store

type HistorySink = history.Sink

type Options = supervisor.Options

type Policy = policy.Policy

const (
	StatusRunning    = status.Running
	StatusRestarting = status.Restarting
	StatusError      = status.Error
	StatusStopped    = status.Stopped
)

var ErrAlreadySupervised = supervisor.ErrAlreadySupervised

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

func New(store Store, factory WorkerFactory, opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(store, factory, opts)}
}

func (s *Supervisor) Start(ctx context.Context, owner int64, cfg WorkerConfig) error {
	return s.inner.Start(ctx, owner, cfg)
}
func (s *Supervisor) Stop(ctx context.Context, owner int64) error { return s.inner.Stop(ctx, owner) }
func (s *Supervisor) Supervised(owner int64) bool                 { return s.inner.Supervised(owner) }
func (s *Supervisor) Attempts(owner int64) int                    { return s.inner.Attempts(owner) }
func (s *Supervisor) Status(ctx context.Context, owner int64) (StatusRecord, error) {
	return s.inner.Status(ctx, owner)
}
func (s *Supervisor) List(ctx context.Context) ([]StatusRecord, error) { return s.inner.List(ctx) }
func (s *Supervisor) Shutdown(ctx context.Context) error               { return s.inner.Shutdown(ctx) }

// NewProcFactory returns the default factory that launches each worker as an
// OS process.
func NewProcFactory() WorkerFactory { return worker.NewProcFactory() }

// NewStore opens a status store from a DSN: "memory", a sqlite path or
// sqlite:// URL, or a postgres:// DSN.
func NewStore(dsn string) (Store, error) { return storefactory.NewFromDSN(dsn) }

// NewClickHouseSink opens a history sink that records lifecycle events in a
// ClickHouse table.
func NewClickHouseSink(addr, database, username, password, table string) (*clickhouse.Sink, error) {
	return clickhouse.New(addr, database, username, password, table)
}

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the internal API using the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
