package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/laserman120/discord-bridge/internal/config"
	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	TasksEnqueued   *prometheus.CounterVec
	TasksProcessed  *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	GatewayRequests *prometheus.CounterVec
	LinksPruned     prometheus.Counter
	WorkerRuns      *prometheus.CounterVec
}

// New creates the bridge metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_tasks_enqueued_total",
				Help: "Total number of tasks enqueued",
			},
			[]string{"handler"},
		),
		TasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_tasks_processed_total",
				Help: "Total number of tasks dispatched by the worker",
			},
			[]string{"handler", "outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_queue_depth",
				Help: "Number of tasks waiting in the queue",
			},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_gateway_requests_total",
				Help: "Total number of webhook calls",
			},
			[]string{"op", "outcome"},
		),
		LinksPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_links_pruned_total",
				Help: "Total number of expired links removed",
			},
		),
		WorkerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_worker_runs_total",
				Help: "Total number of worker invocations",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.TasksEnqueued,
		m.TasksProcessed,
		m.QueueDepth,
		m.GatewayRequests,
		m.LinksPruned,
		m.WorkerRuns,
	)
	return m
}

// DepthFunc reports the current queue size.
type DepthFunc func(ctx context.Context) (int64, error)

// Run serves /metrics on cfg.MetricsAddr and samples the queue depth until
// ctx is done.
func (m *Metrics) Run(ctx context.Context, cfg *config.Config, depth DepthFunc, logger *log.Logger) {
	logger = logger.Named("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logger.Errorw("Failed to load TLS certificates for metrics", "error", err)
			return
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	} else {
		logger.Warn("TLS_CERT_FILE or TLS_KEY_FILE not set for metrics, using HTTP")
	}

	go m.collect(ctx, depth, logger)

	go func() {
		var err error
		if tlsConfig != nil {
			srv.TLSConfig = tlsConfig
			logger.Infow("Metrics server starting with TLS", "addr", cfg.MetricsAddr)
			err = srv.ListenAndServeTLS("", "")
		} else {
			logger.Infow("Metrics server starting without TLS", "addr", cfg.MetricsAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Metrics server failed", "error", err)
		}
	}()
	<-ctx.Done()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Errorw("Metrics server shutdown failed", "error", err)
	}
}

func (m *Metrics) collect(ctx context.Context, depth DepthFunc, logger *log.Logger) {
	if depth == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Metrics collection shutting down")
			return
		case <-ticker.C:
			n, err := depth(ctx)
			if err != nil {
				logger.Errorw("Failed to read queue depth", "error", err)
				continue
			}
			m.QueueDepth.Set(float64(n))
		}
	}
}
