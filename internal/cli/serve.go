package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/laserman120/discord-bridge/internal/intake"
	"github.com/laserman120/discord-bridge/internal/scheduler"
	"github.com/laserman120/discord-bridge/internal/server"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

// NewServeCommand runs the intake server, the Kafka consumer, the scheduler
// and the metrics endpoint until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run every daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, serve)
		},
	}
}

func (a *app) jobs() []scheduler.Job {
	cfg := a.cfg
	return []scheduler.Job{
		{Name: "worker", Interval: cfg.WorkerInterval, Run: a.worker.RunOnce},
		{Name: "pruner", Interval: cfg.PruneInterval, Run: func(ctx context.Context) error {
			_, err := a.pruner.RunOnce(ctx)
			return err
		}},
		{Name: "modqueue-sweep", Interval: cfg.ModQueueCheckInterval, Run: func(ctx context.Context) error {
			_, err := a.sweeper.ModQueue(ctx)
			return err
		}},
		{Name: "spam-sweep", Interval: cfg.SpamScanInterval, Run: func(ctx context.Context) error {
			_, err := a.sweeper.Spam(ctx)
			return err
		}},
		{Name: "modmail-sync", Interval: cfg.ModMailSyncInterval, Run: func(ctx context.Context) error {
			_, err := a.sweeper.ModMail(ctx)
			return err
		}},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	cfg := a.cfg
	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	start(func() { a.metrics.Run(ctx, cfg, a.queue.Size, logger) })
	start(func() { scheduler.New(logger, a.jobs()...).Run(ctx) })

	if len(cfg.KafkaBrokers) > 0 {
		consumer := intake.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, a.router, logger)
		start(func() {
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				logger.Errorw("Kafka consumer stopped", "error", err)
			}
		})
	}

	if cfg.HTTPAddr == "" {
		logger.Info("HTTP_ADDR not set, intake server disabled")
		<-ctx.Done()
		wg.Wait()
		return nil
	}

	r := chi.NewRouter()
	server.SetupRouter(r, cfg, a.router, a.links, a.queue.Size, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logger.Errorw("Failed to load TLS certificates", "error", err)
			return err
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	} else {
		logger.Warn("TLS_CERT_FILE or TLS_KEY_FILE not set, using HTTP")
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			srv.TLSConfig = tlsConfig
			logger.Infow("Server starting with TLS", "addr", cfg.HTTPAddr)
			err = srv.ListenAndServeTLS("", "")
		} else {
			logger.Infow("Server starting without TLS", "addr", cfg.HTTPAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		logger.Errorw("Server failed", "error", serveErr)
	}
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Server shutdown failed", "error", err)
	}
	if serveErr == nil {
		wg.Wait()
	}
	return serveErr
}
