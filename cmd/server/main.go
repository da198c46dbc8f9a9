package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/Guillaume-slize/digitalsolitude/internal/app"
	"github.com/Guillaume-slize/digitalsolitude/internal/bus"
	httpx "github.com/Guillaume-slize/digitalsolitude/internal/http"
	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
	"github.com/Guillaume-slize/digitalsolitude/internal/store"
	"github.com/Guillaume-slize/digitalsolitude/pkg/auth"
	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	operator, err := auth.NewOperator(cfg.AdminPasswordHash)
	if err != nil {
		logger.Error("operator", "err", err)
		log.Fatal(err)
	}

	// Optional transition journal + mirror
	var (
		sinks   []presence.TransitionSink
		journal httpx.TransitionLister
	)
	if cfg.PGURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.PGURL, cfg.PGMaxConn, logger)
		if err != nil {
			logger.Error("postgres connect", "err", err)
			log.Fatal(err)
		}
		defer pg.Close()
		if err := store.RunMigrations(ctx, pg, logger); err != nil {
			logger.Error("migrations", "err", err)
			log.Fatal(err)
		}
		sinks = append(sinks, pg)
		journal = pg
	}
	if cfg.RedisAddr != "" {
		rb, err := bus.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisChannel, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer rb.Close()
		sinks = append(sinks, rb)
	}

	// Presence registry + sweeper
	clock := clockwork.NewRealClock()
	recorder := presence.NewRecorder(64, logger, m, sinks...)
	registry := presence.NewRegistry(presence.Options{
		StaleAfter: cfg.StaleAfter,
		Clock:      clock,
		Logger:     logger,
		Metrics:    m,
		Recorder:   recorder,
	})
	sweeper := presence.NewSweeper(registry, cfg.SweepInterval, clock, logger)

	router := httpx.NewRouter(cfg, logger, httpx.Deps{
		Registry: registry,
		Operator: operator,
		Journal:  journal,
		Gatherer: reg,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })

	// Start server
	g.Go(func() error {
		logger.Info("server.listening", "addr", cfg.HTTPAddr,
			"heartbeat", cfg.HeartbeatInterval, "staleAfter", cfg.StaleAfter, "capacity", 1)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.crash", "err", err)
			return err
		}
		return nil
	})

	// Wait for shutdown signal (or a crashed member)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown.start")

		// streams get their courtesy event and close, which lets Shutdown finish
		registry.Shutdown()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server.exit", "err", err)
	}
	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
