package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/board"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/config"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/database"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/middleware"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/notify"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	secret := c.String("jwt-secret")
	if secret == "" {
		return errors.New("jwt-secret is required to serve the API")
	}

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}

	be, err := openBackend(c, true)
	if err != nil {
		return err
	}
	defer be.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	origin := uuid.NewString()
	bus := events.NewBus(
		events.WithLogger(logger),
		events.WithMetrics(m),
		events.WithHandlerTimeout(c.Duration("side-effect-timeout")),
	)
	defer bus.Close()

	coordinator, err := be.coordinator(c,
		service.WithPublisher(bus),
		service.WithMetrics(m),
		service.WithOrigin(origin),
	)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(newSender(c, logger), c.String("telegram-chat"),
		notify.WithDirectory(be.directory),
		notify.WithLogger(logger),
		notify.WithMetrics(m),
	)
	bus.Handle("notify", dispatcher.Handle)

	g, gctx := errgroup.WithContext(ctx)

	if redisURL := c.String("redis-url"); redisURL != "" {
		client, err := database.NewRedis(ctx, redisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := events.NewRedisBridge(client, bus, c.String("redis-prefix"), origin, logger)
		bus.Handle("redis", bridge.Handle)
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if brokers := config.SplitList(c.String("kafka-brokers")); len(brokers) > 0 {
		sink, err := events.NewKafkaSink(brokers, c.String("kafka-topic"))
		if err != nil {
			return err
		}
		defer sink.Close()
		bus.Handle("kafka", sink.Handle)
		logger.Info("exporting events to kafka", "brokers", brokers, "topic", sink.Topic())
	}

	hub := board.NewHub(bus, coordinator, coordinator,
		board.WithLogger(logger),
		board.WithMetrics(m),
	)
	defer hub.Close()

	h := handler.New(handler.Deps{
		Coordinator: coordinator,
		Hub:         hub,
		Bus:         bus,
		Auth:        middleware.NewAuthMiddleware(secret, c.String("jwt-issuer"), be.directory),
		Pinger:      be,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:      logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting server",
			"server_addr", "http://localhost:"+port,
			"storage", be.storage,
			"policy", coordinator.Policy().Name(),
			"origin", origin,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), config.DefaultShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newSender picks Telegram when a bot token is configured.
func newSender(c *cli.Context, logger *slog.Logger) notify.Sender {
	token := c.String("telegram-token")
	if token == "" || c.String("telegram-chat") == "" {
		logger.Info("telegram not configured; notifications are logged only")
		return notify.NewLogSender(logger)
	}
	return notify.NewTelegramSender(c.String("telegram-api"), token)
}
