// Command betagated serves the trial lifecycle API for a UI host: status
// and countdown endpoints, password unlock, and a websocket stream of
// lifecycle events.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"betagate/internal/channel"
	"betagate/internal/config"
	"betagate/internal/infrastructure"
	custommw "betagate/internal/middleware"
	"betagate/internal/services"
	"betagate/internal/store"
	handlers "betagate/internal/transport/http"
	"betagate/internal/trial"
	ws "betagate/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "betagated: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}

	probe := buildProbe(cfg.Channel)

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	metrics, err := trial.InitializeMetrics(provider.Meter(trial.MeterName))
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	manager, err := trial.NewManager(trial.Config{
		TrialDuration:     cfg.Trial.Duration,
		Password:          cfg.Trial.Password,
		SimulationEnabled: cfg.Trial.SimulationEnabled,
		TickInterval:      cfg.Trial.TickInterval,
	}, st, probe, trial.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("create trial manager: %w", err)
	}
	defer manager.Close()

	hub := ws.NewHub(logger)
	hub.Start()
	defer hub.Stop()
	manager.Subscribe(hub.BroadcastTrialEvent)

	service := services.NewTrialService(manager, logger)
	handler := handlers.NewTrialHandler(service, logger)
	gate := custommw.NewAccessGate(manager, logger)

	router := buildRouter(handler, gate, hub, registry)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("betagated listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("store_backend", cfg.Store.Backend),
			slog.String("channel_mode", cfg.Channel.Mode),
			slog.Duration("trial_duration", cfg.Trial.Duration),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return store.NewRedisStore(ctx, client, cfg.Trial.Partition, logger)
	default:
		return store.NewFileStore(cfg.Store.Path, cfg.Trial.Partition, logger)
	}
}

func buildProbe(cfg config.ChannelConfig) channel.Probe {
	switch cfg.Mode {
	case "marker":
		return channel.MarkerFile(cfg.MarkerPath)
	case "static":
		return channel.Static(cfg.Member)
	default:
		return channel.FromEnv(cfg.EnvVar)
	}
}

func buildRouter(handler *handlers.TrialHandler, gate *custommw.AccessGate, hub *ws.Hub, registry *prometheus.Registry) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(gate.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/trial", handler.Routes())
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, map[string]string{"status": "healthy"})
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(hub, w, req)
	})

	return r
}
