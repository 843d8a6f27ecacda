package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"climatedash/api/analytics"
	"climatedash/api/config"
	"climatedash/api/database"
	"climatedash/api/handlers"
	"climatedash/api/middleware"
	"climatedash/api/store"
	"climatedash/api/telemetry"
	"climatedash/api/tracker"
	"climatedash/api/utils"
)

const serviceName = "climatedash-api"

// operatorsMemoryDSN backs operator accounts when events live in memory.
const operatorsMemoryDSN = "file:climatedash_operators?mode=memory&cache=shared"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("error loading .env", "error", err)
	}

	cfg, errs := config.Load(os.Getenv("CONFIG_FILE"))
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	} else if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exiting")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if cfg.Telemetry.TracingEnabled {
		shutdown, err := telemetry.InitTracer(serviceName, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// --- Relational store ---
	driver, dsn := cfg.DB.Driver, cfg.DB.DSN
	if driver == config.DriverMemory {
		driver, dsn = database.DriverSQLite, operatorsMemoryDSN
	}
	dbClient, err := database.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	if err := store.InitSchema(ctx, dbClient.DB); err != nil {
		return err
	}

	var events store.EventStore = store.NewSQLEventStore(dbClient.DB)
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("tracking events are kept in memory and lost on restart")
		events = store.NewMemoryEventStore()
	}
	operators := store.NewOperatorStore(dbClient.DB)

	// --- Optional ClickHouse mirror ---
	var publisher tracker.Publisher
	if cfg.ClickHouse.Enabled() {
		mirror, chClient, err := openMirror(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return err
		}
		defer chClient.Close()
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := mirror.Close(closeCtx); err != nil {
				logger.Error("analytics mirror did not drain", "error", err, "dropped", mirror.Dropped())
			}
		}()
		publisher = mirror
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trackerMetrics := tracker.NewMetrics()
	analyticsMetrics := analytics.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	for _, m := range []interface{ Register(prometheus.Registerer) error }{trackerMetrics, analyticsMetrics, httpMetrics} {
		if err := m.Register(reg); err != nil {
			return err
		}
	}

	// --- Core ---
	tr := tracker.New(events, tracker.Options{
		StrictSessions: cfg.Tracking.StrictSessions,
		Publisher:      publisher,
		Metrics:        trackerMetrics,
		Logger:         logger,
	})
	engine := analytics.NewEngine(events,
		analytics.WithMetrics(analyticsMetrics),
		analytics.WithLogger(logger),
	)
	tokens := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	trackingHandlers := handlers.NewTrackingHandlers(tr, engine, logger)
	authHandlers := handlers.NewAuthHandlers(operators, tokens, cfg.IsProduction(), logger)

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.HTTPMetrics(httpMetrics),
		middleware.CORSMiddleware(cfg.CORS.Origin),
	)
	registerRoutes(r, routeDeps{
		tracking: trackingHandlers,
		auth:     authHandlers,
		authMW:   middleware.AuthRequired(tokens, cfg.Auth.APIKey, logger),
		health:   handlers.HealthCheck(dbClient.DB),
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	var handler http.Handler = r
	if cfg.Telemetry.TracingEnabled {
		handler = otelhttp.NewHandler(r, serviceName)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port, "driver", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openMirror(ctx context.Context, cfg config.ClickHouseConfig, logger *slog.Logger) (*store.EventMirror, *database.ClickHouseClient, error) {
	chClient, err := database.NewClickHouseDB(database.ClickHouseConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, nil, err
	}

	writer := store.NewClickHouseWriter(chClient)
	if err := writer.EnsureTable(ctx); err != nil {
		chClient.Close()
		return nil, nil, err
	}

	mirror := store.NewEventMirror(writer, store.MirrorOptions{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger,
	})
	logger.Info("mirroring tracking events to ClickHouse", "host", cfg.Host, "database", cfg.Database)
	return mirror, chClient, nil
}
