package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"library-automation/internal/config"
	"library-automation/internal/firebase"
	"library-automation/internal/handlers"
	"library-automation/internal/ledger"
	"library-automation/internal/logger"
	"library-automation/internal/memstore"
	"library-automation/internal/metrics"
	"library-automation/internal/middleware"
	"library-automation/internal/redis"
	"library-automation/internal/seed"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "library-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "library-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.App.TrustedProxies)
	if err != nil {
		logg.Error(ctx, "invalid trusted proxies", err)
		os.Exit(1)
	}

	deps := handlers.Deps{
		RateLimit:      cfg.RateLimit,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		TrustedProxies: trustedProxies,
		Checks:         map[string]handlers.Pinger{},
		Gatherer:       reg,
		Logger:         logg,
	}

	var store ledger.Store
	if cfg.Firebase.Configured() {
		fbClient, err := firebase.InitFirebase(ctx, cfg.Firebase)
		if err != nil {
			logg.Error(ctx, "failed to initialize firebase", err)
			os.Exit(1)
		}
		defer func() {
			if err := fbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing firestore", err)
			}
		}()
		store = fbClient
		deps.Books = fbClient
		deps.Users = fbClient
		deps.Auth = fbClient
		deps.Checks["firestore"] = fbClient
		if cfg.Auth.Required {
			deps.Verifier = fbClient.Auth
		}
		logg.Info(ctx, "firebase initialized")
	} else {
		if cfg.App.IsProd() {
			logg.Error(ctx, "firebase credentials are required in prod", errors.New("no firebase credentials"))
			os.Exit(1)
		}
		mem := memstore.New()
		mem.PutUser(handlers.DevUser)
		for _, book := range seed.Books(time.Now().UTC()) {
			mem.PutBook(book)
		}
		store = mem
		deps.Books = mem
		deps.Users = mem
		deps.Checks["memstore"] = mem
		logg.Warn(ctx, "firebase not configured, running on the in-memory store with authentication disabled")
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		deps.Limiter = redisClient
		deps.Checks["redis"] = redisClient
	}

	deps.Ledger = ledger.New(store,
		ledger.WithLogger(logg),
		ledger.WithMetrics(metrics.NewLedgerMetrics(reg)),
		ledger.WithStoreTimeout(cfg.Store.Timeout),
	)

	addr := ":" + cfg.App.Port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}
