package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"campusconnect/auth"
	"campusconnect/config"
	"campusconnect/db"
	"campusconnect/handlers"
	"campusconnect/telemetry"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := flag.String("dsn", cfg.DatabaseDSN, "SQLite DSN")
	addr := flag.String("addr", cfg.Addr, "Server address")
	flag.Parse()
	cfg.DatabaseDSN = *dsn
	cfg.Addr = *addr

	// Setup structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	store, err := db.Open(ctx, db.Config{
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
		QueryTimeout: cfg.DBQueryTimeout,
		Hooks: []db.Hook{
			&db.LogHook{Logger: logger, SlowQuery: cfg.DBSlowQuery},
			db.NewTraceHook(),
		},
	})
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "dsn", cfg.DatabaseDSN)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		DB:                store,
		Tokens:            auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL, nil),
		Logger:            logger,
		FrontendURL:       cfg.FrontendURL,
		RequestTimeout:    cfg.RequestTimeout,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		ServiceName:       cfg.ServiceName,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// 5 seconds to finish in-flight requests
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	// Close DB connection last
	if err := store.Close(); err != nil {
		slog.Error("failed to close db", "error", err)
	}

	slog.Info("server exited cleanly")
}
