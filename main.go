package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	listenAddr = flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "Address to listen on")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	version    = "dev"
	gitSha     = "no-commit"
)

func main() {
	// Local development convenience; absent files are fine.
	_ = godotenv.Load()

	flag.Parse()

	hostname, _ := os.Hostname()
	versionGauge.With(prometheus.Labels{
		"version":    version,
		"git_commit": gitSha,
		"hostname":   hostname,
	}).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger := setupLogger()

	config, err := LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	config.LogDebug = *debug
	config.Logger = logger
	config.ServiceVersion = version

	telemetry, telemetryCleanup, err := setupTelemetry(ctx, config)
	if err != nil {
		logger.Error("failed to set up telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := telemetryCleanup(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	initCSRFLogger(logger)

	if err := runMigrations(config.DatabaseURL); err != nil {
		logger.Error("database migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbconn := setupDatabase(ctx, logger)
	defer dbconn.Close()

	queries := NewTracedQueriesWrapper(&QueriesWrapper{Queries: New(dbconn)}, telemetry)

	cache := NewCacheStore(queries, logger, config.MetadataTTL, config.InsightTTL)
	quota := NewQuotaStore(queries, logger, config.InsightDailyLimit)

	metadata := NewMetadataClient(config.MetadataBaseURL, config.MetadataAPIKey, config.ProviderTimeout)
	llm := NewLLMClient(config.LLMBaseURL, config.LLMAPIKey, config.LLMModel, config.ProviderTimeout)

	gateway := NewGateway(metadata, llm, cache, quota, logger)

	csvc := NewCineService(
		logger,
		dbconn,
		queries,
		gateway,
		telemetry,
		config.PresenceWindow,
		version,
		gitSha,
	)

	mux := SetupRoutes(csvc)

	server := createHTTPServer(*listenAddr, mux)

	go startServer(server, logger)

	waitForShutdown(sigChan, ctx, logger, server)
}
