package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	LogDebug          bool
	Logger            *slog.Logger
	ServiceName       string
	ServiceVersion    string
	TraceMaxBatchSize int
	TraceSampleRate   float64
	OTLP              bool

	DatabaseURL string

	MetadataBaseURL string
	MetadataAPIKey  string
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	ProviderTimeout time.Duration

	MetadataTTL       time.Duration
	InsightTTL        time.Duration
	InsightDailyLimit int32
	PresenceWindow    time.Duration
}

func LoadConfig() (*Config, error) {
	config := &Config{
		LogDebug:          false,
		ServiceName:       "cinedis",
		TraceMaxBatchSize: 512,
		TraceSampleRate:   1.0,
		OTLP:              false,

		DatabaseURL: envOr("DATABASE_URL", ""),

		MetadataBaseURL: envOr("METADATA_BASE_URL", "https://api.themoviedb.org/3"),
		MetadataAPIKey:  envOr("METADATA_API_KEY", ""),
		LLMBaseURL:      envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       envOr("LLM_API_KEY", ""),
		LLMModel:        envOr("LLM_MODEL", "gpt-4o-mini"),
		ProviderTimeout: 10 * time.Second,

		MetadataTTL:       24 * time.Hour,
		InsightTTL:        30 * 24 * time.Hour,
		InsightDailyLimit: 5,
		PresenceWindow:    5 * time.Minute,
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if raw := envOr("INSIGHT_DAILY_LIMIT", ""); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("invalid INSIGHT_DAILY_LIMIT %q", raw)
		}
		config.InsightDailyLimit = int32(limit)
	}

	return config, nil
}

// PoolConfig parses the DSN and applies the pool tuning defaults.
func PoolConfig(dsn string, logger *slog.Logger) (*pgxpool.Config, error) {
	const defaultMaxConns = int32(4)
	const defaultMinConns = int32(0)
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 15
	const defaultHealthCheckPeriod = time.Minute
	const defaultConnectTimeout = time.Second * 5

	dbConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database configuration: %w", err)
	}

	dbConfig.MaxConns = defaultMaxConns
	dbConfig.MinConns = defaultMinConns
	dbConfig.MaxConnLifetime = defaultMaxConnLifetime
	dbConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	dbConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	dbConfig.BeforeConnect = func(ctx context.Context, c *pgx.ConnConfig) error {
		logger.Debug("creating connection")
		return nil
	}

	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logger.Debug("connection created")
		return nil
	}

	return dbConfig, nil
}
