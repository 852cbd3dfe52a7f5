package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExtendedQuerier interface {
	Querier
	WithTx(tx pgx.Tx) ExtendedQuerier
}

type QueriesWrapper struct {
	*Queries // embedded from pgx
}

func (qw *QueriesWrapper) WithTx(tx pgx.Tx) ExtendedQuerier {
	return &QueriesWrapper{
		Queries: qw.Queries.WithTx(tx),
	}
}

func createHTTPServer(addr string, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

type CineService struct {
	logger         *slog.Logger
	dbconn         *pgxpool.Pool
	queries        Querier
	gateway        *Gateway
	telemetry      *TelemetryConfig
	presenceWindow time.Duration
	version        string
	gitSha         string
}

func NewCineService(logger *slog.Logger,
	dbconn *pgxpool.Pool,
	queries Querier,
	gateway *Gateway,
	telemetry *TelemetryConfig,
	presenceWindow time.Duration,
	version string,
	gitSha string,
) *CineService {
	return &CineService{
		logger:         logger,
		dbconn:         dbconn,
		queries:        queries,
		gateway:        gateway,
		telemetry:      telemetry,
		presenceWindow: presenceWindow,
		version:        version,
		gitSha:         gitSha,
	}
}

func startServer(server *http.Server, logger *slog.Logger) {
	logger.Info(fmt.Sprintf("listening on http://%s", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", slog.String("error", err.Error()))
	}
}

func waitForShutdown(sigChan chan os.Signal, ctx context.Context, logger *slog.Logger, server *http.Server) {
	sig := <-sigChan
	logger.Info("shutting down gracefully", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown HTTP server", slog.String("error", err.Error()))
	}

	if sigNum, ok := sig.(syscall.Signal); ok {
		s := 128 + int(sigNum)
		os.Exit(s)
	}
}

func (s *CineService) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *CineService) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		s.renderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return false
	}
	return true
}

// renderJSONError maps a domain error onto a status code and writes the
// standard error envelope.
func (s *CineService) renderJSONError(w http.ResponseWriter, r *http.Request, err error) {
	s.renderError(w, r, err, httpStatusFor(err))
}

func (s *CineService) renderError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), err.Error())
	} else {
		s.logger.DebugContext(r.Context(), err.Error())
	}

	message := http.StatusText(statusCode)

	var notFound NotFoundError
	var rateLimited RateLimitError
	switch {
	case errors.As(err, &notFound):
		message = notFound.Error()
	case errors.As(err, &rateLimited):
		message = rateLimited.Error()
	case statusCode == http.StatusBadRequest:
		message = err.Error()
	}

	s.writeJSON(w, statusCode, map[string]string{"error": message})
}
