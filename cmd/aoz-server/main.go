package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AOZdotAG/aoz-explorer/internal/ai"
	"github.com/AOZdotAG/aoz-explorer/internal/config"
	"github.com/AOZdotAG/aoz-explorer/internal/logging"
	"github.com/AOZdotAG/aoz-explorer/internal/observability"
	"github.com/AOZdotAG/aoz-explorer/internal/registry"
	serverHTTP "github.com/AOZdotAG/aoz-explorer/internal/server/http"
	"github.com/AOZdotAG/aoz-explorer/internal/x402"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aoz-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Configure(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting AOZ explorer server...")
	logger.Info("Environment: %s, network: %s", cfg.Environment, cfg.Network)

	metrics, err := observability.NewMetrics(observability.Config{Enabled: cfg.MetricsEnabled})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(ctx); err != nil {
			logger.Warn("Metrics shutdown failed: %v", err)
		}
	}()

	store := registry.NewMemStore()
	store.SeedDemoAgents()
	logger.Info("Registry seeded with demo agents")

	if cfg.LLMAPIKey == "" {
		logger.Warn("No LLM API key configured; task execution will fail upstream")
	}
	executor := ai.NewExecutor(ai.NewOpenAIClient(ai.ClientConfig{
		Model:   cfg.LLMModel,
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
	}))

	ledger := x402.NewLedger()
	facilitator := x402.NewFacilitator(x402.FacilitatorConfig{
		BaseURL:       cfg.FacilitatorURL,
		VerifyTimeout: cfg.VerifyTimeout(),
	})
	if cfg.X402Enabled {
		logger.Info("x402: Enabled on %s with price %s micro-USDC", cfg.Network, cfg.AgentCreationPrice)
	} else if cfg.IsProduction() {
		logger.Warn("x402: Disabled in production; agent creation is unpaid")
	} else {
		logger.Info("x402: Disabled")
	}

	apiHandler := serverHTTP.NewAPIHandler(store, executor, ledger, facilitator, cfg, metrics)
	router := serverHTTP.NewRouter(apiHandler, metrics, serverHTTP.RouterConfig{
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      cfg.StaticDir,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return serveUntilSignal(server, logger)
}

func serveUntilSignal(server *http.Server, logger logging.Logger) error {
	logger = logging.OrNop(logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		serveErr := <-errCh
		if serveErr == http.ErrServerClosed {
			serveErr = nil
		}

		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}

		logger.Info("Server stopped")
		return nil
	}
}
