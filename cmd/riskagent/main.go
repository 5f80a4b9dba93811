package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/irisfin/riskagent/internal/agent"
	"github.com/irisfin/riskagent/internal/config"
	"github.com/irisfin/riskagent/internal/extract"
	"github.com/irisfin/riskagent/internal/httpapi"
	"github.com/irisfin/riskagent/internal/memory"
	"github.com/irisfin/riskagent/internal/model"
	"github.com/irisfin/riskagent/internal/observability"
	"github.com/irisfin/riskagent/internal/tools"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store := memory.NewStore(ctx, cfg.DatabaseURL)
	defer store.Close()
	if fb, ok := store.(*memory.FallbackStore); ok {
		fb.OnFallback = func(op string) {
			metrics.StorageFallbacks.WithLabelValues(op).Inc()
		}
	}
	log.Printf("memory storage: %s", store.Backend())

	client, err := model.New(model.Config{
		Mode:    cfg.ModelMode,
		BaseURL: cfg.ModelBaseURL,
		APIKey:  cfg.ModelAPIKey,
		Model:   cfg.ModelName,
		Timeout: cfg.ModelTimeout,
	})
	if err != nil {
		log.Fatalf("model client init failed: %v", err)
	}

	directory := tools.SampleDirectory()
	registry, err := tools.NewRegistry(
		tools.NewCustomerDetailsTool(directory),
		tools.NewRiskReportTool(directory),
	)
	if err != nil {
		log.Fatalf("tool registry init failed: %v", err)
	}

	runner := agent.New(store, client, registry, extract.New(), metrics, cfg.ThreadHistoryLimit, cfg.SummaryLimit)

	api := httpapi.New(cfg, store, runner, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
