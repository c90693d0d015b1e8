// Command messagecraft runs the playbook generation API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messagecraft/pkg/agent"
	agentmetrics "messagecraft/pkg/agent/middleware/metrics"
	"messagecraft/pkg/auth"
	"messagecraft/pkg/config"
	"messagecraft/pkg/httpapi"
	"messagecraft/pkg/logx"
	"messagecraft/pkg/metrics"
	"messagecraft/pkg/persistence"
	"messagecraft/pkg/pipeline"
	"messagecraft/pkg/progress"
	"messagecraft/pkg/templates"
	"messagecraft/pkg/utils"
	"messagecraft/pkg/version"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}

	logger := logx.NewLogger("messagecraft")

	store, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	factory := agent.NewClientFactory(agentmetrics.NewPrometheusRecorder())
	client, err := factory.CreateClient(&cfg.Model)
	if err != nil {
		if cfg.Fallback == nil {
			log.Fatalf("Failed to create LLM client: %v", err)
		}
		logger.Warn("⚠️ Primary model unavailable (%v), using fallback %s", err, cfg.Fallback.Name)
		client, err = factory.CreateClient(cfg.Fallback)
		if err != nil {
			log.Fatalf("Failed to create fallback LLM client: %v", err)
		}
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	// Token counting is advisory; run without it if the tokenizer is missing
	counter, err := utils.NewTokenCounter(cfg.Model.Name)
	if err != nil {
		logger.Warn("⚠️ Token counter unavailable: %v", err)
		counter = nil
	}

	runner := pipeline.NewRunner(client, renderer, counter,
		progress.NewStoreTracker(store), cfg.Model.MaxTokens, cfg.Model.PromptBudget)

	authSvc := auth.NewService(store, cfg.Credits.InitialBalance)

	var usage *metrics.QueryService
	if cfg.Metrics.PrometheusURL != "" {
		usage, err = metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			logger.Warn("⚠️ Usage reporting disabled: %v", err)
			usage = nil
		}
	}

	api := httpapi.NewServer(store, authSvc, runner, httpapi.Options{
		Usage:               usage,
		QualityThreshold:    cfg.Reflection.QualityThreshold,
		MaxReflectionCycles: cfg.Reflection.MaxCycles,
	})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("🚀 messagecraft %s listening on %s (model %s)", version.Version, cfg.Server.Addr, client.GetModelName())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal %v, initiating graceful shutdown", sig)

	shutdownTimeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}
	if err := api.Shutdown(ctx); err != nil {
		logger.Error("Generation shutdown error: %v", err)
	}

	logger.Info("Shutdown completed")
}
