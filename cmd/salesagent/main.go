// Command salesagent runs the outbound sales voice agent: the carrier
// webhook handler, audio cache, operator endpoints, and broadcast feed,
// grounded on the teacher's cmd/samantha/main.go process-wiring and
// signal/graceful-shutdown idiom.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/salesagent/internal/broadcast"
	"github.com/ent0n29/salesagent/internal/config"
	"github.com/ent0n29/salesagent/internal/engine"
	"github.com/ent0n29/salesagent/internal/httpapi"
	"github.com/ent0n29/salesagent/internal/llm"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/quality"
	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/respcache"
	"github.com/ent0n29/salesagent/internal/storage"
	"github.com/ent0n29/salesagent/internal/tts"
	"github.com/ent0n29/salesagent/internal/ttscache"
	"github.com/ent0n29/salesagent/internal/turn"
	"github.com/ent0n29/salesagent/internal/warmup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres store init failed: %v", err)
	}
	defer store.Close()

	llmBreaker := reliability.NewCircuitBreaker(cfg.CircuitBreakerFailureThreshold, 60*time.Second, cfg.CircuitBreakerCooldown)
	ttsBreaker := reliability.NewCircuitBreaker(cfg.CircuitBreakerFailureThreshold, 60*time.Second, cfg.CircuitBreakerCooldown)

	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, metrics)

	ttsCache := ttscache.New(cfg.TTSCacheSize, cfg.TTSCacheDir)
	ttsClient := tts.New(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSVoice, ttsCache, ttsBreaker)

	respCache := respcache.New(cfg.ResponseCacheTTL, cfg.ResponseCacheMaxSize)
	scorer := quality.NewScorer(cfg.QualityWindowSize, cfg.QualityBaselineScore, cfg.QualityAlertThreshold)

	timeouts := engine.Timeouts{
		Simple:   cfg.LLMTimeoutS0toS4,
		Moderate: cfg.LLMTimeoutS5toS9,
		Complex:  cfg.LLMTimeoutS10toS12,
	}
	mode := engine.ModeStreaming
	if cfg.LLMStreamingMode == "serial" {
		mode = engine.ModeSerial
	}
	respEngine := engine.New(respCache, llmClient, ttsClient, llmBreaker, scorer, metrics, timeouts, mode)

	bus := broadcast.New(metrics)
	turnHandler := turn.New(store, respEngine, bus, metrics)

	warm := warmup.New(llmClient, ttsClient, cfg.LLMBaseURL, cfg.TTSBaseURL)
	warm.Run(ctx)

	api := httpapi.New(httpapi.Config{
		Turn:             turnHandler,
		Store:            store,
		Bus:              bus,
		Metrics:          metrics,
		QualityEngine:    respEngine,
		LLMBreaker:       llmBreaker,
		TTSBreaker:       ttsBreaker,
		CarrierAuthToken: cfg.CarrierAuthToken,
		VerifySignatures: cfg.SignatureVerifyOn,
		WebhookBaseURL:   cfg.WebhookBaseURL,
		TTSCacheDir:      cfg.TTSCacheDir,
		AllowAnyOrigin:   cfg.AllowAnyOrigin,
	})

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go bus.Run(runCtx)

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

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
