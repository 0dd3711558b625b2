// Package chatservice wires configuration, storage, gateways and the HTTP
// surface into the chat-service binary.
package chatservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/api"
	"github.com/voxrelay/voxrelay/internal/automation"
	"github.com/voxrelay/voxrelay/internal/chat"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/factory"
	openaigw "github.com/voxrelay/voxrelay/internal/gateway/openai"
	"github.com/voxrelay/voxrelay/internal/health"
	"github.com/voxrelay/voxrelay/internal/logger"
	"github.com/voxrelay/voxrelay/internal/store"
)

// Run starts the chat service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("chat-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("chat_model", cfg.ChatModel).
		Str("transcription_model", cfg.TranscriptionModel).
		Bool("openai_configured", cfg.OpenAIAPIKey != "").
		Bool("automation_webhook", cfg.AutomationWebhookURL != "").
		Msg("Chat service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}

	openai := openaigw.New(openaigw.Config{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		ChatModel:          cfg.ChatModel,
		TranscriptionModel: cfg.TranscriptionModel,
	})

	assembler := chat.NewAssembler(st, cfg.SystemPrompt, cfg.DefaultContextWindow)
	orchestrator := chat.NewOrchestrator(st, openai, openai, assembler, cfg.AutoSummarizeAfter, log)

	forwarder := automation.NewForwarder(cfg.AutomationWebhookURL, log)
	if forwarder.Enabled() {
		orchestrator.WithRecordingSink(forwarder)
	}

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st, openai)

	router := api.NewRouter(orchestrator, st.Settings(), svcHealth.IsHealthy, log)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// startHealthCheckers starts component checkers and the service-level
// aggregator. The OpenAI checker is registered only when a key is
// configured: an unconfigured gateway degrades turns to mode=error instead
// of holding the whole service unhealthy.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, openai *openaigw.Client) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	if pinger, ok := st.(health.HealthPinger); ok {
		storeChecker := health.NewPingChecker("store", pinger, log, probeTimeout)
		go storeChecker.Start(ctx, interval)
		checkers = append(checkers, storeChecker)
	}

	if openai.Configured() {
		gwChecker := health.NewPingChecker("openai", openai, log, probeTimeout)
		go gwChecker.Start(ctx, interval)
		checkers = append(checkers, gwChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
