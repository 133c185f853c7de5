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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/fixora/secret-review/application/usecase/workflow"
	"github.com/fixora/secret-review/infrastructure/bootstrap"
	"github.com/fixora/secret-review/infrastructure/config"
	"github.com/fixora/secret-review/infrastructure/http/handler"
	"github.com/fixora/secret-review/infrastructure/http/middleware"
	"github.com/fixora/secret-review/infrastructure/service/jwt"
	"github.com/fixora/secret-review/infrastructure/service/logger"
	"github.com/fixora/secret-review/infrastructure/service/metrics"
	"github.com/fixora/secret-review/infrastructure/service/ratelimit"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "secret-review",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":     cfg.Environment,
		"targets": cfg.Targets().Len(),
	})

	stores, err := bootstrap.BuildStores(ctx, cfg, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize stores", err, nil)
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer stores.Close()

	var (
		registry       *prometheus.Registry
		serviceMetrics *metrics.Metrics
	)
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serviceMetrics = metrics.New(registry)
	}

	deps := workflow.Dependencies{
		Staging: stores.Staging,
		Live:    stores.Live,
		Ledger:  stores.Ledger,
		Logger:  structuredLogger,
	}
	if serviceMetrics != nil {
		deps.Metrics = serviceMetrics
	}
	workflowUseCase := workflow.NewWorkflowUseCase(deps, workflow.Options{
		Targets:             cfg.Targets(),
		Namespace:           stores.Namespace,
		PreventSelfApproval: cfg.PreventSelfApproval,
		StagingRetention:    cfg.StagingRetention,
	})

	tokenService, err := jwt.NewJWTService(cfg)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, map[string]interface{}{
			"algorithm": cfg.JWTAlgorithm,
		})
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if cfg.RateLimitEnabled {
		rateLimitService, err := ratelimit.NewRateLimitService(ratelimit.RateLimitConfig{
			Enabled:  cfg.RateLimitEnabled,
			RedisURL: cfg.RedisURL,
		}, logrus.StandardLogger())
		if err != nil {
			structuredLogger.Error(ctx, "Failed to initialize rate limit service, continuing without it", err, nil)
			rateLimitService = ratelimit.NewNoopRateLimitService()
		}
		rateLimitMiddleware = middleware.NewRateLimitMiddleware(rateLimitService, rateLimitPolicy(cfg), structuredLogger)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Changes:   handler.NewChangeHandler(workflowUseCase, structuredLogger),
		Health:    handler.NewHealthHandler(map[string]handler.Pinger{"ledger": stores.Ledger}, structuredLogger),
		Auth:      middleware.NewAuthMiddleware(tokenService, structuredLogger),
		RateLimit: rateLimitMiddleware,
		Metrics:   serviceMetrics,
		Gatherer:  gatherer(registry),
	})

	// CorrelationID outermost so every log line of the request carries it
	var httpHandler http.Handler = router
	if cfg.CORSEnabled && len(cfg.CORSAllowedOrigins) > 0 {
		httpHandler = middleware.CORSMiddleware(httpHandler, cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)
	}
	httpHandler = middleware.CorrelationIDMiddleware(httpHandler)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"addr": server.Addr,
			})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(ctx, "Server exited", nil)
}

func rateLimitPolicy(cfg *config.Config) middleware.RateLimitPolicy {
	return middleware.RateLimitPolicy{
		WriteLimit:    cfg.RateLimitWriteAttempts,
		ReadLimit:     cfg.RateLimitReadAttempts,
		Window:        cfg.RateLimitWindow,
		BlockDuration: cfg.RateLimitBlockDuration,
	}
}

// gatherer avoids handing a typed nil registry to the router
func gatherer(reg *prometheus.Registry) prometheus.Gatherer {
	if reg == nil {
		return nil
	}
	return reg
}
