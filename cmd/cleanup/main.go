package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/fixora/secret-review/application/usecase/workflow"
	"github.com/fixora/secret-review/infrastructure/bootstrap"
	"github.com/fixora/secret-review/infrastructure/config"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type report struct {
	DeletedCount int   `json:"deletedCount"`
	TotalCount   int   `json:"totalCount"`
	FailedCount  int   `json:"failedCount"`
	PurgedLedger int64 `json:"purgedLedger,omitempty"`
}

// One sweep per invocation, meant to be run by cron or a scheduled task
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "maximum duration of one sweep")
	purgeLedger := flag.Bool("purge-ledger", true, "also delete expired ledger records when the backend cannot expire them itself")
	flag.Parse()

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "secret-review-cleanup",
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stores, err := bootstrap.BuildStores(ctx, cfg, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize stores", err, nil)
		os.Exit(1)
	}
	defer stores.Close()

	uc := workflow.NewWorkflowUseCase(workflow.Dependencies{
		Staging: stores.Staging,
		Live:    stores.Live,
		Ledger:  stores.Ledger,
		Logger:  structuredLogger,
	}, workflow.Options{
		Targets:          cfg.Targets(),
		Namespace:        stores.Namespace,
		StagingRetention: cfg.StagingRetention,
	})

	result, err := uc.Cleanup(ctx)
	if err != nil {
		structuredLogger.Error(ctx, "Cleanup sweep failed", err, nil)
		os.Exit(1)
	}

	out := report{
		DeletedCount: result.DeletedCount,
		TotalCount:   result.TotalCount,
		FailedCount:  result.FailedCount,
	}

	if expiring, ok := stores.Ledger.(bootstrap.ExpiringLedger); ok && *purgeLedger && cfg.LedgerTTL > 0 {
		purged, err := expiring.PurgeExpired(ctx, time.Now())
		if err != nil {
			structuredLogger.Error(ctx, "Ledger purge failed", err, nil)
		} else {
			out.PurgedLedger = purged
		}
	}

	_ = json.NewEncoder(os.Stdout).Encode(out)
}
