package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/adapter/dynamo"
	"github.com/fixora/secret-review/infrastructure/adapter/memory"
	"github.com/fixora/secret-review/infrastructure/adapter/postgres"
	"github.com/fixora/secret-review/infrastructure/adapter/secretstore"
	"github.com/fixora/secret-review/infrastructure/config"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

// ExpiringLedger is implemented by ledgers that purge expired records themselves
type ExpiringLedger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Stores is the set of adapters selected by STORE_BACKEND and LEDGER_BACKEND
type Stores struct {
	Staging   outbound.StagingStore
	Live      outbound.LiveSecretStore
	Ledger    outbound.ChangeLedger
	Namespace valueobject.StagingNamespace

	closers []func() error
}

func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildStores opens the configured backends. Close releases any database handle.
func BuildStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*Stores, error) {
	stores := &Stores{Namespace: valueobject.NewStagingNamespace(cfg.StagingPrefix)}

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		stores.Staging = memory.NewStagingStore(stores.Namespace)
		stores.Live = memory.NewLiveSecretStore()
		log.Warn(ctx, "Using in-memory secret stores, values are lost on restart", nil)
	case config.StoreBackendAWS:
		awsCfg := secretstore.Config{Region: cfg.AWSRegion, Profile: cfg.AWSProfile, KMSKeyID: cfg.KMSKeyID}
		stores.Staging = secretstore.NewStagingStore(awsCfg, stores.Namespace)
		stores.Live = secretstore.NewLiveSecretStore(awsCfg, cfg.SecretNamePrefix)
	default:
		return nil, config.ErrInvalidStoreBackend
	}

	switch cfg.LedgerBackend {
	case config.LedgerBackendMemory:
		stores.Ledger = memory.NewChangeLedger()
	case config.LedgerBackendDynamoDB:
		stores.Ledger = dynamo.NewChangeLedger(dynamo.Config{
			Table:   cfg.LedgerTable,
			TTL:     cfg.LedgerTTL,
			Region:  cfg.AWSRegion,
			Profile: cfg.AWSProfile,
		})
	case config.LedgerBackendPostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, db.Close)
		stores.Ledger = postgres.NewChangeRequestRepositoryAdapter(db, cfg.LedgerTTL)
	default:
		return nil, config.ErrInvalidLedgerBackend
	}

	log.Info(ctx, "Stores initialized", map[string]interface{}{
		"store_backend":  cfg.StoreBackend,
		"ledger_backend": cfg.LedgerBackend,
		"staging_prefix": stores.Namespace.Prefix(),
	})
	return stores, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
