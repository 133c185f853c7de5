package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	masker "github.com/goliatone/go-masker"
	"github.com/joho/godotenv"

	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/adapter/secretstore"
)

var errNoVariables = errors.New("no variables found in the file")

// stagingWriter is the part of the staging store the CLI needs
type stagingWriter interface {
	CreateStaging(ctx context.Context, changeID string, payload entity.StagingPayload) (string, error)
	DeleteStaging(ctx context.Context, changeID string) error
}

type stagingFactory func(cfg cliConfig) stagingWriter

func newAWSStagingStore(cfg cliConfig) stagingWriter {
	return secretstore.NewStagingStore(
		secretstore.Config{Region: cfg.Region, Profile: cfg.Profile},
		valueobject.NewStagingNamespace(cfg.StagingPrefix),
	)
}

// liveReader reads the current live secret of a target
type liveReader interface {
	ReadCurrent(ctx context.Context, target valueobject.Target) (valueobject.LiveSecret, error)
}

// liveFactory returns nil when the proposer has no live read access configured
type liveFactory func(cfg cliConfig) liveReader

func newAWSLiveReader(cfg cliConfig) liveReader {
	if cfg.SecretPrefix == "" {
		return nil
	}
	return secretstore.NewLiveSecretStore(
		secretstore.Config{Region: cfg.Region, Profile: cfg.Profile},
		cfg.SecretPrefix,
	)
}

// readBaseline returns the live values at proposal time, or nil without live read access
func (a *app) readBaseline(ctx context.Context, cfg cliConfig, project, env string) (map[string]string, error) {
	if a.live == nil {
		return nil, nil
	}
	reader := a.live(cfg)
	if reader == nil {
		return nil, nil
	}
	target, err := valueobject.NewTarget(project, env)
	if err != nil {
		return nil, fmt.Errorf("invalid target %s/%s: %w", project, env, err)
	}
	current, err := reader.ReadCurrent(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("read live secret for baseline: %w", err)
	}
	return current.Values, nil
}

// readEnvFile parses a dotenv file into a key/value map
func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func maskValue(value string) string {
	if value == "" {
		return ""
	}
	if masked, err := masker.Default.String("preserveEnds(2,2)", value); err == nil && masked != value {
		return masked
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
