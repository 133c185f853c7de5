package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errNotConfigured = errors.New("not configured, run: sr configure --api-url <URL> --token <TOKEN>")

type cliConfig struct {
	APIURL        string `json:"api_url"`
	Token         string `json:"token"`
	Region        string `json:"region,omitempty"`
	Profile       string `json:"profile,omitempty"`
	StagingPrefix string `json:"staging_prefix,omitempty"`
	SecretPrefix  string `json:"secret_prefix,omitempty"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".secret-review", "config.json")
	}
	return filepath.Join(home, ".secret-review", "config.json")
}

func loadConfig(path string) (cliConfig, error) {
	var cfg cliConfig
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, errNotConfigured
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.APIURL == "" || cfg.Token == "" {
		return cfg, errNotConfigured
	}
	return cfg, nil
}

// saveConfig writes the file owner-only since it holds a bearer token
func saveConfig(path string, cfg cliConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}
