// internal/config/loader.go
//
// Configuration loader with lazy Vault support.
//
// Context
// -------
// `Load()` builds one immutable `Config` struct from, lowest precedence
// first:
//
//  1. Built-in defaults (PORT=8172, ROUTE_CHECK_INTERVAL=10, an insecure
//     default APITOKEN, and a local-dev DATABASE_URL).
//  2. Optional `conf/routemgr.yaml`, when present.
//  3. Process environment variables, under the exact names spec.md §6.2
//     defines — PORT, DATABASE_URL, ROUTE_CHECK_INTERVAL, APITOKEN.
//     An optional `.env` in the working directory is loaded into the
//     process environment first (without overriding variables already
//     set), so its values take part in this layer and outrank the YAML.
//
// **Vault integration** — any string value that begins with the prefix
// `vault:` is treated as a Vault URI of the form
// `vault:<secret-path>#<key>` and is resolved through the package-private
// vaultClient (vault.go) before unmarshalling, so callers stay oblivious.
// Unlike the framework-wide Vault singleton this package's stack is
// derived from, vaultClient is both constructed lazily — on first use,
// not at boot — and defers starting its background renewal loop until
// its first successful fetch, so a process that never sets a vault:
// value never touches Vault at all.
//
// Instrumentation
// ---------------
//   - DEBUG spans — YAML read, Vault resolve.
//   - ERROR spans — YAML parse, env overlay, Vault fetch, unmarshal, validation.
//   - INFO  span  — final "config loaded" with key highlights.
//   - Logs use the global *sugared* logger (zap.S()), so early boot issues
//     surface even before the file logger is installed.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

const vaultPrefix = "vault:"

var secretsClient *vaultClient // nil until the first vault: URI is met

var secretsMu sync.Mutex // guards the one-time construction of secretsClient

func ensureSecretsClient(_ context.Context) error {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if secretsClient != nil {
		return nil
	}
	cli, err := newVaultClient(zap.S().Debugf)
	if err != nil {
		return err
	}
	secretsClient = cli
	return nil
}

// defaults mirrors spec.md §6.2.
func defaults() map[string]any {
	return map[string]any{
		"PORT":                 8172,
		"ROUTE_CHECK_INTERVAL": 10,
		"APITOKEN":             "insecure-default-change-me",
		"DATABASE_URL":         "routemgr:routemgr@tcp(127.0.0.1:3306)/routemgr?parseTime=true",
	}
}

// Load reads defaults, .env, an optional YAML file, and environment
// overrides, resolves Vault URIs, validates, and caches Config. Safe for
// concurrent use.
func Load() (*Config, error) {
	ctx := context.Background()

	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config defaults: %w", err)
		}
	}

	_ = godotenv.Load(".env")

	yamlPath := filepath.Join("conf", "routemgr.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveVaultURIs(ctx, k); err != nil {
		zap.S().Errorw("config vault resolve failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"port", cfg.Port,
		"route_check_interval", cfg.RouteCheckInterval,
	)
	return &cfg, nil
}

// Get returns the most recently loaded Config, or nil if Load has not run.
func Get() *Config { return current.Load() }

// Reload re-runs Load, replacing the cached Config.
func Reload() error { _, err := Load(); return err }

// resolveVaultURIs replaces every `vault:<path>#<key>` string value with
// the secret it names, lazily constructing the Vault client on first use.
func resolveVaultURIs(ctx context.Context, k *koanf.Koanf) error {
	keys := k.Keys() // snapshot to avoid concurrent mutation
	for _, key := range keys {
		val, ok := k.Get(key).(string)
		if !ok || !strings.HasPrefix(val, vaultPrefix) {
			continue
		}

		if err := ensureSecretsClient(ctx); err != nil {
			return fmt.Errorf("vault required to resolve %s: %w", key, err)
		}

		body := strings.TrimPrefix(val, vaultPrefix)
		parts := strings.SplitN(body, "#", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid vault URI %q (want vault:path#key)", val)
		}
		secretPath, field := parts[0], parts[1]

		plain, err := secretsClient.getKV(ctx, secretPath, field, 10*time.Minute)
		if err != nil {
			return err
		}
		k.Set(key, plain)
		zap.S().Debugw("vault uri resolved",
			"key", key, "path", secretPath, "field", field)
	}
	return nil
}
