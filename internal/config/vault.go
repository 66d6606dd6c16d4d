// internal/config/vault.go
//
// Vault KV v2 resolution for `vault:<path>#<key>` configuration values.
//
// This is folded into internal/config rather than kept as a standalone
// package because every call site is this package's own
// resolveVaultURIs — there is no second consumer to justify a separate
// public API surface. Unlike the teacher's vault client, which starts its
// background token-renewal loop the moment it's constructed, vaultClient
// defers that goroutine until the first successful secret fetch: most
// routemgrd deployments declare no vault: value at all, so a client built
// speculatively (or one whose first fetch fails) never spends a
// goroutine renewing a token nothing ends up using.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// vaultClient wraps a Vault API client with a small read-through cache and
// a lazily-started renewal loop. Zero value is invalid; use newVaultClient.
type vaultClient struct {
	api   *vault.Client
	logFn func(string, ...any)

	renewOnce sync.Once

	cacheMu sync.RWMutex
	cache   map[string]cachedSecret // canonical path#key → value + expiry.
}

type cachedSecret struct {
	val string
	exp time.Time
}

// newVaultClient reads VAULT_ADDR/VAULT_TOKEN from the environment and
// builds a client. It does not contact Vault or start renewal; both
// happen lazily from getKV.
func newVaultClient(logFn func(string, ...any)) (*vaultClient, error) {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	return &vaultClient{
		api:   apiCli,
		logFn: logFn,
		cache: make(map[string]cachedSecret),
	}, nil
}

// getKV fetches a single key from a KV-v2 secret, caching it for ttl (if
// positive). The background renewal loop is started, once, after the
// first secret is actually fetched successfully — not at construction.
func (c *vaultClient) getKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cachedSecret{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}

	c.renewOnce.Do(func() { go c.renewLoop(ctx) })

	return sval, nil
}

// renewLoop probes and renews the Vault token until ctx is cancelled.
func (c *vaultClient) renewLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sec, err := c.api.Auth().Token().RenewSelf(0)
		if err != nil {
			c.logFn("vault: token renew self failed: %v", err)
			vaultBackoff(ctx, 30*time.Second)
			continue
		}

		if sec == nil || !sec.Auth.Renewable {
			c.logFn("vault: token is not renewable - sleeping 1h")
			vaultBackoff(ctx, time.Hour)
			continue
		}

		renewer, err := c.api.NewRenewer(&vault.RenewerInput{
			Secret: sec,
			Grace:  15 * time.Second,
		})
		if err != nil {
			c.logFn("vault: renewer init error: %v", err)
			vaultBackoff(ctx, 30*time.Second)
			continue
		}

		go renewer.Renew()

		for {
			select {
			case <-ctx.Done():
				renewer.Stop()
				return
			case err := <-renewer.DoneCh():
				renewer.Stop()
				if err != nil {
					c.logFn("vault: token renewal stopped: %v", err)
				}
				vaultBackoff(ctx, 15*time.Second)
				goto probe
			case ev := <-renewer.RenewCh():
				if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
					c.logFn("vault: token renewed, ttl=%ds", ev.Secret.Auth.LeaseDuration)
				}
			}
		}
	probe:
	}
}

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}

func vaultBackoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
