// Package secrets pulls provider credentials from a Vault KV engine into the
// process environment before configuration is loaded.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/retry"
)

type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	// Overwrite replaces variables that are already set in the environment.
	Overwrite bool
}

type VaultResult struct {
	Enabled bool
	Path    string
	Loaded  []string
	Skipped []string
}

// VaultConfigFromEnv reads VAULT_* variables. Vault stays disabled unless
// VAULT_ENABLED=true.
func VaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     envOr("VAULT_MOUNT", "secret"),
		Path:      envOr("VAULT_PATH", "carechat"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil {
		cfg.KVVersion = v
	}
	if ms, err := strconv.Atoi(os.Getenv("VAULT_TIMEOUT_MS")); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ApplyVaultSecrets fetches the secret at cfg.Path and exports each key as an
// environment variable. Existing variables win unless cfg.Overwrite is set.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" {
		return result, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN)")
	}

	url, err := secretURL(cfg)
	if err != nil {
		return result, err
	}

	var data map[string]interface{}
	retryCfg := retry.QuickConfig()
	retryCfg.Retryable = func(err error) bool {
		var statusErr *statusError
		return !errors.As(err, &statusErr) || statusErr.code >= 500
	}
	err = retry.Do(ctx, retryCfg, func() error {
		var fetchErr error
		data, fetchErr = fetchSecret(ctx, cfg, url)
		return fetchErr
	})
	if err != nil {
		return result, err
	}

	for key, value := range data {
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		if err := os.Setenv(key, stringify(value)); err != nil {
			return result, fmt.Errorf("setting %s: %w", key, err)
		}
		result.Loaded = append(result.Loaded, key)
	}
	return result, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vault responded %d: %s", e.code, e.body)
}

func fetchSecret(ctx context.Context, cfg VaultConfig, url string) (map[string]interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding vault response: %w", err)
	}
	if payload.Data == nil {
		return nil, errors.New("vault response has no data")
	}
	if cfg.KVVersion == 1 {
		return payload.Data, nil
	}
	inner, ok := payload.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.New("vault response missing data.data for KV v2")
	}
	return inner, nil
}

func secretURL(cfg VaultConfig) (string, error) {
	addr := strings.TrimRight(cfg.Addr, "/")
	mount := strings.Trim(cfg.Mount, "/")
	path := strings.Trim(cfg.Path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount, and path must be set")
	}
	if cfg.KVVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
