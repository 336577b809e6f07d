package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/example/secretctl/internal/schema"
)

// vaultSource reads credentials from a HashiCorp Vault KV mount. Each source
// variable maps to <pathPrefix>/<VAR> with the value under the "value" data
// key (or the single key when the entry holds exactly one).
type vaultSource struct {
	client    *vault.Client
	mount     string
	prefix    string
	kvVersion int
}

// NewVaultSource builds the optional store tier from catalog config. The
// token comes from the caller's resolved configuration, never read here.
func NewVaultSource(cfg *schema.StoreConfig, token string) (StoreSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, fmt.Errorf("store address is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("store token is required (set VAULT_TOKEN)")
	}
	apiCfg := vault.DefaultConfig()
	apiCfg.Address = address
	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("build vault client: %w", err)
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	client.SetToken(token)

	mount := strings.Trim(strings.TrimSpace(cfg.Mount), "/")
	if mount == "" {
		mount = "secret"
	}
	kvVersion := cfg.KVVersion
	if kvVersion == 0 {
		kvVersion = 2
	}
	return &vaultSource{
		client:    client,
		mount:     mount,
		prefix:    strings.Trim(strings.TrimSpace(cfg.PathPrefix), "/"),
		kvVersion: kvVersion,
	}, nil
}

func (s *vaultSource) Lookup(ctx context.Context, name string) (string, bool, error) {
	path := name
	if s.prefix != "" {
		path = s.prefix + "/" + name
	}
	var data map[string]interface{}
	switch s.kvVersion {
	case 1:
		secret, err := s.client.Logical().ReadWithContext(ctx, fmt.Sprintf("%s/%s", s.mount, path))
		if err != nil {
			return "", false, err
		}
		if secret == nil || secret.Data == nil {
			return "", false, nil
		}
		data = secret.Data
	case 2:
		secret, err := s.client.KVv2(s.mount).Get(ctx, path)
		if err != nil {
			if errors.Is(err, vault.ErrSecretNotFound) {
				return "", false, nil
			}
			return "", false, err
		}
		if secret == nil || secret.Data == nil {
			return "", false, nil
		}
		data = secret.Data
	default:
		return "", false, fmt.Errorf("store kvVersion must be 1 or 2")
	}

	if val, ok := data["value"]; ok {
		return coerceString(name, val)
	}
	if len(data) == 1 {
		for _, val := range data {
			return coerceString(name, val)
		}
	}
	return "", false, fmt.Errorf("store entry for %s is ambiguous; use a single \"value\" key", name)
}

func coerceString(name string, val interface{}) (string, bool, error) {
	switch typed := val.(type) {
	case string:
		return typed, true, nil
	case []byte:
		return string(typed), true, nil
	default:
		return "", false, fmt.Errorf("store entry for %s is not a string", name)
	}
}
