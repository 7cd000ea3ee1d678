package profile

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anyclaw/anyclaw/internal/logger"
)

// VaultKey is the sealed-settings name an operator can store the provider
// key under.
const VaultKey = "anthropic_api_key"

// SecretReader is satisfied by secrets.Vault.
type SecretReader interface {
	Get(ctx context.Context, name string) (string, error)
}

// ChainResolver checks, in order: the process environment value, the sealed
// settings vault, then models.providers.anthropic.apiKey in the master
// runtime configuration.
type ChainResolver struct {
	EnvKey       string
	Vault        SecretReader
	MasterConfig string
}

func (r ChainResolver) ResolveKey(ctx context.Context) string {
	if r.EnvKey != "" {
		return r.EnvKey
	}
	if r.Vault != nil {
		key, err := r.Vault.Get(ctx, VaultKey)
		if err != nil {
			logger.Warn("Read sealed API key: %v", err)
		} else if key != "" {
			return key
		}
	}
	if r.MasterConfig != "" {
		return keyFromMaster(r.MasterConfig)
	}
	return ""
}

func keyFromMaster(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc struct {
		Models struct {
			Providers struct {
				Anthropic struct {
					APIKey string `json:"apiKey"`
				} `json:"anthropic"`
			} `json:"providers"`
		} `json:"models"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("Master config %s is not valid JSON: %v", path, err)
		return ""
	}
	return doc.Models.Providers.Anthropic.APIKey
}
