// Package secrets resolves secret placeholders in module configuration
// blocks, so shared secrets and API keys never appear in policy documents.
// Resolved values are tracked so logs and event payloads can redact them.
package secrets

import (
	"context"
	"os"
)

// Provider retrieves secret values by key at policy compile time.
type Provider interface {
	// GetSecret returns the value for key and whether it was found.
	GetSecret(ctx context.Context, key string) (string, bool, error)
}

// EnvProvider resolves secrets from environment variables.
type EnvProvider struct{}

// NewEnvProvider creates an environment variable secrets provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// GetSecret looks up the named environment variable.
func (p *EnvProvider) GetSecret(_ context.Context, key string) (string, bool, error) {
	value, found := os.LookupEnv(key)
	return value, found, nil
}

var _ Provider = (*EnvProvider)(nil)
