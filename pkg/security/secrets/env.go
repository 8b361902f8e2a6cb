package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider loads secrets from environment variables.
//
// An optional prefix namespaces the variables: with prefix "TLSRELAY_",
// the secret "STORE_PASSWORD" is read from TLSRELAY_STORE_PASSWORD.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates a new environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret retrieves a secret from an environment variable. A variable that
// is set to the empty string is a valid, empty secret.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.Prefix + name

	value, ok := os.LookupEnv(envVar)
	if !ok {
		return "", fmt.Errorf("%w in environment: %s", ErrSecretNotFound, envVar)
	}

	return value, nil
}

// Provider returns the provider name.
func (p *EnvProvider) Provider() string {
	return "env"
}
