package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrSecretNotFound is returned when a provider has no value for a name.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
type SecretProvider interface {
	// GetSecret retrieves a secret by name. The meaning of name depends on
	// the provider: a file path for files, a variable name for the environment.
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider returns the provider name (env, file).
	Provider() string
}

// Reference points at a secret that may live inline, in a file or in an
// environment variable.
type Reference struct {
	Value string
	File  string
	Env   string
}

// IsZero reports whether no source is configured.
func (r Reference) IsZero() bool {
	return r.Value == "" && r.File == "" && r.Env == ""
}

// Source returns the name of the source Resolve will read from.
func (r Reference) Source() string {
	switch {
	case r.File != "":
		return "file"
	case r.Env != "":
		return "env"
	case r.Value != "":
		return "inline"
	default:
		return "none"
	}
}

// Resolver resolves references against a file and an environment provider.
type Resolver struct {
	Files SecretProvider
	Env   SecretProvider
}

// DefaultResolver reads files leniently and environment variables unprefixed.
var DefaultResolver = &Resolver{
	Files: NewFileProvider(false),
	Env:   NewEnvProvider(""),
}

// Resolve returns the secret a reference points to using DefaultResolver.
func Resolve(ctx context.Context, ref Reference) (string, error) {
	return DefaultResolver.Resolve(ctx, ref)
}

// Resolve returns the secret a reference points to. A file takes precedence
// over an environment variable, which takes precedence over the inline value.
// An empty reference resolves to the empty string.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (string, error) {
	switch {
	case ref.File != "":
		v, err := r.Files.GetSecret(ctx, ref.File)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return v, nil
	case ref.Env != "":
		v, err := r.Env.GetSecret(ctx, ref.Env)
		if err != nil {
			return "", fmt.Errorf("failed to read password from environment: %w", err)
		}
		return v, nil
	default:
		return ref.Value, nil
	}
}
