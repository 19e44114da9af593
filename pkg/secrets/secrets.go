package secrets

import (
	"context"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// KeySource resolves a single named secret on every call, so rotations in
// the backing store are picked up once the manager's cache expires.
type KeySource struct {
	Manager Manager
	Key     string
	// Default is used when the manager cannot produce the key
	Default string
}

// Secret returns the current value of the key
func (s KeySource) Secret(ctx context.Context) string {
	if s.Manager == nil {
		return s.Default
	}
	return s.Manager.GetSecretWithDefault(ctx, s.Key, s.Default)
}
