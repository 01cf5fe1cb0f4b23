package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Metadata  map[string]string // Additional secret metadata
	Value     string            // The secret value (e.g., gateway API key)
	Version   string            // Secret version identifier
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for retrieving secrets from a secret
// management service. Supported backends: AWS Secrets Manager, HashiCorp
// Vault, local filesystem (development only). Implementations handle
// authentication and caching; callers treat values as opaque.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - AWS: "billing-service/gateway/secret-key"
	//   - Vault: "secret/data/billing-service/gateway"
	//   - Local: relative file path under the configured base directory
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
