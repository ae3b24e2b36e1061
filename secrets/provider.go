package secrets

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// KeyWrapper wraps and unwraps the data key that protects the secrets directory
type KeyWrapper interface {
	WrapKey(ctx context.Context, keyName string, plaintext []byte) ([]byte, error)
	UnwrapKey(ctx context.Context, keyName string, ciphertext []byte) ([]byte, error)
}

// ProviderType represents the provider for the key management service.
type ProviderType string

const (
	KeyProviderAWS   ProviderType = "AWS"
	KeyProviderGCP   ProviderType = "GCP"
	KeyProviderLocal ProviderType = "LOCAL"
)

func GetAllProviderTypes() []ProviderType {
	return []ProviderType{KeyProviderAWS, KeyProviderGCP, KeyProviderLocal}
}

// GetAllProviderTypesString returns a string of all the provider types separated
// by commas and wrapped in single quotes.
func GetAllProviderTypesString() string {
	types := GetAllProviderTypes()
	result := make([]string, len(types))
	for i, t := range types {
		result[i] = string(t)
	}
	if len(result) == 1 {
		return result[0]
	}
	return fmt.Sprintf("'%s' or '%s'", strings.Join(result[:len(result)-1], "', '"), result[len(result)-1])
}

// IsValid checks if the ProviderType value is valid
func (k ProviderType) IsValid() bool {
	return slices.Contains(GetAllProviderTypes(), k)
}

// ProviderConfig selects and configures a key wrapper
type ProviderConfig struct {
	ProviderType ProviderType
	// KeyName is the KMS key resource (AWS key id/ARN, GCP crypto key name) or,
	// for the local provider, the path of the master key file.
	KeyName string
	// Region optionally overrides the AWS region
	Region string
}

// NewKeyWrapper creates a new KeyWrapper based on the provider type
func NewKeyWrapper(ctx context.Context, logger log.Logger, cfg ProviderConfig) (KeyWrapper, error) {
	switch cfg.ProviderType {
	case KeyProviderGCP:
		return NewGCPKMSKeyWrapper(ctx, logger)
	case KeyProviderAWS:
		return NewAWSKMSKeyWrapper(ctx, logger, cfg.Region)
	case KeyProviderLocal:
		return NewLocalKeyWrapper(logger, cfg.KeyName)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s. Must be %s", cfg.ProviderType, GetAllProviderTypesString())
	}
}
