package secrets

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/properties"
)

// DefaultSecretsDir is used when the secrets directory property is unset
const DefaultSecretsDir = "secrets"

var _ Vault = (*PropertyVault)(nil)

// PropertyVault resolves its provider from the session properties when
// initialized. With no provider configured every operation is a no-op.
type PropertyVault struct {
	props      func() *properties.Properties
	log        log.Logger
	newWrapper func(ctx context.Context, logger log.Logger, cfg ProviderConfig) (KeyWrapper, error)

	mu    sync.Mutex
	inner *FileVault
}

func NewPropertyVault(props func() *properties.Properties, logger log.Logger) *PropertyVault {
	return &PropertyVault{
		props:      props,
		log:        logger,
		newWrapper: NewKeyWrapper,
	}
}

func (v *PropertyVault) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inner != nil {
		return v.inner.Initialize(ctx)
	}

	p := v.props()
	provider := ProviderType(p.String(properties.KeySecretsProvider, ""))
	if provider == "" {
		v.log.Info("No secrets provider configured, vault disabled")
		return nil
	}
	if !provider.IsValid() {
		return fmt.Errorf("invalid secrets provider '%s'. Must be %s", provider, GetAllProviderTypesString())
	}
	cfg := ProviderConfig{
		ProviderType: provider,
		KeyName:      p.String(properties.KeySecretsKeyName, ""),
		Region:       p.String(properties.KeySecretsKMSRegion, ""),
	}
	wrapper, err := v.newWrapper(ctx, v.log, cfg)
	if err != nil {
		return fmt.Errorf("failed to create %s key wrapper: %w", provider, err)
	}
	dir := p.String(properties.KeySecretsDir, DefaultSecretsDir)
	keyset := p.String(properties.KeySecretsKeyset, filepath.Join(dir, "keyset.yaml"))
	v.inner = NewFileVault(v.log, dir, keyset, cfg, wrapper)
	return v.inner.Initialize(ctx)
}

func (v *PropertyVault) Decrypt(ctx context.Context) error {
	inner := v.vault()
	if inner == nil {
		return nil
	}
	return inner.Decrypt(ctx)
}

func (v *PropertyVault) Encrypt(ctx context.Context) error {
	inner := v.vault()
	if inner == nil {
		return nil
	}
	return inner.Encrypt(ctx)
}

// Enabled reports whether a provider was configured
func (v *PropertyVault) Enabled() bool {
	return v.vault() != nil
}

func (v *PropertyVault) vault() *FileVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inner
}
