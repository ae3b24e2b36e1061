package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Bracket pairs the one decrypt at bootstrap with the encrypt at teardown.
// Encrypt only touches the vault when a decrypt was attempted, including a
// failed one, so anything partially decrypted is sealed again.
type Bracket struct {
	vault Vault
	log   log.Logger

	mu        sync.Mutex
	attempted bool
	encrypts  int
}

// NewBracket wraps vault. A nil vault makes both operations no-ops.
func NewBracket(vault Vault, logger log.Logger) *Bracket {
	return &Bracket{vault: vault, log: logger}
}

// Decrypt initializes the vault and decrypts it. Only the first call does work.
func (b *Bracket) Decrypt(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempted || b.vault == nil {
		return nil
	}
	b.attempted = true

	if err := b.vault.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	if err := b.vault.Decrypt(ctx); err != nil {
		return fmt.Errorf("failed to decrypt vault: %w", err)
	}
	b.log.Debug("Vault decrypted")
	return nil
}

// Encrypt seals the vault again if a decrypt was attempted
func (b *Bracket) Encrypt(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attempted {
		b.log.Debug("Vault was never decrypted, nothing to encrypt")
		return nil
	}
	b.encrypts++
	if err := b.vault.Encrypt(ctx); err != nil {
		return fmt.Errorf("failed to encrypt vault: %w", err)
	}
	b.log.Debug("Vault encrypted")
	return nil
}

// Attempted reports whether Decrypt ran against the vault
func (b *Bracket) Attempted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempted
}

// Encrypts returns how many times the vault was sealed
func (b *Bracket) Encrypts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encrypts
}
