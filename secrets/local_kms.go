package secrets

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/chacha20poly1305"
)

// LocalKeyWrapper wraps data keys with a master key read from a local file. The
// file holds the 32-byte key hex encoded.
type LocalKeyWrapper struct {
	logger    log.Logger
	masterKey []byte
}

// NewLocalKeyWrapper loads the master key from keyPath
func NewLocalKeyWrapper(logger log.Logger, keyPath string) (KeyWrapper, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("local provider requires a master key path")
	}
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read master key from path '%s': %w", keyPath, err)
	}
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key from path '%s': %w", keyPath, err)
	}
	return NewLocalKeyWrapperWithKey(logger, key)
}

// NewLocalKeyWrapperWithKey creates a wrapper from an in-memory master key
func NewLocalKeyWrapperWithKey(logger log.Logger, key []byte) (KeyWrapper, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid master key length: got %d bytes, expected %d", len(key), chacha20poly1305.KeySize)
	}
	return &LocalKeyWrapper{logger: logger, masterKey: key}, nil
}

// WrapKey seals the data key with the master key. keyName is bound as associated data.
func (l *LocalKeyWrapper) WrapKey(_ context.Context, keyName string, plaintext []byte) ([]byte, error) {
	return seal(l.masterKey, plaintext, []byte(keyName))
}

// UnwrapKey opens a data key sealed by WrapKey
func (l *LocalKeyWrapper) UnwrapKey(_ context.Context, keyName string, ciphertext []byte) ([]byte, error) {
	return open(l.masterKey, ciphertext, []byte(keyName))
}
