package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-session/metrics"
)

// EncryptedSuffix marks sealed secret files in the vault directory
const EncryptedSuffix = ".enc"

// writeFile is replaced in tests to simulate a failed plaintext write
var writeFile = os.WriteFile

// Vault decrypts the secrets a session needs and seals them again afterwards
type Vault interface {
	Initialize(ctx context.Context) error
	Decrypt(ctx context.Context) error
	Encrypt(ctx context.Context) error
}

// Keyset is the on-disk record of the wrapped data key
type Keyset struct {
	Provider   ProviderType `yaml:"provider"`
	Key        string       `yaml:"key"`
	WrappedKey string       `yaml:"wrappedKey"`
}

// ReadKeyset reads a keyset file
func ReadKeyset(path string) (Keyset, error) {
	ks := Keyset{}
	data, err := os.ReadFile(path)
	if err != nil {
		return ks, err
	}
	if err := yaml.Unmarshal(data, &ks); err != nil {
		return ks, fmt.Errorf("failed to parse keyset '%s': %w", path, err)
	}
	if !ks.Provider.IsValid() {
		return ks, fmt.Errorf("invalid provider '%s' in keyset. Must be %s", ks.Provider, GetAllProviderTypesString())
	}
	return ks, nil
}

// WriteKeyset writes a keyset file readable only by the owner
func WriteKeyset(path string, ks Keyset) error {
	data, err := yaml.Marshal(ks)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

var _ Vault = (*FileVault)(nil)

// FileVault keeps secrets as *.enc files in a directory. Decrypt writes each
// plaintext next to its sealed file; Encrypt seals those plaintexts again and
// removes them.
type FileVault struct {
	log        log.Logger
	dir        string
	keysetPath string
	cfg        ProviderConfig
	wrapper    KeyWrapper

	mu        sync.Mutex
	dataKey   []byte
	decrypted []string
}

func NewFileVault(logger log.Logger, dir string, keysetPath string, cfg ProviderConfig, wrapper KeyWrapper) *FileVault {
	return &FileVault{
		log:        logger,
		dir:        dir,
		keysetPath: keysetPath,
		cfg:        cfg,
		wrapper:    wrapper,
	}
}

// Initialize unwraps the data key, creating a new keyset when none exists yet
func (v *FileVault) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dataKey != nil {
		return nil
	}

	ks, err := ReadKeyset(v.keysetPath)
	if errors.Is(err, fs.ErrNotExist) {
		return v.createKeyset(ctx)
	}
	if err != nil {
		return err
	}
	if ks.Provider != v.cfg.ProviderType {
		return fmt.Errorf("keyset provider %s does not match configured provider %s", ks.Provider, v.cfg.ProviderType)
	}
	wrapped, err := base64.StdEncoding.DecodeString(ks.WrappedKey)
	if err != nil {
		return fmt.Errorf("failed to decode wrapped key: %w", err)
	}
	key, err := v.wrapper.UnwrapKey(ctx, ks.Key, wrapped)
	metrics.RecordSecretsOperation(string(v.cfg.ProviderType), "unwrap", err)
	if err != nil {
		return fmt.Errorf("failed to unwrap data key: %w", err)
	}
	v.dataKey = key
	v.log.Debug("Unwrapped data key", "provider", ks.Provider, "keyset", v.keysetPath)
	return nil
}

func (v *FileVault) createKeyset(ctx context.Context) error {
	key, err := newDataKey()
	if err != nil {
		return err
	}
	wrapped, err := v.wrapper.WrapKey(ctx, v.cfg.KeyName, key)
	metrics.RecordSecretsOperation(string(v.cfg.ProviderType), "wrap", err)
	if err != nil {
		return fmt.Errorf("failed to wrap data key: %w", err)
	}
	ks := Keyset{
		Provider:   v.cfg.ProviderType,
		Key:        v.cfg.KeyName,
		WrappedKey: base64.StdEncoding.EncodeToString(wrapped),
	}
	if err := WriteKeyset(v.keysetPath, ks); err != nil {
		return fmt.Errorf("failed to write keyset: %w", err)
	}
	v.dataKey = key
	v.log.Info("Created new keyset", "provider", ks.Provider, "keyset", v.keysetPath)
	return nil
}

// Decrypt opens every sealed file in the vault directory. Files decrypted before
// an error stay tracked so that Encrypt seals them again.
func (v *FileVault) Decrypt(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dataKey == nil {
		return errors.New("vault is not initialized")
	}

	sealed, err := v.sealedFiles()
	if err != nil {
		return err
	}
	for _, path := range sealed {
		if err := ctx.Err(); err != nil {
			return err
		}
		plainPath := strings.TrimSuffix(path, EncryptedSuffix)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		plaintext, err := open(v.dataKey, data, v.associatedData(plainPath))
		metrics.RecordSecretsOperation(string(v.cfg.ProviderType), "decrypt", err)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", path, err)
		}
		if err := writeFile(plainPath, plaintext, 0o600); err != nil {
			// a partial plaintext is not tracked, so Encrypt would never remove it
			if rmErr := os.Remove(plainPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				v.log.Error("Failed to remove partial plaintext", "file", plainPath, "error", rmErr)
			}
			return fmt.Errorf("failed to write %s: %w", plainPath, err)
		}
		v.decrypted = append(v.decrypted, plainPath)
	}
	v.log.Debug("Decrypted secrets", "dir", v.dir, "count", len(sealed))
	return nil
}

// Encrypt seals every file opened by Decrypt and removes the plaintext
func (v *FileVault) Encrypt(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	var remaining []string
	for _, plainPath := range v.decrypted {
		if err := v.sealFile(plainPath); err != nil {
			errs = append(errs, err)
			remaining = append(remaining, plainPath)
		}
	}
	sealed := len(v.decrypted) - len(remaining)
	v.decrypted = remaining
	v.log.Debug("Encrypted secrets", "dir", v.dir, "count", sealed)
	return errors.Join(errs...)
}

func (v *FileVault) sealFile(plainPath string) error {
	plaintext, err := os.ReadFile(plainPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", plainPath, err)
	}
	ciphertext, err := seal(v.dataKey, plaintext, v.associatedData(plainPath))
	metrics.RecordSecretsOperation(string(v.cfg.ProviderType), "encrypt", err)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", plainPath, err)
	}
	tmp := plainPath + EncryptedSuffix + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, plainPath+EncryptedSuffix); err != nil {
		return fmt.Errorf("failed to replace %s: %w", plainPath+EncryptedSuffix, err)
	}
	return os.Remove(plainPath)
}

// Decrypted returns the plaintext files currently on disk
func (v *FileVault) Decrypted() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.decrypted...)
}

// associatedData binds each ciphertext to its path inside the vault
func (v *FileVault) associatedData(plainPath string) []byte {
	rel, err := filepath.Rel(v.dir, plainPath)
	if err != nil {
		rel = filepath.Base(plainPath)
	}
	return []byte(filepath.ToSlash(rel))
}

func (v *FileVault) sealedFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(v.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), EncryptedSuffix) {
			out = append(out, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vault directory %s: %w", v.dir, err)
	}
	sort.Strings(out)
	return out, nil
}
