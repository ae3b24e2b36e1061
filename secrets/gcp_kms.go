package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/ethereum/go-ethereum/log"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GCPKMSClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

type GCPKMSKeyWrapper struct {
	logger log.Logger
	client GCPKMSClient
}

func NewGCPKMSKeyWrapper(ctx context.Context, logger log.Logger) (KeyWrapper, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCP KMS client: %w", err)
	}
	return &GCPKMSKeyWrapper{logger, client}, nil
}

func NewGCPKMSKeyWrapperWithClient(logger log.Logger, client GCPKMSClient) KeyWrapper {
	return &GCPKMSKeyWrapper{logger, client}
}

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// WrapKey encrypts the data key with the given GCP KMS crypto key
func (c *GCPKMSKeyWrapper) WrapKey(ctx context.Context, keyName string, plaintext []byte) ([]byte, error) {
	request := &kmspb.EncryptRequest{
		Name:            keyName,
		Plaintext:       plaintext,
		PlaintextCrc32C: wrapperspb.Int64(int64(crc32c(plaintext))),
	}
	result, err := c.client.Encrypt(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("GCP KMS encrypt request failed: %w", err)
	}
	if !result.VerifiedPlaintextCrc32C {
		return nil, errors.New("GCP KMS encrypt request corrupted in transit")
	}
	if result.CiphertextCrc32C == nil || int64(crc32c(result.Ciphertext)) != result.CiphertextCrc32C.Value {
		return nil, errors.New("GCP KMS encrypt response corrupted in transit")
	}
	c.logger.Debug("gcp kms wrapped data key", "key", keyName, "size", len(result.Ciphertext))
	return result.Ciphertext, nil
}

// UnwrapKey decrypts the data key with the given GCP KMS crypto key
func (c *GCPKMSKeyWrapper) UnwrapKey(ctx context.Context, keyName string, ciphertext []byte) ([]byte, error) {
	request := &kmspb.DecryptRequest{
		Name:             keyName,
		Ciphertext:       ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(int64(crc32c(ciphertext))),
	}
	result, err := c.client.Decrypt(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("GCP KMS decrypt request failed: %w", err)
	}
	if result.PlaintextCrc32C == nil || int64(crc32c(result.Plaintext)) != result.PlaintextCrc32C.Value {
		return nil, errors.New("GCP KMS decrypt response corrupted in transit")
	}
	return result.Plaintext, nil
}
