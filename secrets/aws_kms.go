package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/log"
)

// AWSKMSClient is the minimal interface for the AWS KMS client required by the AWSKMSKeyWrapper. These functions
// are already implemented by the AWS SDK, but we define our own type to allow us to mock the client in tests.
type AWSKMSClient interface {
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/kms#Client.Encrypt
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/kms#Client.Decrypt
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type AWSKMSKeyWrapper struct {
	logger log.Logger
	client AWSKMSClient
}

func NewAWSKMSKeyWrapper(ctx context.Context, logger log.Logger, region string) (KeyWrapper, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := kms.NewFromConfig(cfg)
	return &AWSKMSKeyWrapper{logger: logger, client: client}, nil
}

func NewAWSKMSKeyWrapperWithClient(logger log.Logger, client AWSKMSClient) KeyWrapper {
	return &AWSKMSKeyWrapper{logger: logger, client: client}
}

// WrapKey encrypts the data key with the given AWS KMS key
func (a *AWSKMSKeyWrapper) WrapKey(ctx context.Context, keyName string, plaintext []byte) ([]byte, error) {
	result, err := a.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     &keyName,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms encrypt request failed: %w", err)
	}
	a.logger.Debug("aws kms wrapped data key", "key", keyName, "size", len(result.CiphertextBlob))
	return result.CiphertextBlob, nil
}

// UnwrapKey decrypts the data key with the given AWS KMS key
func (a *AWSKMSKeyWrapper) UnwrapKey(ctx context.Context, keyName string, ciphertext []byte) ([]byte, error) {
	result, err := a.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          &keyName,
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms decrypt request failed: %w", err)
	}
	return result.Plaintext, nil
}
