package main

import (
	"context"
	"fmt"
	"strings"

	awsInternal "github.com/Layr-Labs/eigenx-signing-go/internal/aws"
	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/accountProvider"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/keySigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/remoteSigner"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const kmsKeyEnvironment = "signing"

type backend struct {
	signer   signer.ISigner
	accounts accountProvider.IAccountProvider
	closers  []func()
}

func (b *backend) Close() {
	for _, c := range b.closers {
		c()
	}
}

func newBackend(ctx context.Context, cfg *config.SigningServerConfig, l *zap.Logger) (*backend, error) {
	var preferred *common.Address
	if cfg.Account != "" {
		addr := common.HexToAddress(cfg.Account)
		preferred = &addr
	}

	b := &backend{}
	switch cfg.Backend {
	case config.SignerBackendLocal:
		keys := localKeyGenerator.NewLocalKeyGenerator(l)
		keyIds, err := loadLocalKeys(ctx, keys, cfg.PrivateKeys(), l)
		if err != nil {
			return nil, err
		}
		b.signer = keySigner.NewKeySigner(keys, &keySigner.KeySignerConfig{KeyIds: keyIds}, l)

	case config.SignerBackendAWSKMS:
		awsCfg, err := awsInternal.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if identity, err := awsInternal.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
		} else if identity.Arn != nil {
			l.Sugar().Infow("Signing with AWS identity", "arn", *identity.Arn)
		}

		keys := awsKms.NewAWSKMSKeyGenerator(awsCfg, awsCfg.Region, kmsKeyEnvironment, l)
		key, err := keys.GetECDSAKeyById(ctx, cfg.KMSKeyId)
		if err != nil {
			return nil, fmt.Errorf("failed to load KMS key %s: %w", cfg.KMSKeyId, err)
		}
		l.Sugar().Infow("Loaded KMS signing key", "key_id", cfg.KMSKeyId, "address", key.Address.Hex())
		b.signer = keySigner.NewKeySigner(keys, &keySigner.KeySignerConfig{KeyIds: []string{cfg.KMSKeyId}}, l)

	case config.SignerBackendRemote:
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.RemoteSigner, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote signer client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.signer = remoteSigner.NewRemoteSigner(client, l)

	default:
		return nil, fmt.Errorf("unsupported signer backend: %s", cfg.Backend)
	}

	b.accounts = accountProvider.NewSignerAccountProvider(b.signer, preferred)
	return b, nil
}

// loadLocalKeys imports the given hex keys, or generates an ephemeral one when
// none are set. It returns the key ids in load order.
func loadLocalKeys(ctx context.Context, keys *localKeyGenerator.LocalKeyGenerator, privateKeys []string, l *zap.Logger) ([]string, error) {
	for i, pk := range privateKeys {
		if _, err := keys.LoadPrivateKeyFromHex(strings.TrimPrefix(pk, "0x"), fmt.Sprintf("signing-key-%d", i), ""); err != nil {
			return nil, fmt.Errorf("failed to load private key %d: %w", i, err)
		}
	}

	if len(privateKeys) == 0 {
		key, err := keys.GenerateECDSAKey(ctx, "ephemeral-signing-key", "")
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		l.Sugar().Warnw("No private key configured, generated an ephemeral signing key", "address", key.Address.Hex())
	}

	loaded := keys.ListKeys()
	keyIds := make([]string, 0, len(loaded))
	for _, key := range loaded {
		l.Sugar().Infow("Loaded local signing key", "key_id", key.KeyId, "address", key.Address.Hex())
		keyIds = append(keyIds, key.KeyId)
	}
	return keyIds, nil
}
