package keySigner

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Approver decides whether a request may be signed. Returning an error that
// wraps signer.ErrUserRejected models the key holder declining.
type Approver func(ctx context.Context, req *types.SigningRequest, meta *signer.RequestMetadata) error

// AutoApprove signs everything
func AutoApprove(context.Context, *types.SigningRequest, *signer.RequestMetadata) error {
	return nil
}

type KeySignerConfig struct {
	KeyIds   []string
	Approver Approver
}

// KeySigner answers signature requests with keys held by a key generator
// backend (in-memory or KMS).
type KeySigner struct {
	logger  *zap.Logger
	keys    keyGenerator.IKeyGenerator
	keyIds  []string
	approve Approver

	mu       sync.RWMutex
	accounts map[common.Address]string
}

func NewKeySigner(keys keyGenerator.IKeyGenerator, cfg *KeySignerConfig, logger *zap.Logger) *KeySigner {
	approve := Approver(AutoApprove)
	var keyIds []string
	if cfg != nil {
		keyIds = append(keyIds, cfg.KeyIds...)
		if cfg.Approver != nil {
			approve = cfg.Approver
		}
	}
	return &KeySigner{
		logger:   logger,
		keys:     keys,
		keyIds:   keyIds,
		approve:  approve,
		accounts: make(map[common.Address]string),
	}
}

func (k *KeySigner) Accounts(ctx context.Context) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(k.keyIds))
	for _, keyId := range k.keyIds {
		key, err := k.keys.GetECDSAKeyById(ctx, keyId)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve key %s: %w", keyId, err)
		}
		k.mu.Lock()
		k.accounts[key.Address] = keyId
		k.mu.Unlock()
		addresses = append(addresses, key.Address)
	}
	return addresses, nil
}

func (k *KeySigner) RequestSignature(ctx context.Context, req *types.SigningRequest, digest common.Hash, meta *signer.RequestMetadata) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("request metadata is required")
	}

	keyId, err := k.keyFor(ctx, meta.Account)
	if err != nil {
		return nil, err
	}

	if err := k.approve(ctx, req, meta); err != nil {
		k.logger.Info("Signature request declined",
			zap.String("requestId", meta.RequestId),
			zap.String("account", meta.Account.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := k.keys.SignDigest(ctx, keyId, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request %s: %w", meta.RequestId, err)
	}

	k.logger.Debug("Signed request",
		zap.String("requestId", meta.RequestId),
		zap.String("kind", string(meta.Kind)),
		zap.String("account", meta.Account.Hex()),
	)
	return sig, nil
}

func (k *KeySigner) keyFor(ctx context.Context, account common.Address) (string, error) {
	k.mu.RLock()
	keyId, ok := k.accounts[account]
	k.mu.RUnlock()
	if ok {
		return keyId, nil
	}

	if _, err := k.Accounts(ctx); err != nil {
		return "", err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if keyId, ok := k.accounts[account]; ok {
		return keyId, nil
	}
	return "", fmt.Errorf("no key for account %s", account.Hex())
}
