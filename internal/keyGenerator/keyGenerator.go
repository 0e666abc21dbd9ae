package keyGenerator

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SigningKey is a secp256k1 key held by a backend, identified by KeyId
type SigningKey struct {
	PublicKey *ecdsa.PublicKey
	Address   common.Address
	KeyId     string
}

func (sk *SigningKey) GetPublicKeyBytes() ([]byte, error) {
	if sk.PublicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return sk.PublicKey.Bytes(), nil
}

func (sk *SigningKey) GetPublicKeyHex() (string, error) {
	pubKeyBytes, err := sk.GetPublicKeyBytes()
	if err != nil {
		return "", fmt.Errorf("failed to get public key bytes: %w", err)
	}
	return hexutil.Encode(pubKeyBytes), nil
}

// IKeyGenerator creates keys and signs 32-byte digests with them. SignDigest
// never hashes its input and returns a 65-byte r || s || v signature.
type IKeyGenerator interface {
	GenerateECDSAKey(ctx context.Context, keyName string, aliasName string) (*SigningKey, error)
	GetECDSAKeyById(ctx context.Context, keyId string) (*SigningKey, error)
	SignDigest(ctx context.Context, keyId string, digest common.Hash) ([]byte, error)
}
