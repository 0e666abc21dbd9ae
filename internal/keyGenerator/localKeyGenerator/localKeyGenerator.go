package localKeyGenerator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// keyEntry stores both the private key and metadata for a key
type keyEntry struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	keyName    string
	aliasName  string
	address    common.Address
	order      int
}

// LocalKeyGenerator keeps keys in process memory only
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyStore map[string]*keyEntry // keyId -> keyEntry
	next     int
	mu       sync.RWMutex
}

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		keyStore: make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) GenerateECDSAKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.SigningKey, error) {
	// secp256k1, the Ethereum curve
	privateKey, _, err := ecdsa.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	keyId := newKeyId()
	if err := l.LoadPrivateKey(keyId, privateKey, keyName, aliasName); err != nil {
		return nil, err
	}
	return l.GetECDSAKeyById(ctx, keyId)
}

func (l *LocalKeyGenerator) GetECDSAKeyById(ctx context.Context, keyId string) (*keyGenerator.SigningKey, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}

	return &keyGenerator.SigningKey{
		PublicKey: entry.publicKey,
		Address:   entry.address,
		KeyId:     keyId,
	}, nil
}

func (l *LocalKeyGenerator) SignDigest(ctx context.Context, keyId string, digest common.Hash) ([]byte, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}

	signature, err := entry.privateKey.Sign(digest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest with key %s: %w", keyId, err)
	}
	sigBytes := signature.Bytes()

	l.logger.Debug("Signed digest with ECDSA key",
		zap.String("keyId", keyId),
		zap.String("digest", digest.Hex()),
		zap.Int("signatureLen", len(sigBytes)),
	)

	return sigBytes, nil
}

// LoadPrivateKey loads a pre-existing private key into the key store
func (l *LocalKeyGenerator) LoadPrivateKey(keyId string, privateKey *ecdsa.PrivateKey, keyName string, aliasName string) error {
	if privateKey == nil {
		return fmt.Errorf("private key cannot be nil")
	}

	address, err := privateKey.DeriveAddress()
	if err != nil {
		return fmt.Errorf("failed to derive Ethereum address from private key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}

	l.keyStore[keyId] = &keyEntry{
		privateKey: privateKey,
		publicKey:  privateKey.Public(),
		keyName:    keyName,
		aliasName:  aliasName,
		address:    address,
		order:      l.next,
	}
	l.next++

	l.logger.Info("Loaded ECDSA key",
		zap.String("keyId", keyId),
		zap.String("keyName", keyName),
		zap.String("aliasName", aliasName),
		zap.String("address", address.String()),
	)

	return nil
}

// LoadPrivateKeyFromHex loads a hex private key, optionally 0x-prefixed, under a fresh key id
func (l *LocalKeyGenerator) LoadPrivateKeyFromHex(privateKeyHex string, keyName string, aliasName string) (*keyGenerator.SigningKey, error) {
	privateKey, err := ecdsa.NewPrivateKeyFromHexString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from hex: %w", err)
	}

	keyId := newKeyId()
	if err := l.LoadPrivateKey(keyId, privateKey, keyName, aliasName); err != nil {
		return nil, err
	}
	return l.GetECDSAKeyById(context.Background(), keyId)
}

// ListKeys returns every key in load order
func (l *LocalKeyGenerator) ListKeys() []*keyGenerator.SigningKey {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.keyStore))
	for id := range l.keyStore {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return l.keyStore[ids[i]].order < l.keyStore[ids[j]].order
	})

	keys := make([]*keyGenerator.SigningKey, 0, len(ids))
	for _, id := range ids {
		entry := l.keyStore[id]
		keys = append(keys, &keyGenerator.SigningKey{
			PublicKey: entry.publicKey,
			Address:   entry.address,
			KeyId:     id,
		})
	}
	return keys
}

// KeyByAddress returns the id of the key controlling address
func (l *LocalKeyGenerator) KeyByAddress(address common.Address) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id, entry := range l.keyStore {
		if entry.address == address {
			return id, true
		}
	}
	return "", false
}

func (l *LocalKeyGenerator) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyStore)
}

func newKeyId() string {
	return fmt.Sprintf("local-key-%s", uuid.New().String())
}
