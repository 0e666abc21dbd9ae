// Package recovery derives the address that produced a 65-byte secp256k1
// signature over a digest.
package recovery

import (
	"errors"
	"math/big"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the r || s || v layout wallets return
	SignatureLength = crypto.SignatureLength

	legacyRecoveryOffset = 27
	eip155RecoveryOffset = 35
)

var errInvalidScalars = errors.New("signature r or s is outside the curve order")

// NormalizeRecoveryID maps the v byte wallets emit (0/1, 27/28 or an EIP-155
// style 35+2*chainId+{0,1}) onto the raw recovery id.
func NormalizeRecoveryID(v byte) (byte, error) {
	switch {
	case v < 2:
		return v, nil
	case v == legacyRecoveryOffset || v == legacyRecoveryOffset+1:
		return v - legacyRecoveryOffset, nil
	case v >= eip155RecoveryOffset:
		return (v - eip155RecoveryOffset) % 2, nil
	default:
		return 0, types.NewInvalidSignatureEncoding("recovery id %d out of range", v)
	}
}

// RecoverAddress returns the address whose key signed digest. The input
// signature is never modified.
func RecoverAddress(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, types.NewInvalidSignatureEncoding("expected %d signature bytes, got %d", SignatureLength, len(signature))
	}

	recoveryID, err := NormalizeRecoveryID(signature[crypto.RecoveryIDOffset])
	if err != nil {
		return common.Address{}, err
	}

	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:64])
	if !crypto.ValidateSignatureValues(recoveryID, r, s, false) {
		return common.Address{}, types.NewRecoveryFailed(errInvalidScalars)
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	sig[crypto.RecoveryIDOffset] = recoveryID

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, types.NewRecoveryFailed(err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify recovers the signer of digest and reports whether it is expected.
// A mismatch is not an error here; callers decide how to surface it.
func Verify(digest common.Hash, signature []byte, expected common.Address) (*types.VerificationOutcome, error) {
	recovered, err := RecoverAddress(digest, signature)
	if err != nil {
		return nil, err
	}
	return &types.VerificationOutcome{
		Valid:            recovered == expected,
		RecoveredAddress: recovered,
	}, nil
}
