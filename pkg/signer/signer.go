package signer

import (
	"context"
	"errors"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrUserRejected is wrapped by signers when the key holder declines to sign
var ErrUserRejected = errors.New("user rejected the signing request")

// RequestMetadata travels with every signature request
type RequestMetadata struct {
	RequestId string            `json:"requestId"`
	Kind      types.RequestKind `json:"kind"`
	Account   common.Address    `json:"account"`
	ChainId   uint64            `json:"chainId"`
}

func NewRequestMetadata(req *types.SigningRequest, account common.Address) *RequestMetadata {
	meta := &RequestMetadata{
		RequestId: uuid.New().String(),
		Kind:      req.Kind,
		Account:   account,
	}
	if req.Typed != nil {
		meta.ChainId = req.Typed.Domain.ChainId
	}
	return meta
}

// ISigner is the external key-holding agent. RequestSignature blocks until
// the holder answers or ctx is cancelled, and returns a 65-byte r || s || v
// signature over digest made by meta.Account.
type ISigner interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestSignature(ctx context.Context, req *types.SigningRequest, digest common.Hash, meta *RequestMetadata) ([]byte, error)
}

// ClassifyError maps a signer failure onto the user-facing taxonomy
func ClassifyError(err error) *types.FailureReason {
	if err == nil {
		return nil
	}
	var reason *types.FailureReason
	if errors.As(err, &reason) {
		return reason
	}
	if errors.Is(err, ErrUserRejected) {
		return types.NewUserRejected(err)
	}
	return types.NewSignerError(err)
}
