package remoteSigner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// RemoteSigner forwards requests to a wallet over JSON-RPC. The wallet
// computes its own digest; the session verifies it against ours.
type RemoteSigner struct {
	logger *zap.Logger
	client web3signer.IWeb3Signer
}

func NewRemoteSigner(client web3signer.IWeb3Signer, logger *zap.Logger) *RemoteSigner {
	return &RemoteSigner{
		logger: logger,
		client: client,
	}
}

func (r *RemoteSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	raw, err := r.client.EthAccounts(ctx)
	if err != nil {
		return nil, r.mapError(err)
	}
	accounts := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("remote signer returned invalid account %q", a)
		}
		accounts = append(accounts, common.HexToAddress(a))
	}
	return accounts, nil
}

func (r *RemoteSigner) RequestSignature(ctx context.Context, req *types.SigningRequest, hash common.Hash, meta *signer.RequestMetadata) ([]byte, error) {
	if req == nil || meta == nil {
		return nil, fmt.Errorf("request and metadata are required")
	}

	var sigHex string
	var err error
	switch req.Kind {
	case types.RequestKindPlainMessage:
		if req.Plain == nil {
			return nil, fmt.Errorf("plain message request has no content")
		}
		sigHex, err = r.client.PersonalSign(ctx, meta.Account.Hex(), hexutil.Encode(req.Plain.Content))
	case types.RequestKindTypedData:
		var payload string
		payload, err = typedDataPayload(req.Typed)
		if err != nil {
			return nil, err
		}
		sigHex, err = r.client.EthSignTypedData(ctx, meta.Account.Hex(), payload)
	default:
		return nil, fmt.Errorf("unsupported request kind %q", req.Kind)
	}
	if err != nil {
		r.logger.Info("Remote signer did not sign",
			zap.String("requestId", meta.RequestId),
			zap.Error(err),
		)
		return nil, r.mapError(err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote signature: %w", err)
	}

	r.logger.Debug("Remote signer returned signature",
		zap.String("requestId", meta.RequestId),
		zap.String("digest", hash.Hex()),
	)
	return sig, nil
}

// typedDataPayload is the JSON string eth_signTypedData_v4 expects
func typedDataPayload(td *types.TypedData) (string, error) {
	apiTd, err := digest.ToAPITypedData(td)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(apiTd)
	if err != nil {
		return "", fmt.Errorf("failed to encode typed data: %w", err)
	}
	return string(data), nil
}

func (r *RemoteSigner) mapError(err error) error {
	if web3signer.IsUserRejected(err) {
		return fmt.Errorf("%w: %v", signer.ErrUserRejected, err)
	}
	return err
}
