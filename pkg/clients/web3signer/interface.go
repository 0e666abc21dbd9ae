package web3signer

import (
	"context"
)

// IWeb3Signer is the JSON-RPC surface of a remote wallet or Web3Signer
// instance used to request signatures from keys this process never sees.
type IWeb3Signer interface {
	// EthAccounts returns the accounts the wallet is willing to sign for.
	// This corresponds to the eth_accounts JSON-RPC method.
	EthAccounts(ctx context.Context) ([]string, error)

	// PersonalSign signs hex data with the EIP-191 personal message prefix.
	// This corresponds to the personal_sign JSON-RPC method.
	PersonalSign(ctx context.Context, account string, data string) (string, error)

	// EthSign signs hex data with the specified account.
	// This corresponds to the eth_sign JSON-RPC method.
	EthSign(ctx context.Context, account string, data string) (string, error)

	// EthSignTypedData signs EIP-712 typed data with the specified account.
	// This corresponds to the eth_signTypedData_v4 JSON-RPC method.
	EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error)

	Close()
}

// Compile-time check to ensure Client implements IWeb3Signer
var _ IWeb3Signer = (*Client)(nil)
