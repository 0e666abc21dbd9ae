package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/logger"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/recovery"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/keySigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/remoteSigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Signs the same personal message through a remote wallet and a local key
// holding the same private key, and compares the results.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	privateKey := os.Getenv(config.EnvSigningPrivateKey)
	if privateKey == "" {
		l.Sugar().Fatalf("%s environment variable is not set", config.EnvSigningPrivateKey)
	}
	url := os.Getenv(config.EnvSigningRemoteURL)
	if url == "" {
		url = "http://localhost:9100"
	}

	keys := localKeyGenerator.NewLocalKeyGenerator(l)
	key, err := keys.LoadPrivateKeyFromHex(privateKey, "hack-key", "")
	if err != nil {
		l.Sugar().Fatalf("failed to parse private key: %v", err)
	}
	localSigner := keySigner.NewKeySigner(keys, &keySigner.KeySignerConfig{KeyIds: []string{key.KeyId}}, l)

	signerCfg := &config.RemoteSignerConfig{
		Url:         url,
		FromAddress: key.Address.Hex(),
	}
	client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(signerCfg, l)
	if err != nil {
		l.Sugar().Fatalw("failed to create Web3Signer client", "error", err)
	}
	defer client.Close()
	walletSigner := remoteSigner.NewRemoteSigner(client, l)

	req := types.NewPlainMessageRequest([]byte("Hello, Web3Signer!"))
	d, err := digest.Build(req)
	if err != nil {
		l.Sugar().Fatalw("failed to build digest", "error", err)
	}
	meta := signer.NewRequestMetadata(req, key.Address)

	signatureWeb3, err := walletSigner.RequestSignature(ctx, req, d, meta)
	if err != nil {
		l.Sugar().Fatalw("failed to sign message with Web3Signer", "error", err)
	}
	signaturePK, err := localSigner.RequestSignature(ctx, req, d, meta)
	if err != nil {
		l.Sugar().Fatalw("failed to sign message with private key signer", "error", err)
	}

	fmt.Printf("Message: %s\n", req.Plain.Content)
	fmt.Printf("Digest: %s\n", d.Hex())
	fmt.Printf("Signature (Web3Signer):  %s\n", common.Bytes2Hex(signatureWeb3))
	fmt.Printf("Signature (Private Key): %s\n", common.Bytes2Hex(signaturePK))

	for name, sig := range map[string][]byte{"Web3Signer": signatureWeb3, "Private Key": signaturePK} {
		outcome, err := recovery.Verify(d, sig, key.Address)
		if err != nil {
			fmt.Printf("%s signature could not be recovered: %v\n", name, err)
			continue
		}
		fmt.Printf("%s signature recovers to %s (valid: %t)\n", name, outcome.RecoveredAddress.Hex(), outcome.Valid)
	}
}
