package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/accountProvider"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/clients/signingClient"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/logger"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/recovery"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/server"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/keySigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/remoteSigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func digestCommand(c *cli.Context) error {
	req, err := buildRequest(c, nil)
	if err != nil {
		return err
	}

	d, err := digest.Build(req)
	if err != nil {
		return err
	}
	fmt.Printf("Digest: %s\n", d.Hex())

	if !c.Bool("encode-type") || req.Typed == nil {
		return nil
	}

	schema := req.Typed.Schema
	encoded, err := digest.EncodeType(schema, schema.PrimaryType)
	if err != nil {
		return err
	}
	typeHash, err := digest.TypeHash(schema, schema.PrimaryType)
	if err != nil {
		return err
	}
	separator, err := digest.DomainSeparator(req.Typed.Domain)
	if err != nil {
		return err
	}
	structHash, err := digest.StructHash(req.Typed)
	if err != nil {
		return err
	}

	fmt.Printf("Encode type: %s\n", encoded)
	fmt.Printf("Type hash: %s\n", typeHash.Hex())
	fmt.Printf("Domain separator: %s\n", separator.Hex())
	fmt.Printf("Struct hash: %s\n", structHash.Hex())
	return nil
}

func signCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	s, preferred, closeSigner, err := newSigner(c, l)
	if err != nil {
		return err
	}
	defer closeSigner()

	accounts := accountProvider.NewSignerAccountProvider(s, preferred)
	account, err := accounts.ActiveAccount(ctx)
	if err != nil {
		return err
	}

	req, err := buildRequest(c, &account)
	if err != nil {
		return err
	}

	sess := session.NewSession(s, accounts, nil, nil, l)
	defer sess.Close()

	gen, err := sess.Submit(ctx, req)
	if err != nil {
		return err
	}
	outcome, err := sess.Wait(ctx, gen)
	if err != nil {
		return fmt.Errorf("failed waiting for signature: %w", err)
	}
	if outcome.Reason != nil {
		return outcome.Reason
	}

	fmt.Printf("Signer: %s\n", account.Hex())
	fmt.Printf("Digest: %s\n", outcome.Result.Digest.Hex())
	fmt.Printf("Signature: %s\n", outcome.Result.Signature.String())
	return nil
}

// submitCommand sends a request to a running signing server
func submitCommand(c *cli.Context) error {
	client, l, err := newServerClient(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	wait := !c.Bool("no-wait")
	var resp *server.SubmitResponse
	switch {
	case c.IsSet("message"):
		resp, err = client.SignMessage(c.Context, &server.SignMessageRequest{Message: c.String("message"), Wait: wait})
	case c.IsSet("message-hex"):
		resp, err = client.SignMessage(c.Context, &server.SignMessageRequest{
			Message:  c.String("message-hex"),
			Encoding: server.EncodingHex,
			Wait:     wait,
		})
	case c.IsSet("typed-file"):
		data, readErr := os.ReadFile(c.String("typed-file"))
		if readErr != nil {
			return fmt.Errorf("failed to read typed data: %w", readErr)
		}
		req, parseErr := parseTypedData(data)
		if parseErr != nil {
			return parseErr
		}
		typedReq := &server.SignTypedDataRequest{
			Schema: &req.Typed.Schema,
			Value:  req.Typed.Value,
			Wait:   wait,
		}
		// without a domain the server binds its own
		if req.Typed.Domain != (types.DomainDescriptor{}) {
			typedReq.Domain = &req.Typed.Domain
		}
		resp, err = client.SignTypedData(c.Context, typedReq)
	case c.IsSet("mail"):
		resp, err = client.SignMail(c.Context, &server.SignMailRequest{
			Message: c.String("mail"),
			To:      c.String("mail-to"),
			Wait:    wait,
		})
	default:
		return fmt.Errorf("one of --message, --message-hex, --typed-file or --mail is required")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Generation: %d\n", resp.Generation)
	if resp.Outcome == nil {
		fmt.Printf("State: %s\n", resp.Snapshot.State)
		return nil
	}
	fmt.Printf("State: %s\n", resp.Outcome.State)
	if resp.Outcome.Reason != nil {
		return resp.Outcome.Reason
	}
	fmt.Printf("Digest: %s\n", resp.Outcome.Result.Digest.Hex())
	fmt.Printf("Signature: %s\n", resp.Outcome.Result.Signature.String())
	return nil
}

func statusCommand(c *cli.Context) error {
	client, l, err := newServerClient(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if c.Bool("clear-error") {
		if err := client.ClearError(c.Context); err != nil {
			return err
		}
	}

	snap, err := client.Status(c.Context)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newServerClient(c *cli.Context) (*signingClient.Client, *zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	client, err := signingClient.NewClient(&signingClient.ClientConfig{
		ServerURL: c.String("server-url"),
		Timeout:   c.Duration("timeout"),
		Logger:    l,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, l, nil
}

func recoverCommand(c *cli.Context) error {
	d, err := parseDigest(c.String("digest"))
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(c.String("signature"))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	addr, err := recovery.RecoverAddress(d, sig)
	if err != nil {
		return err
	}
	fmt.Printf("Signer: %s\n", addr.Hex())
	return nil
}

func verifyCommand(c *cli.Context) error {
	if !common.IsHexAddress(c.String("address")) {
		return fmt.Errorf("invalid address: %s", c.String("address"))
	}
	expected := common.HexToAddress(c.String("address"))

	var d common.Hash
	if c.String("digest") != "" {
		parsed, err := parseDigest(c.String("digest"))
		if err != nil {
			return err
		}
		d = parsed
	} else {
		req, err := buildRequest(c, &expected)
		if err != nil {
			return err
		}
		if d, err = digest.Build(req); err != nil {
			return err
		}
	}

	sig, err := hexutil.Decode(c.String("signature"))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	outcome, err := recovery.Verify(d, sig, expected)
	if err != nil {
		return err
	}
	if !outcome.Valid {
		return types.NewSignatureMismatch(outcome.RecoveredAddress)
	}
	fmt.Printf("Valid signature by %s over %s\n", outcome.RecoveredAddress.Hex(), d.Hex())
	return nil
}

func newSigner(c *cli.Context, l *zap.Logger) (signer.ISigner, *common.Address, func(), error) {
	var preferred *common.Address
	if account := c.String("account"); account != "" {
		if !common.IsHexAddress(account) {
			return nil, nil, nil, fmt.Errorf("invalid account: %s", account)
		}
		addr := common.HexToAddress(account)
		preferred = &addr
	}

	if url := c.String("remote-signer-url"); url != "" {
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{Url: url}, l)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create remote signer client: %w", err)
		}
		return remoteSigner.NewRemoteSigner(client, l), preferred, client.Close, nil
	}

	if c.String("private-key") == "" {
		return nil, nil, nil, fmt.Errorf("either --private-key or --remote-signer-url is required")
	}
	keys := localKeyGenerator.NewLocalKeyGenerator(l)
	key, err := keys.LoadPrivateKeyFromHex(strings.TrimPrefix(c.String("private-key"), "0x"), "cli-signing-key", "")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load private key: %w", err)
	}
	ks := keySigner.NewKeySigner(keys, &keySigner.KeySignerConfig{KeyIds: []string{key.KeyId}}, l)
	return ks, preferred, func() {}, nil
}

// buildRequest turns exactly one of the request flags into a SigningRequest.
// account is the default mail sender.
func buildRequest(c *cli.Context, account *common.Address) (*types.SigningRequest, error) {
	set := 0
	for _, name := range []string{"message", "message-hex", "typed-file", "mail"} {
		if c.IsSet(name) {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --message, --message-hex, --typed-file or --mail is required")
	}

	switch {
	case c.IsSet("message"):
		return types.NewPlainMessageRequest([]byte(c.String("message"))), nil

	case c.IsSet("message-hex"):
		content, err := hexutil.Decode(c.String("message-hex"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex message: %w", err)
		}
		return types.NewPlainMessageRequest(content), nil

	case c.IsSet("typed-file"):
		data, err := os.ReadFile(c.String("typed-file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read typed data: %w", err)
		}
		return parseTypedData(data)

	default:
		version := c.String("domain-version")
		if version == "" {
			version = types.DefaultDomainVersion
		}
		domain := types.DomainDescriptor{
			Name:    c.String("domain-name"),
			Version: version,
			ChainId: c.Uint64("chain-id"),
		}

		var from common.Address
		switch {
		case c.String("mail-from") != "":
			if !common.IsHexAddress(c.String("mail-from")) {
				return nil, fmt.Errorf("invalid sender: %s", c.String("mail-from"))
			}
			from = common.HexToAddress(c.String("mail-from"))
		case account != nil:
			from = *account
		default:
			return nil, fmt.Errorf("--mail-from is required")
		}

		to := common.HexToAddress(types.DefaultRecipientAddress)
		if c.String("mail-to") != "" {
			if !common.IsHexAddress(c.String("mail-to")) {
				return nil, fmt.Errorf("invalid recipient: %s", c.String("mail-to"))
			}
			to = common.HexToAddress(c.String("mail-to"))
		}

		return types.NewMailTypedData(domain, types.DefaultFromName(domain), from,
			types.DefaultRecipientName, to, c.String("mail"), time.Now().UnixMilli()), nil
	}
}

func parseTypedData(data []byte) (*types.SigningRequest, error) {
	var td types.TypedData
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&td); err != nil {
		return nil, fmt.Errorf("failed to parse typed data: %w", err)
	}
	return types.NewTypedDataRequest(td.Domain, td.Schema, td.Value), nil
}

func parseDigest(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid digest: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid digest: expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
