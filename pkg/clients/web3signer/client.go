package web3signer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// UserRejectedCode is the EIP-1193 error code wallets return when the user declines
const UserRejectedCode = 4001

type Config struct {
	BaseURL string
	Timeout time.Duration

	// Optional mutual TLS material, as file paths
	CACert string
	Cert   string
	Key    string
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:9000",
		Timeout: 30 * time.Second,
	}
}

type Client struct {
	logger    *zap.Logger
	config    *Config
	rpcClient *rpc.Client
}

// NewClient creates a JSON-RPC client for cfg.BaseURL. HTTP endpoints are not
// contacted until the first call.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	httpClient, err := newHttpClient(cfg)
	if err != nil {
		return nil, err
	}

	rpcClient, err := rpc.DialOptions(context.Background(), cfg.BaseURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote signer client for %s: %w", cfg.BaseURL, err)
	}

	return &Client{
		logger:    logger,
		config:    cfg,
		rpcClient: rpcClient,
	}, nil
}

// NewClientWithRPC wraps an existing RPC client, e.g. an in-process one
func NewClientWithRPC(rpcClient *rpc.Client, logger *zap.Logger) *Client {
	return &Client{
		logger:    logger,
		config:    DefaultConfig(),
		rpcClient: rpcClient,
	}
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client from the server's
// remote signer settings; nil uses DefaultConfig.
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if rsc != nil {
		if rsc.Url != "" {
			cfg.BaseURL = rsc.Url
		}
		cfg.CACert = rsc.CACert
		cfg.Cert = rsc.Cert
		cfg.Key = rsc.Key
	}
	return NewClient(cfg, logger)
}

func newHttpClient(cfg *Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.CACert == "" && cfg.Cert == "" {
		return httpClient, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.Cert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return httpClient, nil
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) PersonalSign(ctx context.Context, account string, data string) (string, error) {
	var signature string
	if err := c.call(ctx, &signature, "personal_sign", data, account); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *Client) EthSign(ctx context.Context, account string, data string) (string, error) {
	var signature string
	if err := c.call(ctx, &signature, "eth_sign", account, data); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *Client) EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error) {
	var signature string
	if err := c.call(ctx, &signature, "eth_signTypedData_v4", account, typedData); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *Client) Close() {
	c.rpcClient.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	c.logger.Debug("Calling remote signer", zap.String("method", method))
	if err := c.rpcClient.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

// IsUserRejected reports whether err carries the wallet's user-rejected code
func IsUserRejected(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == UserRejectedCode
	}
	return false
}
