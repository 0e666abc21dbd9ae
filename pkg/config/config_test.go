package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *SigningServerConfig {
	return &SigningServerConfig{
		DomainName: "eigenx",
		Backend:    SignerBackendLocal,
	}
}

func Test_SigningServerConfig(t *testing.T) {
	t.Run("Should fill defaults", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())

		assert.Equal(t, DefaultPort, cfg.Port)
		assert.Equal(t, ChainId_EthereumMainnet, cfg.ChainID)
		assert.Equal(t, ChainName_EthereumMainnet, cfg.ChainName)
		assert.Equal(t, types.DefaultDomainVersion, cfg.DomainVersion)
		assert.Equal(t, 3*time.Second, cfg.ErrorDisplayDuration)
		assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
		assert.Equal(t, DefaultRateBurst, cfg.RateBurst)
	})

	t.Run("Should build the domain", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChainID = ChainId_EthereumSepolia
		require.NoError(t, cfg.Validate())

		assert.Equal(t, types.DomainDescriptor{Name: "eigenx", Version: "0.1.0", ChainId: 11155111}, cfg.Domain())
		assert.Equal(t, ChainName_EthereumSepolia, cfg.ChainName)
	})

	t.Run("Should accept chains without a well-known name", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChainID = 8453
		require.NoError(t, cfg.Validate())
		assert.Equal(t, ChainName_Unknown, cfg.ChainName)
	})

	tests := []struct {
		name    string
		mutate  func(c *SigningServerConfig)
		errText string
	}{
		{
			name:    "missing domain name",
			mutate:  func(c *SigningServerConfig) { c.DomainName = " " },
			errText: "domainName",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *SigningServerConfig) { c.Backend = "ledger" },
			errText: "backend",
		},
		{
			name:    "short private key",
			mutate:  func(c *SigningServerConfig) { c.PrivateKey = "0x1234" },
			errText: "privateKey",
		},
		{
			name: "short second private key",
			mutate: func(c *SigningServerConfig) {
				c.PrivateKey = "0x" + strings.Repeat("11", 32) + ",0x1234"
			},
			errText: "privateKey[1]",
		},
		{
			name:    "kms without key id",
			mutate:  func(c *SigningServerConfig) { c.Backend = SignerBackendAWSKMS },
			errText: "kmsKeyId",
		},
		{
			name:    "remote without config",
			mutate:  func(c *SigningServerConfig) { c.Backend = SignerBackendRemote },
			errText: "remoteSigner",
		},
		{
			name: "remote without url",
			mutate: func(c *SigningServerConfig) {
				c.Backend = SignerBackendRemote
				c.RemoteSigner = &RemoteSignerConfig{}
			},
			errText: "url",
		},
		{
			name:    "bad account",
			mutate:  func(c *SigningServerConfig) { c.Account = "alice" },
			errText: "account",
		},
		{
			name:    "bad port",
			mutate:  func(c *SigningServerConfig) { c.Port = 70000 },
			errText: "port",
		},
		{
			name:    "negative rate",
			mutate:  func(c *SigningServerConfig) { c.RateLimit = -1 },
			errText: "rateLimit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}

	t.Run("Should report every problem at once", func(t *testing.T) {
		cfg := &SigningServerConfig{Backend: "ledger", Account: "alice"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "domainName")
		assert.Contains(t, err.Error(), "backend")
		assert.Contains(t, err.Error(), "account")
	})
}

func Test_RemoteSignerConfig(t *testing.T) {
	t.Run("Should accept a url alone", func(t *testing.T) {
		rsc := &RemoteSignerConfig{Url: "http://localhost:9000"}
		assert.NoError(t, rsc.Validate())
	})

	t.Run("Should require cert and key together", func(t *testing.T) {
		rsc := &RemoteSignerConfig{Url: "https://signer", Cert: "cert.pem"}
		err := rsc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cert and key")
	})

	t.Run("Should validate the from address", func(t *testing.T) {
		rsc := &RemoteSignerConfig{Url: "https://signer", FromAddress: "0x12"}
		assert.Error(t, rsc.Validate())
	})
}

func Test_GetChainName(t *testing.T) {
	assert.Equal(t, ChainName_EthereumAnvil, GetChainName(ChainId_EthereumAnvil))
	assert.Equal(t, ChainName_Unknown, GetChainName(ChainId(42)))
	assert.Len(t, GetSupportedChainIDs(), 3)
	assert.Contains(t, GetSupportedChainIDsString(), "11155111 (sepolia)")
}
