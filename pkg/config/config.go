package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for signing server configuration
const (
	EnvSigningPort                 = "SIGNING_PORT"
	EnvSigningChainID              = "SIGNING_CHAIN_ID"
	EnvSigningDomainName           = "SIGNING_DOMAIN_NAME"
	EnvSigningDomainVersion        = "SIGNING_DOMAIN_VERSION"
	EnvSigningBackend              = "SIGNING_BACKEND"
	EnvSigningPrivateKey           = "SIGNING_PRIVATE_KEY"
	EnvSigningKMSKeyID             = "SIGNING_KMS_KEY_ID"
	EnvSigningAWSRegion            = "SIGNING_AWS_REGION"
	EnvSigningRemoteURL            = "SIGNING_REMOTE_SIGNER_URL"
	EnvSigningRemoteCACert         = "SIGNING_REMOTE_SIGNER_CA_CERT"
	EnvSigningRemoteCert           = "SIGNING_REMOTE_SIGNER_CERT"
	EnvSigningRemoteKey            = "SIGNING_REMOTE_SIGNER_KEY"
	EnvSigningAccount              = "SIGNING_ACCOUNT"
	EnvSigningErrorDisplayDuration = "SIGNING_ERROR_DISPLAY_DURATION"
	EnvSigningRateLimit            = "SIGNING_RATE_LIMIT"
	EnvSigningRateBurst            = "SIGNING_RATE_BURST"
	EnvSigningDebug                = "SIGNING_DEBUG"
	EnvSigningEnvFile              = "SIGNING_ENV_FILE"
	EnvSigningServerURL            = "SIGNING_SERVER_URL"
)

type SignerBackend string

func (s SignerBackend) String() string {
	return string(s)
}

const (
	SignerBackendLocal  SignerBackend = "local"
	SignerBackendAWSKMS SignerBackend = "aws-kms"
	SignerBackendRemote SignerBackend = "remote"
)

var SupportedSignerBackends = []SignerBackend{
	SignerBackendLocal,
	SignerBackendAWSKMS,
	SignerBackendRemote,
}

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
	ChainName_Unknown         ChainName = "unknown"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// GetChainName returns the well-known name of chainId, or ChainName_Unknown
func GetChainName(chainId ChainId) ChainName {
	if name, ok := ChainIdToName[chainId]; ok {
		return name
	}
	return ChainName_Unknown
}

// GetSupportedChainIDs returns all chain IDs with a well-known name
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

const (
	DefaultPort                 = 8000
	DefaultErrorDisplayDuration = 3 * time.Second
	DefaultRateLimit            = 5.0
	DefaultRateBurst            = 10
	DefaultSignTimeout          = 2 * time.Minute
)

// SigningServerConfig represents the complete configuration for a signing server
type SigningServerConfig struct {
	Port int `json:"port"`

	// Domain the typed-data requests are bound to
	ChainID       ChainId   `json:"chain_id"`
	ChainName     ChainName `json:"chain_name"`
	DomainName    string    `json:"domain_name"`
	DomainVersion string    `json:"domain_version"`

	// Signer backend
	Backend      SignerBackend       `json:"backend"`
	PrivateKey   string              `json:"-"`
	KMSKeyId     string              `json:"kms_key_id"`
	AWSRegion    string              `json:"aws_region"`
	RemoteSigner *RemoteSignerConfig `json:"remote_signer,omitempty"`

	// Account the session expects signatures from. Empty means the first
	// account the signer reports.
	Account string `json:"account"`

	ErrorDisplayDuration time.Duration `json:"error_display_duration"`

	// Submissions per second accepted over HTTP
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	Debug bool `json:"debug"`
}

// Validate fills defaults and validates the signing server configuration
func (c *SigningServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	if c.ChainID == 0 {
		c.ChainID = ChainId(types.DefaultChainId)
	}
	c.ChainName = GetChainName(c.ChainID)

	if strings.TrimSpace(c.DomainName) == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("domainName"), "domainName is required"))
	}
	if c.DomainVersion == "" {
		c.DomainVersion = types.DefaultDomainVersion
	}

	switch c.Backend {
	case SignerBackendLocal:
		for i, pk := range c.PrivateKeys() {
			key := strings.TrimPrefix(pk, "0x")
			if len(key) != 64 {
				allErrors = append(allErrors, field.Invalid(field.NewPath("privateKey").Index(i), "<redacted>",
					fmt.Sprintf("private key must be 32 bytes (64 hex chars), got %d chars", len(key))))
			}
		}
	case SignerBackendAWSKMS:
		if c.KMSKeyId == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("kmsKeyId"), "kmsKeyId is required for the aws-kms backend"))
		}
	case SignerBackendRemote:
		if c.RemoteSigner == nil {
			allErrors = append(allErrors, field.Required(field.NewPath("remoteSigner"), "remoteSigner is required for the remote backend"))
		} else if err := c.RemoteSigner.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("remoteSigner"), c.RemoteSigner.Url, err.Error()))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("backend"), c.Backend, SupportedSignerBackends))
	}

	if c.Account != "" && !common.IsHexAddress(c.Account) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("account"), c.Account, "account must be a hex address"))
	}

	if c.ErrorDisplayDuration == 0 {
		c.ErrorDisplayDuration = DefaultErrorDisplayDuration
	}
	if c.ErrorDisplayDuration < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("errorDisplayDuration"), c.ErrorDisplayDuration.String(), "must be positive"))
	}

	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must be positive"))
	}
	if c.RateBurst < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be positive"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Domain returns the EIP-712 domain typed-data requests are bound to
func (c *SigningServerConfig) Domain() types.DomainDescriptor {
	return types.DomainDescriptor{
		Name:    c.DomainName,
		Version: c.DomainVersion,
		ChainId: uint64(c.ChainID),
	}
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required"))
	}
	if rsc.FromAddress != "" && !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "fromAddress must be a hex address"))
	}
	if (rsc.Cert == "") != (rsc.Key == "") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("cert"), rsc.Cert, "cert and key must be provided together"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// PrivateKeys splits the comma separated local backend keys
func (c *SigningServerConfig) PrivateKeys() []string {
	var keys []string
	for _, k := range strings.Split(c.PrivateKey, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
