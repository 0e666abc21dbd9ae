package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	requestFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "message",
			Usage: "Personal message to sign (UTF-8)",
		},
		&cli.StringFlag{
			Name:  "message-hex",
			Usage: "Personal message to sign (0x-prefixed hex)",
		},
		&cli.StringFlag{
			Name:  "typed-file",
			Usage: "JSON file with {domain, schema, value} typed data",
		},
		&cli.StringFlag{
			Name:  "mail",
			Usage: "Sign this text as a typed Message using the mail schema",
		},
		&cli.StringFlag{
			Name:  "mail-from",
			Usage: "Sender wallet for --mail. Defaults to the signing account",
		},
		&cli.StringFlag{
			Name:  "mail-to",
			Usage: "Recipient wallet for --mail",
		},
		&cli.StringFlag{
			Name:    "domain-name",
			Usage:   "EIP-712 domain name for --mail",
			Value:   "eigenx",
			EnvVars: []string{config.EnvSigningDomainName},
		},
		&cli.StringFlag{
			Name:    "domain-version",
			Usage:   "EIP-712 domain version for --mail",
			EnvVars: []string{config.EnvSigningDomainVersion},
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Usage:   "Chain ID for --mail",
			Value:   uint64(config.ChainId_EthereumMainnet),
			EnvVars: []string{config.EnvSigningChainID},
		},
	}

	serverFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Signing server base URL",
			Value:   fmt.Sprintf("http://localhost:%d", config.DefaultPort),
			EnvVars: []string{config.EnvSigningServerURL},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "HTTP timeout, including the wait for the signer",
			Value: config.DefaultSignTimeout,
		},
	}

	app := &cli.App{
		Name:  "signing-client",
		Usage: "EigenX signing tools",
		Description: `Tooling for signing requests.

This client can:
- Compute the personal message or EIP-712 digest of a request
- Sign a request with a local key or a remote JSON-RPC wallet and verify the result
- Recover the signer of a digest and check it against an expected address
- Submit requests to a running signing server and read its status`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvSigningDebug},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "digest",
				Usage: "Print the digest a wallet signs for a request",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "encode-type",
						Usage: "Also print the encodeType string and type hash of the primary type",
					},
				}, requestFlags...),
				Action: digestCommand,
			},
			{
				Name:  "sign",
				Usage: "Sign a request and verify the signature",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "private-key",
						Usage:   "Hex private key to sign with",
						EnvVars: []string{config.EnvSigningPrivateKey},
					},
					&cli.StringFlag{
						Name:    "remote-signer-url",
						Usage:   "Sign with this JSON-RPC wallet instead of a local key",
						EnvVars: []string{config.EnvSigningRemoteURL},
					},
					&cli.StringFlag{
						Name:    "account",
						Usage:   "Account to sign with on the remote wallet",
						EnvVars: []string{config.EnvSigningAccount},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the signer",
						Value: config.DefaultSignTimeout,
					},
				}, requestFlags...),
				Action: signCommand,
			},
			{
				Name:  "recover",
				Usage: "Recover the address that signed a digest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "digest",
						Usage:    "32-byte digest (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "signature",
						Usage:    "65-byte signature r || s || v (hex)",
						Required: true,
					},
				},
				Action: recoverCommand,
			},
			{
				Name:  "verify",
				Usage: "Check that a signature over a request or digest was made by an address",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "digest",
						Usage: "32-byte digest (hex). Otherwise computed from the request flags",
					},
					&cli.StringFlag{
						Name:     "signature",
						Usage:    "65-byte signature r || s || v (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Expected signer address",
						Required: true,
					},
				}, requestFlags...),
				Action: verifyCommand,
			},
			{
				Name:  "submit",
				Usage: "Submit a request to a signing server",
				Flags: append(append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Return once the request is accepted instead of waiting for the outcome",
					},
				}, serverFlags...), requestFlags...),
				Action: submitCommand,
			},
			{
				Name:  "status",
				Usage: "Print the signing server session state",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "clear-error",
						Usage: "Dismiss the presented error first",
					},
				}, serverFlags...),
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
