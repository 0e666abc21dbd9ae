package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/errorPresenter"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/logger"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/metrics"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/server"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := loadDotEnv(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	app := &cli.App{
		Name:  "signing-server",
		Usage: "EigenX signing request server",
		Description: `Runs a signing session over HTTP.

Clients submit personal messages or EIP-712 typed data. The configured signer
backend signs the digest, and the server verifies that the signature recovers
to the active account before reporting it as accepted.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvSigningPort},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Usage:   fmt.Sprintf("Chain ID typed data is bound to: %s", config.GetSupportedChainIDsString()),
				Value:   uint64(config.ChainId_EthereumMainnet),
				EnvVars: []string{config.EnvSigningChainID},
			},
			&cli.StringFlag{
				Name:     "domain-name",
				Usage:    "EIP-712 domain name",
				EnvVars:  []string{config.EnvSigningDomainName},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "domain-version",
				Usage:   "EIP-712 domain version",
				EnvVars: []string{config.EnvSigningDomainVersion},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "Signer backend: local, aws-kms or remote",
				Value:   config.SignerBackendLocal.String(),
				EnvVars: []string{config.EnvSigningBackend},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Comma separated hex private keys for the local backend. A fresh key is generated when empty",
				EnvVars: []string{config.EnvSigningPrivateKey},
			},
			&cli.StringFlag{
				Name:    "kms-key-id",
				Usage:   "AWS KMS key id for the aws-kms backend",
				EnvVars: []string{config.EnvSigningKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override for the aws-kms backend",
				EnvVars: []string{config.EnvSigningAWSRegion},
			},
			&cli.StringFlag{
				Name:    "remote-signer-url",
				Usage:   "JSON-RPC wallet URL for the remote backend",
				EnvVars: []string{config.EnvSigningRemoteURL},
			},
			&cli.StringFlag{
				Name:    "remote-signer-ca-cert",
				Usage:   "CA certificate (PEM) for the remote wallet",
				EnvVars: []string{config.EnvSigningRemoteCACert},
			},
			&cli.StringFlag{
				Name:    "remote-signer-cert",
				Usage:   "Client certificate (PEM) for the remote wallet",
				EnvVars: []string{config.EnvSigningRemoteCert},
			},
			&cli.StringFlag{
				Name:    "remote-signer-key",
				Usage:   "Client key (PEM) for the remote wallet",
				EnvVars: []string{config.EnvSigningRemoteKey},
			},
			&cli.StringFlag{
				Name:    "account",
				Usage:   "Account signatures must come from. Defaults to the first account of the signer",
				EnvVars: []string{config.EnvSigningAccount},
			},
			&cli.DurationFlag{
				Name:    "error-display-duration",
				Usage:   "How long a failure stays visible",
				Value:   config.DefaultErrorDisplayDuration,
				EnvVars: []string{config.EnvSigningErrorDisplayDuration},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Accepted submissions per second",
				Value:   config.DefaultRateLimit,
				EnvVars: []string{config.EnvSigningRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Submission burst size",
				Value:   config.DefaultRateBurst,
				EnvVars: []string{config.EnvSigningRateBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvSigningDebug},
			},
		},
		Action: runSigningServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// loadDotEnv seeds the environment from SIGNING_ENV_FILE, or ./.env when present
func loadDotEnv() error {
	if path := os.Getenv(config.EnvSigningEnvFile); path != "" {
		return godotenv.Load(path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func runSigningServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseSigningConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l.Sugar().Infow("Using chain", "name", cfg.ChainName, "chain_id", cfg.ChainID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBackend(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize %s signer: %w", cfg.Backend, err)
	}
	defer b.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(registry)

	presenter := errorPresenter.NewErrorPresenter(&errorPresenter.ErrorPresenterConfig{
		DisplayDuration: cfg.ErrorDisplayDuration,
	}, nil, l)
	presenter.OnChange(func(p *errorPresenter.PresentedError) {
		if p != nil {
			l.Sugar().Infow("Presenting error", "kind", p.Reason.Kind, "message", p.Reason.Error())
		}
	})

	sess := session.NewSession(b.signer, b.accounts, presenter, m, l)
	defer sess.Close()

	srv := server.NewServer(&server.ServerConfig{
		Port:      cfg.Port,
		Domain:    cfg.Domain(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, sess, m, registry, l)

	if cfg.Debug {
		l.Sugar().Infow("Signing Server Configuration",
			"port", cfg.Port,
			"chain", cfg.ChainName,
			"domain", cfg.DomainName,
			"domain_version", cfg.DomainVersion,
			"backend", cfg.Backend,
			"error_display_duration", cfg.ErrorDisplayDuration,
			"rate_limit", cfg.RateLimit,
			"rate_burst", cfg.RateBurst)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if account, err := sess.ActiveAccount(ctx); err != nil {
		l.Sugar().Warnw("No active account yet", "error", err)
	} else {
		l.Sugar().Infow("Active account", "address", account.Hex())
	}

	l.Sugar().Infow("Signing Server running", "port", cfg.Port, "backend", cfg.Backend)
	l.Sugar().Infow("Available endpoints",
		"sign", "POST /sign/message, /sign/typed-data, /sign/mail",
		"status", "GET /status, GET /ws",
		"errors", "POST /error/clear",
		"metrics", "GET /metrics")
	l.Sugar().Info("Press Ctrl+C to stop")

	<-ctx.Done()
	l.Sugar().Info("Shutting down")
	return srv.Stop()
}

func parseSigningConfig(c *cli.Context) *config.SigningServerConfig {
	cfg := &config.SigningServerConfig{
		Port:                 c.Int("port"),
		ChainID:              config.ChainId(c.Uint64("chain-id")),
		DomainName:           c.String("domain-name"),
		DomainVersion:        c.String("domain-version"),
		Backend:              config.SignerBackend(c.String("backend")),
		PrivateKey:           c.String("private-key"),
		KMSKeyId:             c.String("kms-key-id"),
		AWSRegion:            c.String("aws-region"),
		Account:              c.String("account"),
		ErrorDisplayDuration: c.Duration("error-display-duration"),
		RateLimit:            c.Float64("rate-limit"),
		RateBurst:            c.Int("rate-burst"),
		Debug:                c.Bool("verbose"),
	}
	if url := c.String("remote-signer-url"); url != "" || cfg.Backend == config.SignerBackendRemote {
		cfg.RemoteSigner = &config.RemoteSignerConfig{
			Url:         url,
			CACert:      c.String("remote-signer-ca-cert"),
			Cert:        c.String("remote-signer-cert"),
			Key:         c.String("remote-signer-key"),
			FromAddress: cfg.Account,
		}
	}
	return cfg
}
