package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/eigenx-signing-go/internal/aws"
	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/config"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/logger"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/recovery"
)

// Prints the Ethereum identity of a KMS key and checks that a probe
// signature made with it recovers to that address.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	awsCfg, err := aws.LoadAWSConfig(ctx, os.Getenv(config.EnvSigningAWSRegion))
	if err != nil {
		panic(err)
	}

	keyId := os.Getenv(config.EnvSigningKMSKeyID)
	if keyId == "" {
		l.Sugar().Fatalf("%s environment variable is not set", config.EnvSigningKMSKeyID)
	}

	keyGen := awsKms.NewAWSKMSKeyGenerator(awsCfg, awsCfg.Region, "signing", l)

	key, err := keyGen.GetECDSAKeyById(ctx, keyId)
	if err != nil {
		l.Sugar().Fatalw("failed to load ECDSA key", "error", err)
	}

	pubKeyHex, err := key.GetPublicKeyHex()
	if err != nil {
		l.Sugar().Fatalw("failed to get public key hex", "error", err)
	}

	probe := digest.PlainMessageHash([]byte("eigenx signing probe"))
	sig, err := keyGen.SignDigest(ctx, keyId, probe)
	if err != nil {
		l.Sugar().Fatalw("failed to sign probe digest", "error", err)
	}
	outcome, err := recovery.Verify(probe, sig, key.Address)
	if err != nil {
		l.Sugar().Fatalw("failed to recover probe signature", "error", err)
	}

	fmt.Println("=== AWS KMS ECDSA Key Information ===")
	fmt.Printf("Key ID: %s\n", key.KeyId)
	fmt.Printf("Region: %s\n", awsCfg.Region)
	fmt.Printf("Address: %s\n", key.Address.Hex())
	fmt.Printf("Public Key: %s\n", pubKeyHex)
	fmt.Println()
	fmt.Println("=== Probe Signature ===")
	fmt.Printf("Digest: %s\n", probe.Hex())
	fmt.Printf("Signature: 0x%x\n", sig)
	fmt.Printf("Recovered: %s\n", outcome.RecoveredAddress.Hex())
	fmt.Printf("Matches key: %t\n", outcome.Valid)
}
