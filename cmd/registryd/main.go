package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"TokenRegistry/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, err := parseConfig(flag.NewFlagSet("registryd", flag.ExitOnError), args)
	if err != nil {
		return fmt.Errorf("parse config:\n%w", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel))

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)
	params := cfg.Params()

	logger.Info("starting token registry",
		"pubkey", hex.EncodeToString(pubKey),
		"http", cfg.HTTPAddress,
		"quic", cfg.QUICAddress,
		"data", cfg.DataPath,
	)

	logger.Info("registry parameters",
		"challenge_period", cfg.ChallengePeriod,
		"warmup_period", cfg.WarmupPeriod,
		"bounce_fee", params.BounceFee,
		"min_support", params.MinSupport,
	)
}
