package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"TokenRegistry/internal/registry"
)

// Config holds the daemon configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string `env:"TOKENREGISTRY_DATA" envDefault:"./data"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `env:"TOKENREGISTRY_HTTP_ADDR" envDefault:":8080"`

	// QUICAddress is the QUIC ingress listen address. Empty disables it.
	QUICAddress string `env:"TOKENREGISTRY_QUIC_ADDR" envDefault:":9000"`

	// KeyPath is the path to the Ed25519 node key file.
	KeyPath string `env:"TOKENREGISTRY_KEY"`

	// LogLevel is the minimum log level.
	LogLevel string `env:"TOKENREGISTRY_LOG_LEVEL" envDefault:"info"`

	// ChallengePeriod is how long a challenger must lead before promotion.
	ChallengePeriod time.Duration `env:"TOKENREGISTRY_CHALLENGE_PERIOD" envDefault:"720h"`

	// WarmupPeriod delays withdrawals from locked drawers.
	WarmupPeriod time.Duration `env:"TOKENREGISTRY_WARMUP_PERIOD" envDefault:"168h"`

	// BounceFee is kept from bounced triggers.
	BounceFee uint64 `env:"TOKENREGISTRY_BOUNCE_FEE" envDefault:"10000"`

	// MinSupport is the amount a support must exceed.
	MinSupport uint64 `env:"TOKENREGISTRY_MIN_SUPPORT" envDefault:"10000"`

	// RestorePath is a snapshot file loaded before serving.
	RestorePath string `env:"TOKENREGISTRY_RESTORE"`

	// SnapshotInterval is the interval between state snapshots. Zero disables them.
	SnapshotInterval time.Duration `env:"TOKENREGISTRY_SNAPSHOT_INTERVAL" envDefault:"1m"`

	// PrivateKey is the node's Ed25519 TLS identity.
	PrivateKey ed25519.PrivateKey
}

// parseConfig reads the environment, then lets flags override it.
func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env:\n%w", err)
	}

	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Data directory path")
	fs.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "HTTP API address")
	fs.StringVar(&cfg.QUICAddress, "quic", cfg.QUICAddress, "QUIC ingress address (empty disables)")
	fs.StringVar(&cfg.KeyPath, "key", cfg.KeyPath, "Ed25519 node key path (generates new if missing)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.ChallengePeriod, "challenge-period", cfg.ChallengePeriod, "Challenge period")
	fs.DurationVar(&cfg.WarmupPeriod, "warmup-period", cfg.WarmupPeriod, "Locked drawer warm-up period")
	fs.Uint64Var(&cfg.BounceFee, "bounce-fee", cfg.BounceFee, "Fee kept from bounced triggers")
	fs.Uint64Var(&cfg.MinSupport, "min-support", cfg.MinSupport, "Amount a support must exceed")
	fs.StringVar(&cfg.RestorePath, "restore", cfg.RestorePath, "Snapshot file to restore before serving")
	fs.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "Interval between state snapshots (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks values the flag parser cannot.
func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data path is required")
	}

	if c.HTTPAddress == "" {
		return fmt.Errorf("http address is required")
	}

	if c.ChallengePeriod < time.Second {
		return fmt.Errorf("challenge period must be at least 1s, got %s", c.ChallengePeriod)
	}

	if c.WarmupPeriod < time.Second {
		return fmt.Errorf("warm-up period must be at least 1s, got %s", c.WarmupPeriod)
	}

	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
	}

	return nil
}

// Params returns the engine parameters. Periods are whole seconds.
func (c *Config) Params() registry.Params {
	return registry.Params{
		ChallengePeriod: uint64(c.ChallengePeriod / time.Second),
		WarmupPeriod:    uint64(c.WarmupPeriod / time.Second),
		BounceFee:       c.BounceFee,
		MinSupport:      c.MinSupport,
	}
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
