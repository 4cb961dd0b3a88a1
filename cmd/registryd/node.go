package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"TokenRegistry/internal/api"
	"TokenRegistry/internal/host"
	"TokenRegistry/internal/logger"
	"TokenRegistry/internal/network"
	"TokenRegistry/internal/registry"
	"TokenRegistry/internal/snapshot"
	"TokenRegistry/internal/storage"
)

// Node is a running registry daemon.
type Node struct {
	cfg       *Config
	storage   *storage.Storage
	host      *host.Executor
	api       *api.Server
	network   *network.Server   // network is nil when QUIC is disabled
	snapshots *snapshot.Manager // snapshots is nil when disabled
}

// NewNode creates and initializes a node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initHost(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initNetwork(); err != nil {
		n.Close()
		return nil, err
	}

	n.api = api.New(cfg.HTTPAddress, n.host)

	if cfg.SnapshotInterval > 0 {
		path := filepath.Join(cfg.DataPath, "state.snap")
		n.snapshots = snapshot.NewManager(n.host, path, cfg.SnapshotInterval)
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	dbPath := filepath.Join(n.cfg.DataPath, "db")

	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initHost creates the executor and restores a snapshot if configured.
func (n *Node) initHost() error {
	x, err := host.New(n.storage, registry.New(n.cfg.Params()))
	if err != nil {
		return fmt.Errorf("init host:\n%w", err)
	}

	n.host = x

	if n.cfg.RestorePath == "" {
		return nil
	}

	data, err := os.ReadFile(n.cfg.RestorePath)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	if err := x.Restore(data); err != nil {
		return fmt.Errorf("restore snapshot:\n%w", err)
	}

	return nil
}

// initNetwork initializes the QUIC ingress.
func (n *Node) initNetwork() error {
	if n.cfg.QUICAddress == "" {
		return nil
	}

	srv, err := network.NewServer(network.Config{
		PrivateKey: n.cfg.PrivateKey,
		ListenAddr: n.cfg.QUICAddress,
	}, n.host)
	if err != nil {
		return fmt.Errorf("init network:\n%w", err)
	}

	n.network = srv

	return nil
}

// Run starts serving and blocks until a shutdown signal.
func (n *Node) Run() error {
	if n.network != nil {
		if err := n.network.Start(); err != nil {
			n.Close()
			return fmt.Errorf("start network:\n%w", err)
		}
	}

	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	if n.snapshots != nil {
		n.snapshots.Start()
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String(), "stats", n.host.Stats())

	return n.Close()
}

// Close shuts down all node components. Ingress stops before storage.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.network != nil {
		n.network.Close()
	}

	if n.snapshots != nil {
		n.snapshots.Stop()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
