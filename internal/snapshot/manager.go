package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"TokenRegistry/internal/logger"
)

const (
	// defaultInterval is the default interval between snapshots.
	defaultInterval = time.Minute
)

// Provider exports registry state.
type Provider interface {
	// Snapshot returns the compressed snapshot of the current state.
	Snapshot() ([]byte, error)

	// Revision changes whenever the state changes.
	Revision() uint64
}

// Manager periodically writes a snapshot of the state to a file.
type Manager struct {
	provider Provider
	path     string
	interval time.Duration

	mu       sync.RWMutex
	current  []byte // compressed snapshot data
	revision uint64 // provider revision of current
	written  bool   // written is set once a snapshot was taken

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a manager writing to path every interval, or every
// defaultInterval when interval is zero.
func NewManager(provider Provider, path string, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Manager{
		provider: provider,
		path:     path,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic snapshot loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop stops the loop and writes a final snapshot if the state changed.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()

	if err := m.Take(); err != nil {
		logger.Error("final snapshot", "error", err)
	}
}

// Latest returns the most recent snapshot and the revision it captured.
// Returns nil if no snapshot has been taken yet.
func (m *Manager) Latest() (data []byte, revision uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.revision
}

func (m *Manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.Take(); err != nil {
				logger.Error("create snapshot", "error", err)
			}
		}
	}
}

// Take writes a snapshot unless the state is unchanged since the last one.
func (m *Manager) Take() error {
	rev := m.provider.Revision()

	m.mu.RLock()
	unchanged := m.written && rev == m.revision
	m.mu.RUnlock()

	if unchanged {
		return nil
	}

	start := time.Now()

	data, err := m.provider.Snapshot()
	if err != nil {
		return fmt.Errorf("export state:\n%w", err)
	}

	if err := writeFile(m.path, data); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = data
	m.revision = rev
	m.written = true
	m.mu.Unlock()

	logger.Debug("snapshot written", "path", m.path, "revision", rev, "size", len(data), logger.Timed(start))

	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file:\n%w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot:\n%w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot:\n%w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot:\n%w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot:\n%w", err)
	}

	return nil
}
