package policy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager holds the last successfully validated Policy snapshot and
// reloads it at tick boundaries. A failed Load leaves the previous
// snapshot in force, per spec.md §4.3.
type Manager struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	current *Policy
}

// NewManager returns a Manager that will load path on the first Reload.
func NewManager(path string, log *zap.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Reload attempts to load a fresh snapshot. On success it becomes Current;
// on failure the previous snapshot (if any) remains in force and the error
// is returned for the caller to log/surface.
func (m *Manager) Reload() error {
	p, err := Load(m.path)
	if err != nil {
		m.mu.RLock()
		hasPrevious := m.current != nil
		m.mu.RUnlock()
		if hasPrevious {
			m.log.Warn("policy reload failed, keeping previous snapshot", zap.Error(err))
		} else {
			m.log.Error("initial policy load failed", zap.Error(err))
		}
		return err
	}
	m.mu.Lock()
	m.current = p
	m.mu.Unlock()
	for _, w := range p.Warnings {
		m.log.Warn("policy warning", zap.String("detail", w))
	}
	return nil
}

// Current returns the last good snapshot, or an error if none has ever
// loaded successfully.
func (m *Manager) Current() (*Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, fmt.Errorf("policy: no snapshot loaded yet")
	}
	return m.current, nil
}
