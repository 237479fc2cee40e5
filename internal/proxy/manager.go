// Package proxy rotates egress proxies and excludes failing ones for a
// cooldown window.
package proxy

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds proxy pool configuration.
type Config struct {
	// Enabled selects proxied egress; when false Next returns "" (direct).
	Enabled bool
	// Proxies is the ordered pool of proxy endpoint URLs.
	Proxies []string
	// Cooldown is how long a failed proxy stays excluded from rotation.
	Cooldown time.Duration
}

// Manager hands out proxies round-robin, skipping recently failed ones.
type Manager struct {
	mu       sync.Mutex
	enabled  bool
	pool     []string
	cursor   int
	excluded map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Manager from cfg.
func New(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := make([]string, len(cfg.Proxies))
	copy(pool, cfg.Proxies)
	return &Manager{
		enabled:  cfg.Enabled,
		pool:     pool,
		excluded: make(map[string]time.Time),
		cooldown: cfg.Cooldown,
		now:      time.Now,
		logger:   logger,
	}
}

// Next returns the next healthy proxy in round-robin order. When every
// proxy is excluded it falls back to the oldest-excluded one instead of
// starving the pool. An empty string means direct connection.
func (m *Manager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || len(m.pool) == 0 {
		return ""
	}

	m.expireLocked()

	for range m.pool {
		p := m.pool[m.cursor]
		m.cursor = (m.cursor + 1) % len(m.pool)
		if _, bad := m.excluded[p]; !bad {
			return p
		}
	}

	// Whole pool is cooling down; reuse the one that failed longest ago.
	oldest := ""
	var oldestAt time.Time
	for p, at := range m.excluded {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = p, at
		}
	}
	return oldest
}

// MarkFailed excludes a proxy from rotation until the cooldown elapses.
func (m *Manager) MarkFailed(p string) {
	if p == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded[p] = m.now()
	m.logger.Warn("proxy marked failed", zap.String("proxy", p))
}

// Excluded reports how many proxies are currently cooling down.
func (m *Manager) Excluded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return len(m.excluded)
}

func (m *Manager) expireLocked() {
	now := m.now()
	for p, at := range m.excluded {
		if now.Sub(at) >= m.cooldown {
			delete(m.excluded, p)
		}
	}
}
