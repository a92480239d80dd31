// Package cache holds the generic LRU+TTL cache used to memoize derived views
// and a manager that sweeps expired entries in the background.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache defines a generic cache interface.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	logger   *slog.Logger
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a cache to the sweep. Safe to call while the sweep runs.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// Sweep cleans every registered cache once and returns the total removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Cache sweep", "removed", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine started by StartCleanup and waits for it.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
	})
}
