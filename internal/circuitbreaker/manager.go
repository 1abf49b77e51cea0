package circuitbreaker

import (
	"sort"
	"sync"

	"mediation-router/internal/common/logging"
)

// Manager keeps one breaker per name, created on first use with a shared config
type Manager struct {
	config   Config
	logger   logging.Logger
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager creates a manager whose breakers use config
func NewManager(config Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		config:   config,
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "circuitbreaker"}),
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate returns the breaker for name, creating it if needed
func (m *Manager) GetOrCreate(name string) *Breaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}
	breaker = New(name, m.config, m.logger)
	m.breakers[name] = breaker
	return breaker
}

// Get retrieves an existing breaker by name
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	breaker, exists := m.breakers[name]
	return breaker, exists
}

// Execute runs fn through the breaker for name
func (m *Manager) Execute(name string, fn func() error) error {
	return m.GetOrCreate(name).Execute(fn)
}

// Remove drops the breaker for name
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.breakers[name]; exists {
		delete(m.breakers, name)
		return true
	}
	return false
}

// AllStats returns statistics for every breaker, sorted by name
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	stats := make([]Stats, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		stats = append(stats, breaker.Stats())
	}
	m.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
