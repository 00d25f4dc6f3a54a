package metrics

import (
	"sync"
)

// Manager holds the in-process stat trackers behind the JSON metrics
// endpoints. Prometheus collectors register themselves separately.
type Manager struct {
	Search *SearchMetrics
	Gating *GatingMetrics
	mu     sync.RWMutex
}

// Global metrics manager instance
var globalManager *Manager
var managerOnce sync.Once

// GetManager returns the global metrics manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			Search: NewSearchMetrics(),
			Gating: NewGatingMetrics(),
		}
	})
	return globalManager
}

// ResetAll resets all metrics
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Search.Reset()
	m.Gating.Reset()
}

// GetAllMetrics returns all metrics as a map
func (m *Manager) GetAllMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"search": m.Search.GetStats(),
		"gating": m.Gating.GetStats(),
	}
}

// GetSearchStats returns only search metrics
func (m *Manager) GetSearchStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Search.GetStats()
}

// GetGatingStats returns only gating metrics
func (m *Manager) GetGatingStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Gating.GetStats()
}
