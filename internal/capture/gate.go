package capture

import "sync"

// Gate separates capture pipelines from exclusive maintenance work.
// Any number of pipelines may hold it shared; a migration holds it
// exclusively, so no pipeline mutates the proof repository while a
// migration runs.
type Gate struct {
	mu sync.RWMutex
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Shared runs fn while holding the gate in shared mode.
func (g *Gate) Shared(fn func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn()
}

// Exclusive runs fn while holding the gate exclusively.
func (g *Gate) Exclusive(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
