// Package control holds the per-session pause/cancel signal shared by the outgoing and
// incoming pipelines and driven by the session supervisor.
package control

import "sync"

// Signals is the mutex-guarded {paused, canceled} pair a running pipeline polls once per loop
// iteration and a supervisor flips from the outside.
type Signals struct {
	mu       sync.RWMutex
	paused   bool
	canceled bool
}

// New returns a Signals with both flags clear.
func New() *Signals {
	return &Signals{}
}

// Pause sets the paused flag.
func (s *Signals) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume clears the paused flag.
func (s *Signals) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Cancel sets the canceled flag. Canceling is terminal; nothing clears it.
func (s *Signals) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
}

// Paused reports whether the session is currently paused.
func (s *Signals) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Canceled reports whether the session has been canceled.
func (s *Signals) Canceled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canceled
}
