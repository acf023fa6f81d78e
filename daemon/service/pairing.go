package service

import (
	"sync"
	"time"

	"github.com/airdock-app/airdock/internal/crypto"
)

// pairCodeTTL is how long a generated pair code remains valid for an inbound handshake.
const pairCodeTTL = 120 * time.Second

// PairingCode is returned by GeneratePairingCode.
type PairingCode struct {
	Code      string
	ExpiresAt time.Time
}

// pairCodeCell is the lock-protected singleton option cell described in spec.md §5.
type pairCodeCell struct {
	mu        sync.Mutex
	code      string
	expiresAt time.Time
	now       func() time.Time
}

func newPairCodeCell(now func() time.Time) *pairCodeCell {
	return &pairCodeCell{now: now}
}

func (c *pairCodeCell) generate() (PairingCode, error) {
	code, err := crypto.RandomPairCode()
	if err != nil {
		return PairingCode{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	c.expiresAt = c.now().Add(pairCodeTTL)
	return PairingCode{Code: code, ExpiresAt: c.expiresAt}, nil
}

// live returns the current code and whether it has expired, matching handshake.ServerConfig's
// LivePairCode shape.
func (c *pairCodeCell) live() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code == "" {
		return "", true
	}
	return c.code, c.now().After(c.expiresAt)
}

// GeneratePairingCode issues a new 8-digit pair code valid for pairCodeTTL, replacing any
// previous one.
func (s *Service) GeneratePairingCode() (PairingCode, error) {
	return s.pairCode.generate()
}
