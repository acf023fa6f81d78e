package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Peer trust levels.
const (
	TrustUnknown = "unknown"
	TrustTrusted = "trusted"
)

// Peer mirrors the transfer_peers row, merged at read time with the in-memory online view (see
// MergeOnlinePeers).
type Peer struct {
	DeviceID        string
	DisplayName     string
	Address         string
	ListenPort      int
	LastSeenAt      int64
	PairedAt        *int64
	TrustLevel      string
	FailedAttempts  int
	BlockedUntil    *int64
	PairingRequired bool
	Online          bool
}

// UpsertPeer inserts or refreshes a peer's discovery-visible fields (display name, last-seen,
// trust, failure state). Address and port are in-memory only and not persisted.
func (s *Store) UpsertPeer(p Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO transfer_peers (device_id, display_name, last_seen_at, paired_at, trust_level, failed_attempts, blocked_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   last_seen_at = excluded.last_seen_at,
		   trust_level = excluded.trust_level,
		   failed_attempts = excluded.failed_attempts,
		   blocked_until = excluded.blocked_until`,
		p.DeviceID, p.DisplayName, p.LastSeenAt, nullInt64(p.PairedAt), p.TrustLevel,
		p.FailedAttempts, nullInt64(p.BlockedUntil),
	)
	if err != nil {
		return fmt.Errorf("store: upsert peer: %w", err)
	}
	return nil
}

// MarkPeerPairSuccess resets failure state and upgrades a peer to trusted.
func (s *Store) MarkPeerPairSuccess(deviceID string, pairedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE transfer_peers
		 SET paired_at = ?, failed_attempts = 0, blocked_until = NULL, trust_level = ?
		 WHERE device_id = ?`,
		pairedAt, TrustTrusted, deviceID,
	)
	if err != nil {
		return fmt.Errorf("store: mark peer pair success: %w", err)
	}
	return nil
}

// MarkPeerPairFailure increments the peer's failure counter and sets blockedUntil, creating the
// peer row if it does not already exist.
func (s *Store) MarkPeerPairFailure(deviceID string, blockedUntil *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO transfer_peers (device_id, display_name, last_seen_at, paired_at, trust_level, failed_attempts, blocked_until)
		 VALUES (?, ?, 0, NULL, ?, 1, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   failed_attempts = transfer_peers.failed_attempts + 1,
		   blocked_until = excluded.blocked_until`,
		deviceID, deviceID, TrustUnknown, nullInt64(blockedUntil),
	)
	if err != nil {
		return fmt.Errorf("store: mark peer pair failure: %w", err)
	}
	return nil
}

// ListStoredPeers returns every persisted peer, newest-seen first. Address and port are left
// zero-valued; they belong to the in-memory discovery view.
func (s *Store) ListStoredPeers() ([]Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT device_id, display_name, last_seen_at, paired_at, trust_level, failed_attempts, blocked_until
		 FROM transfer_peers
		 ORDER BY last_seen_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list stored peers: %w", err)
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var p Peer
		var pairedAt, blockedUntil sql.NullInt64
		if err := rows.Scan(&p.DeviceID, &p.DisplayName, &p.LastSeenAt, &pairedAt, &p.TrustLevel, &p.FailedAttempts, &blockedUntil); err != nil {
			return nil, fmt.Errorf("store: scan peer row: %w", err)
		}
		p.PairedAt = ptrInt64(pairedAt)
		p.BlockedUntil = ptrInt64(blockedUntil)
		p.PairingRequired = true
		peers = append(peers, p)
	}
	return peers, nil
}

// MergeOnlinePeers combines the persisted view with the in-memory online registry: online
// overrides display name/address/port/last-seen, persisted supplies paired-at/failure state.
func MergeOnlinePeers(stored []Peer, online []Peer) []Peer {
	byID := make(map[string]Peer, len(stored)+len(online))
	for _, p := range stored {
		byID[p.DeviceID] = p
	}

	for _, p := range online {
		next, exists := byID[p.DeviceID]
		if !exists {
			next = Peer{
				DeviceID:   p.DeviceID,
				TrustLevel: TrustUnknown,
			}
		}
		next.DisplayName = p.DisplayName
		next.Address = p.Address
		next.ListenPort = p.ListenPort
		next.LastSeenAt = p.LastSeenAt
		next.PairingRequired = p.PairingRequired
		next.Online = true
		byID[p.DeviceID] = next
	}

	merged := make([]Peer, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Online != merged[j].Online {
			return merged[i].Online
		}
		return merged[i].LastSeenAt > merged[j].LastSeenAt
	})
	return merged
}
