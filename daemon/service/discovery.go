package service

import (
	"context"
	"net"
	"strconv"

	"github.com/airdock-app/airdock/daemon/discovery"
	"github.com/airdock-app/airdock/daemon/store"
)

// StartDiscovery starts the UDP broadcast and listen loops. Idempotent.
func (s *Service) StartDiscovery() error {
	return s.discoverySvc.Start(context.Background())
}

// StopDiscovery aborts both discovery loops. Idempotent.
func (s *Service) StopDiscovery() {
	s.discoverySvc.Stop()
}

// ListPeers merges the persisted peer view with the in-memory online registry.
func (s *Service) ListPeers() ([]store.Peer, error) {
	stored, err := s.st.ListStoredPeers()
	if err != nil {
		return nil, err
	}

	online := s.registry.Snapshot()
	onlinePeers := make([]store.Peer, 0, len(online))
	for _, e := range online {
		onlinePeers = append(onlinePeers, store.Peer{
			DeviceID:        e.DeviceID,
			DisplayName:     e.DisplayName,
			Address:         e.Address,
			ListenPort:      e.ListenPort,
			LastSeenAt:      e.LastSeenAt,
			PairingRequired: e.PairingRequired,
		})
	}
	return store.MergeOnlinePeers(stored, onlinePeers), nil
}

func (s *Service) findOnlinePeer(deviceID string) (discovery.PeerEntry, bool) {
	for _, e := range s.registry.Snapshot() {
		if e.DeviceID == deviceID {
			return e, true
		}
	}
	return discovery.PeerEntry{}, false
}

func (s *Service) peerDialAddress(deviceID string) (string, bool) {
	entry, ok := s.findOnlinePeer(deviceID)
	if !ok {
		return "", false
	}
	return net.JoinHostPort(entry.Address, strconv.Itoa(entry.ListenPort)), true
}
