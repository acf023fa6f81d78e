// Package service implements the facade the outer API (CLI, tray app, mobile bridge) drives:
// a single long-lived object wiring persistence, discovery, pairing, and the transfer pipelines
// behind the session-lifecycle operations described in spec.md.
package service

import (
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airdock-app/airdock/daemon/config"
	"github.com/airdock-app/airdock/daemon/discovery"
	"github.com/airdock-app/airdock/daemon/store"
	"github.com/airdock-app/airdock/daemon/supervisor"
	"github.com/airdock-app/airdock/internal/observability"
)

// appVersion is announced over discovery and during handshake negotiation.
const appVersion = "1.0.0"

// Service is the singleton facade: one accept loop, one discovery service, one supervisor,
// one settings cell, shared by every session this daemon process drives.
type Service struct {
	cfg *config.Config
	st  *store.Store

	identity identity

	settingsMu sync.RWMutex
	settings   config.Settings

	registry     *discovery.Registry
	checkpoint   *discovery.Checkpoint
	discoverySvc *discovery.Service

	sup      *supervisor.Supervisor
	events   *EventPublisher
	pairCode *pairCodeCell

	listener   net.Listener
	acceptDone chan struct{}

	log     *observability.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// New constructs the facade: it loads or creates the local identity, loads persisted settings,
// wires the discovery registry and checkpoint, starts the supervisor's cleanup sweep, and opens
// the singleton TCP accept loop on cfg.ListenAddress. Discovery itself is started separately via
// StartDiscovery so the caller can gate it on setting.discovery_enabled. logger may be nil, in
// which case a default stdout logger is used.
func New(cfg *config.Config, st *store.Store, logger *observability.Logger) (*Service, error) {
	if logger == nil {
		logger = observability.NewLogger("airdockd", appVersion, nil)
	}
	id, err := loadOrCreateIdentity(cfg.DataDirectory)
	if err != nil {
		return nil, err
	}

	settings, err := st.LoadSettings(cfg.DownloadsDir)
	if err != nil {
		return nil, err
	}

	checkpointPath := filepath.Join(cfg.DataDirectory, "discovery_checkpoint.db")
	checkpoint, err := discovery.OpenCheckpoint(checkpointPath)
	if err != nil {
		return nil, err
	}

	now := time.Now
	registry := discovery.NewRegistry()

	_, portStr, err := net.SplitHostPort(cfg.ListenAddress)
	if err != nil {
		checkpoint.Close()
		return nil, err
	}
	listenPort, err := strconv.Atoi(portStr)
	if err != nil {
		checkpoint.Close()
		return nil, err
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.DiscoveryPort}
	self := discovery.Self{
		DeviceID: id.DeviceID, DisplayName: id.DisplayName, ListenPort: listenPort,
		AppVersion: appVersion, PairingRequired: settings.PairingRequired,
		Capabilities: []string{"codec-bin-v2", "ack-batch-v2", "pipeline-v2"},
	}
	discoverySvc := discovery.New(self, broadcastAddr, cfg.DiscoveryPort, registry, checkpoint, func() int64 {
		return now().UnixMilli()
	})

	sup := supervisor.New(st, now)
	sup.StartCleanupSweep(time.Hour)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		checkpoint.Close()
		return nil, err
	}

	s := &Service{
		cfg: cfg, st: st, identity: id, settings: settings,
		registry: registry, checkpoint: checkpoint, discoverySvc: discoverySvc,
		sup: sup, events: NewEventPublisher(cfg.EventBufferSize), pairCode: newPairCodeCell(now),
		listener: listener, acceptDone: make(chan struct{}),
		log: logger, metrics: observability.NewMetrics(), now: now,
	}

	go s.acceptLoop()
	return s, nil
}

// acceptLoop is the singleton TCP accept loop: each accepted socket is handed to an
// independently spawned goroutine driving the server-side handshake/manifest/incoming sequence.
func (s *Service) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.log.Error(err, "accept failed")
			continue
		}
		s.log.ConnectionEstablished(conn.RemoteAddr().String(), "server")
		go s.handleIncomingConnection(conn)
	}
}

// Identity returns the local device's stable id/display name.
func (s *Service) Identity() (deviceID, displayName string) {
	return s.identity.DeviceID, s.identity.DisplayName
}

// Close stops the accept loop, discovery, and the supervisor's cleanup sweep, and releases the
// checkpoint database. It does not touch the main store, which the caller owns.
func (s *Service) Close() error {
	s.discoverySvc.Stop()
	s.sup.StopCleanupSweep()
	err := s.listener.Close()
	<-s.acceptDone
	if cpErr := s.checkpoint.Close(); cpErr != nil && err == nil {
		err = cpErr
	}
	return err
}
