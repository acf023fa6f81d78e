package discovery

import (
	"context"
	"net"
	"sync"
	"time"
)

// BroadcastInterval is how often a Service announces itself while running.
const BroadcastInterval = 2 * time.Second

// staleMultiple is how many broadcast intervals of silence mark a peer offline.
const staleMultiple = 3

// StaleAfter returns the duration after which a peer with no further sightings is considered
// offline.
func StaleAfter() time.Duration {
	return staleMultiple * BroadcastInterval
}

// Self describes the local device, announced on every broadcast tick.
type Self struct {
	DeviceID        string
	DisplayName     string
	ListenPort      int
	AppVersion      string
	PairingRequired bool
	Capabilities    []string
}

// Service runs the UDP broadcast and listen loops and maintains the online peer Registry.
// Start/Stop are idempotent; Stop aborts both loops.
type Service struct {
	self          Self
	broadcastAddr *net.UDPAddr
	listenPort    int
	registry      *Registry
	checkpoint    *Checkpoint
	nowMillis     func() int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a discovery Service. broadcastAddr is the fixed UDP broadcast endpoint (e.g.
// 255.255.255.255:42421); listenPort is the local UDP port to bind for receiving packets.
// checkpoint may be nil to disable sighting persistence. nowMillis lets tests supply a
// deterministic clock; pass nil to use time.Now.
func New(self Self, broadcastAddr *net.UDPAddr, listenPort int, registry *Registry, checkpoint *Checkpoint, nowMillis func() int64) *Service {
	if nowMillis == nil {
		nowMillis = func() int64 { return time.Now().UnixMilli() }
	}
	return &Service{
		self:          self,
		broadcastAddr: broadcastAddr,
		listenPort:    listenPort,
		registry:      registry,
		checkpoint:    checkpoint,
		nowMillis:     nowMillis,
	}
}

// Start begins the broadcast and listen loops. Calling Start while already running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.listenPort})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(loopCtx, conn)
	return nil
}

// Stop aborts both loops and waits (briefly) for them to exit. Calling Stop while not running
// is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func (s *Service) run(ctx context.Context, conn *net.UDPConn) {
	defer close(s.done)
	defer conn.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.broadcastLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		s.listenLoop(ctx, conn)
	}()
	wg.Wait()
}

func (s *Service) broadcastLoop(ctx context.Context, conn *net.UDPConn) {
	s.announce(conn)

	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.announce(conn)
		}
	}
}

func (s *Service) announce(conn *net.UDPConn) {
	packet := Packet{
		DeviceID:        s.self.DeviceID,
		DisplayName:     s.self.DisplayName,
		ListenPort:      s.self.ListenPort,
		AppVersion:      s.self.AppVersion,
		PairingRequired: s.self.PairingRequired,
		Capabilities:    s.self.Capabilities,
		TS:              s.nowMillis(),
	}
	data, err := encodePacket(packet)
	if err != nil {
		return
	}
	_, _ = conn.WriteToUDP(data, s.broadcastAddr)
}

func (s *Service) listenLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		packet, err := decodePacket(buf[:n])
		if err != nil || packet.DeviceID == "" || packet.DeviceID == s.self.DeviceID {
			continue
		}

		now := s.nowMillis()
		s.registry.Upsert(PeerEntry{
			DeviceID:        packet.DeviceID,
			DisplayName:     packet.DisplayName,
			Address:         addr.IP.String(),
			ListenPort:      packet.ListenPort,
			AppVersion:      packet.AppVersion,
			PairingRequired: packet.PairingRequired,
			LastSeenAt:      now,
		})
		if s.checkpoint != nil {
			_ = s.checkpoint.RecordSighting(packet.DeviceID, now)
		}
	}
}
