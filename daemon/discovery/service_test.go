package discovery

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestServiceDiscoversPeerOverLoopback(t *testing.T) {
	registryA := NewRegistry()
	registryB := NewRegistry()

	portA := freeUDPPort(t)
	portB := freeUDPPort(t)
	addrA := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portA}
	addrB := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portB}

	svcA := New(Self{DeviceID: "dev-a", DisplayName: "A", ListenPort: portA}, addrB, portA, registryA, nil, nil)
	svcB := New(Self{DeviceID: "dev-b", DisplayName: "B", ListenPort: portB}, addrA, portB, registryB, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svcA.Start(ctx); err != nil {
		t.Fatalf("svcA.Start failed: %v", err)
	}
	defer svcA.Stop()
	if err := svcB.Start(ctx); err != nil {
		t.Fatalf("svcB.Start failed: %v", err)
	}
	defer svcB.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(registryA.Snapshot()) > 0 && len(registryB.Snapshot()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	snapA := registryA.Snapshot()
	if len(snapA) != 1 || snapA[0].DeviceID != "dev-b" {
		t.Fatalf("registryA: got %+v, want one entry for dev-b", snapA)
	}
	snapB := registryB.Snapshot()
	if len(snapB) != 1 || snapB[0].DeviceID != "dev-a" {
		t.Fatalf("registryB: got %+v, want one entry for dev-a", snapB)
	}
}

func TestServiceStartStopIsIdempotent(t *testing.T) {
	port := freeUDPPort(t)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	svc := New(Self{DeviceID: "dev-a"}, addr, port, NewRegistry(), nil, nil)

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	svc.Stop()
	svc.Stop()
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		t.Fatalf("failed to find a free UDP port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}
