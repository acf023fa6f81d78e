package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/airdock-app/airdock/internal/wire"
)

func TestHandshakeRoundTripSucceeds(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var authSucceeded string
	serverCfg := ServerConfig{
		DeviceID: "server-1", DeviceName: "Server", CodecV2Enabled: true,
		PairingRequired: true,
		LivePairCode:    func() (string, bool) { return "12345678", false },
		OnAuthSuccess:   func(peerDeviceID string) { authSucceeded = peerDeviceID },
	}

	resultCh := make(chan ServerResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := ServerHandshake(serverConn, serverCfg)
		resultCh <- res
		errCh <- err
	}()

	clientResult, err := ClientHandshake(clientConn, ClientConfig{
		DeviceID: "client-1", DeviceName: "Client", PairCode: "12345678", CodecV2Enabled: true,
	})
	if err != nil {
		t.Fatalf("ClientHandshake failed: %v", err)
	}

	serverResult := <-resultCh
	if serverErr := <-errCh; serverErr != nil {
		t.Fatalf("ServerHandshake failed: %v", serverErr)
	}

	if authSucceeded != "client-1" {
		t.Errorf("OnAuthSuccess got %q, want client-1", authSucceeded)
	}
	if string(clientResult.SessionKey) != string(serverResult.SessionKey) {
		t.Error("client and server derived different session keys")
	}
	if len(clientResult.SessionKey) != 32 {
		t.Errorf("session key length = %d, want 32", len(clientResult.SessionKey))
	}
	if clientResult.Negotiated.Codec != wire.CodecBinary || serverResult.Negotiated.Codec != wire.CodecBinary {
		t.Errorf("expected binary codec negotiated both sides, got client=%v server=%v",
			clientResult.Negotiated.Codec, serverResult.Negotiated.Codec)
	}
	if !clientResult.Negotiated.AckBatchV2 || !clientResult.Negotiated.PipelineV2 {
		t.Errorf("expected ack-batch-v2 and pipeline-v2 negotiated, got %+v", clientResult.Negotiated)
	}
	if clientResult.PeerDeviceID != "server-1" || serverResult.PeerDeviceID != "client-1" {
		t.Errorf("unexpected peer device ids: client saw %q, server saw %q", clientResult.PeerDeviceID, serverResult.PeerDeviceID)
	}
}

func TestHandshakeWrongPairCodeFails(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var failedDevice string
	var blockedUntil time.Time
	serverCfg := ServerConfig{
		DeviceID: "server-1", DeviceName: "Server", CodecV2Enabled: true,
		PairingRequired: true,
		LivePairCode:    func() (string, bool) { return "12345678", false },
		OnAuthFailure: func(peerDeviceID string, until time.Time) {
			failedDevice = peerDeviceID
			blockedUntil = until
		},
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, serverCfg)
		errCh <- err
	}()

	_, err := ClientHandshake(clientConn, ClientConfig{
		DeviceID: "client-1", DeviceName: "Client", PairCode: "wrong-code", CodecV2Enabled: true,
	})
	if err == nil {
		t.Fatal("expected ClientHandshake to fail on wrong pair code")
	}

	if serverErr := <-errCh; serverErr == nil {
		t.Fatal("expected ServerHandshake to report an error")
	}
	if failedDevice != "client-1" {
		t.Errorf("OnAuthFailure got device %q, want client-1", failedDevice)
	}
	if blockedUntil.IsZero() {
		t.Error("expected a non-zero cooldown to be recorded")
	}
}

func TestNegotiateFallsBackToJSONWithoutCodecV2(t *testing.T) {
	caps := negotiate(false, ProtocolVersion, []string{"codec-bin-v2"})
	if caps.Codec != wire.CodecJSON {
		t.Errorf("expected JSON codec when codec_v2_enabled is false, got %v", caps.Codec)
	}
}

func TestNegotiateFallsBackToJSONOnOldPeerVersion(t *testing.T) {
	caps := negotiate(true, 1, []string{"codec-bin-v2"})
	if caps.Codec != wire.CodecJSON {
		t.Errorf("expected JSON codec for peer_version=1, got %v", caps.Codec)
	}
}
