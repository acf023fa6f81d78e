// Package handshake drives the HELLO/AUTH_CHALLENGE/AUTH_RESPONSE/AUTH_OK exchange that
// authenticates a peer-to-peer session and derives its session key.
package handshake

import (
	"io"
	"time"

	"github.com/airdock-app/airdock/internal/wire"
)

// ProtocolVersion is the protocol version this build negotiates.
const ProtocolVersion uint16 = 2

// ChallengeTTL is how long a server's AUTH_CHALLENGE nonce remains valid.
const ChallengeTTL = 120 * time.Second

// PairFailureCooldown is how long a peer is blocked after a failed pairing attempt.
const PairFailureCooldown = 60 * time.Second

var ourCapabilities = []string{"codec-bin-v2", "ack-batch-v2", "pipeline-v2"}

// Capabilities records what both sides agreed to use for the remainder of the session.
type Capabilities struct {
	Codec      wire.Codec
	AckBatchV2 bool
	PipelineV2 bool
}

// negotiate applies the symmetric codec/capability selection rule from both the client's and
// the server's point of view: codec-v2 requires the setting enabled, a peer protocol version of
// at least 2, and the peer advertising "codec-bin-v2"; ack-batch-v2 and pipeline-v2 each require
// only that both sides advertise the matching capability string.
func negotiate(codecV2Enabled bool, peerVersion uint16, peerCapabilities []string) Capabilities {
	hasCap := func(name string) bool {
		for _, c := range peerCapabilities {
			if c == name {
				return true
			}
		}
		return false
	}

	caps := Capabilities{Codec: wire.CodecJSON}
	if codecV2Enabled && peerVersion >= 2 && hasCap("codec-bin-v2") {
		caps.Codec = wire.CodecBinary
	}
	caps.AckBatchV2 = hasCap("ack-batch-v2")
	caps.PipelineV2 = hasCap("pipeline-v2")
	return caps
}

func sendHello(w io.Writer, deviceID, deviceName, nonce string) error {
	version := ProtocolVersion
	return wire.WriteFrame(w, wire.Hello{
		DeviceID:        deviceID,
		DeviceName:      deviceName,
		Nonce:           nonce,
		ProtocolVersion: &version,
		Capabilities:    ourCapabilities,
	}, wire.CodecJSON, nil, nil)
}

func readExpected(r io.Reader) (wire.Message, error) {
	return wire.ReadFrame(r, nil, nil, nil)
}
