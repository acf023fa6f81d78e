package handshake

import (
	"io"
	"time"

	"github.com/airdock-app/airdock/internal/crypto"
	"github.com/airdock-app/airdock/internal/wire"
)

// ServerConfig describes the accepting side of a handshake.
type ServerConfig struct {
	DeviceID       string
	DeviceName     string
	CodecV2Enabled bool

	// PairingRequired mirrors setting.pairing_required.
	PairingRequired bool
	// LivePairCode returns the current pair code and whether it has expired. Ignored when
	// PairingRequired is false.
	LivePairCode func() (code string, expired bool)
	// OnAuthFailure is invoked with the peer's claimed device ID and a cooldown end time
	// (now + PairFailureCooldown) whenever pairing validation fails.
	OnAuthFailure func(peerDeviceID string, blockedUntil time.Time)
	// OnAuthSuccess is invoked once pairing succeeds.
	OnAuthSuccess func(peerDeviceID string)
	// Now lets tests supply a deterministic clock.
	Now func() time.Time
}

// ServerResult is returned after a successful server handshake.
type ServerResult struct {
	SessionKey   []byte
	PeerDeviceID string
	PeerName     string
	Negotiated   Capabilities
}

// ServerHandshake drives the spec's server sequence over rw: receive HELLO, send
// AUTH_CHALLENGE, receive AUTH_RESPONSE, validate, send AUTH_OK or ERROR.
func ServerHandshake(rw io.ReadWriter, cfg ServerConfig) (ServerResult, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	msg, err := readExpected(rw)
	if err != nil {
		return ServerResult{}, err
	}
	hello, ok := msg.(wire.Hello)
	if !ok {
		return ServerResult{}, wire.NewError(wire.ErrFrameParseFailed, "expected HELLO")
	}

	serverNonce, err := crypto.RandomHex(16)
	if err != nil {
		return ServerResult{}, err
	}
	expiresAt := now().Add(ChallengeTTL)
	if err := wire.WriteFrame(rw, wire.AuthChallenge{
		Nonce:     serverNonce,
		ExpiresAt: expiresAt.UnixMilli(),
	}, wire.CodecJSON, nil, nil); err != nil {
		return ServerResult{}, err
	}

	msg, err = readExpected(rw)
	if err != nil {
		return ServerResult{}, err
	}
	resp, ok := msg.(wire.AuthResponse)
	if !ok {
		return ServerResult{}, wire.NewError(wire.ErrFrameParseFailed, "expected AUTH_RESPONSE")
	}

	fail := func() (ServerResult, error) {
		if cfg.OnAuthFailure != nil {
			cfg.OnAuthFailure(hello.DeviceID, now().Add(PairFailureCooldown))
		}
		authErr := wire.NewError(wire.ErrAuthFailed, "pair code or proof invalid")
		_ = wire.WriteFrame(rw, wire.ErrorFrame{Code: authErr.Code, Message: authErr.Message}, wire.CodecJSON, nil, nil)
		return ServerResult{}, authErr
	}

	if cfg.PairingRequired {
		if cfg.LivePairCode == nil {
			return fail()
		}
		livePairCode, expired := cfg.LivePairCode()
		if expired || resp.PairCode != livePairCode {
			return fail()
		}
	}

	expectedProof := crypto.DeriveProof(resp.PairCode, hello.Nonce, serverNonce)
	if resp.Proof != expectedProof {
		return fail()
	}

	if cfg.OnAuthSuccess != nil {
		cfg.OnAuthSuccess(hello.DeviceID)
	}

	peerVersion := ProtocolVersion
	if hello.ProtocolVersion != nil {
		peerVersion = *hello.ProtocolVersion
	}
	peerCaps := hello.Capabilities
	if peerCaps == nil {
		peerCaps = ourCapabilities
	}
	negotiated := negotiate(cfg.CodecV2Enabled, peerVersion, peerCaps)

	version := ProtocolVersion
	if err := wire.WriteFrame(rw, wire.AuthOK{
		PeerDeviceID:    cfg.DeviceID,
		PeerName:        cfg.DeviceName,
		ProtocolVersion: &version,
		Capabilities:    ourCapabilities,
	}, wire.CodecJSON, nil, nil); err != nil {
		return ServerResult{}, err
	}

	sessionKey := crypto.DeriveSessionKey(resp.PairCode, hello.Nonce, serverNonce)
	return ServerResult{
		SessionKey:   sessionKey,
		PeerDeviceID: hello.DeviceID,
		PeerName:     hello.DeviceName,
		Negotiated:   negotiated,
	}, nil
}
