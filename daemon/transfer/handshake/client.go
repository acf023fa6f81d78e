package handshake

import (
	"io"

	"github.com/airdock-app/airdock/internal/crypto"
	"github.com/airdock-app/airdock/internal/wire"
)

// ClientConfig describes the initiating side of a handshake.
type ClientConfig struct {
	DeviceID       string
	DeviceName     string
	PairCode       string
	CodecV2Enabled bool
}

// ClientResult is returned after a successful client handshake.
type ClientResult struct {
	SessionKey   []byte
	PeerDeviceID string
	PeerName     string
	Negotiated   Capabilities
}

// ClientHandshake drives steps 1-4 of the spec's client sequence over rw: send HELLO, receive
// AUTH_CHALLENGE, send AUTH_RESPONSE, receive AUTH_OK.
func ClientHandshake(rw io.ReadWriter, cfg ClientConfig) (ClientResult, error) {
	clientNonce, err := crypto.RandomHex(16)
	if err != nil {
		return ClientResult{}, err
	}
	if err := sendHello(rw, cfg.DeviceID, cfg.DeviceName, clientNonce); err != nil {
		return ClientResult{}, err
	}

	msg, err := readExpected(rw)
	if err != nil {
		return ClientResult{}, err
	}
	challenge, ok := msg.(wire.AuthChallenge)
	if !ok {
		if errFrame, isErr := msg.(wire.ErrorFrame); isErr {
			return ClientResult{}, wire.NewError(errFrame.Code, errFrame.Message)
		}
		return ClientResult{}, wire.NewError(wire.ErrFrameParseFailed, "expected AUTH_CHALLENGE")
	}

	proof := crypto.DeriveProof(cfg.PairCode, clientNonce, challenge.Nonce)
	if err := wire.WriteFrame(rw, wire.AuthResponse{PairCode: cfg.PairCode, Proof: proof}, wire.CodecJSON, nil, nil); err != nil {
		return ClientResult{}, err
	}

	msg, err = readExpected(rw)
	if err != nil {
		return ClientResult{}, err
	}
	authOK, ok := msg.(wire.AuthOK)
	if !ok {
		if errFrame, isErr := msg.(wire.ErrorFrame); isErr {
			return ClientResult{}, wire.NewError(errFrame.Code, errFrame.Message)
		}
		return ClientResult{}, wire.NewError(wire.ErrAuthFailed, "expected AUTH_OK")
	}

	sessionKey := crypto.DeriveSessionKey(cfg.PairCode, clientNonce, challenge.Nonce)

	peerVersion := ProtocolVersion
	if authOK.ProtocolVersion != nil {
		peerVersion = *authOK.ProtocolVersion
	}
	peerCaps := authOK.Capabilities
	if peerCaps == nil {
		peerCaps = ourCapabilities
	}

	return ClientResult{
		SessionKey:   sessionKey,
		PeerDeviceID: authOK.PeerDeviceID,
		PeerName:     authOK.PeerName,
		Negotiated:   negotiate(cfg.CodecV2Enabled, peerVersion, peerCaps),
	}, nil
}
