// Package crypto implements the transfer engine's authenticated encryption and pairing
// key derivation: XChaCha20-Poly1305 frame sealing and BLAKE3 proof/session-key derivation
// from a shared pair code.
package crypto

import "errors"

var (
	// ErrInvalidKeySize is returned when a key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.New("crypto: key must be exactly 32 bytes")

	// ErrInvalidNonceSize is returned when a nonce is not exactly 24 bytes.
	ErrInvalidNonceSize = errors.New("crypto: nonce must be exactly 24 bytes for XChaCha20-Poly1305")

	// ErrAuthenticationFailed is returned when the Poly1305 tag fails to verify.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed, ciphertext has been tampered with")
)

// KeySize is the required length in bytes of an XChaCha20-Poly1305 session key.
const KeySize = 32

// NonceSize is the required length in bytes of an XChaCha20-Poly1305 nonce.
const NonceSize = 24
