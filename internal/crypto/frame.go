package crypto

import (
	"crypto/rand"
	"fmt"
)

// EncryptFrame seals plaintext under key with a fresh random nonce and returns
// nonce || ciphertext || tag, matching the wire codec's encrypted payload layout.
func EncryptFrame(key, aad, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate frame nonce: %w", err)
	}

	sealed, err := Seal(key, nonce, aad, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptFrame splits a nonce || ciphertext || tag payload and opens it under key.
func DecryptFrame(key, aad, payload []byte) ([]byte, error) {
	if len(payload) < NonceSize {
		return nil, fmt.Errorf("crypto: encrypted payload too short: %d bytes", len(payload))
	}
	nonce := payload[:NonceSize]
	sealed := payload[NonceSize:]
	return Open(key, nonce, aad, sealed)
}
