package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seal encrypts and authenticates plaintext using XChaCha20-Poly1305.
//
// key must be 32 bytes, nonce must be 24 bytes and must never be reused with the same key.
// aad is authenticated but not encrypted; it carries context such as session ID to prevent
// cross-session replay. The returned ciphertext has a 16-byte tag appended.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidNonceSize, len(nonce))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create XChaCha20-Poly1305 cipher: %w", err)
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts and verifies ciphertext produced by Seal. aad must match the value used
// during encryption. No partial plaintext is ever returned on authentication failure.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidNonceSize, len(nonce))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
