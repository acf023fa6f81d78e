package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/zeebo/blake3"
)

// RandomHex returns n cryptographically random bytes encoded as a lowercase hex string of
// length 2n. Used to generate client_nonce/server_nonce values during the handshake.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: generate random hex: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}

// RandomPairCode returns a cryptographically random 8-digit pair code, zero-padded.
func RandomPairCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("crypto: generate pair code: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

// DeriveProof computes BLAKE3(pairCode + ":" + clientNonce + ":" + serverNonce) as a
// lowercase hex string, the value an authenticating peer must present to prove knowledge of
// the pair code.
func DeriveProof(pairCode, clientNonce, serverNonce string) string {
	h := blake3.New()
	h.Write([]byte(pairCode + ":" + clientNonce + ":" + serverNonce))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DeriveSessionKey computes BLAKE3("session:" + pairCode + ":" + clientNonce + ":" +
// serverNonce), the 32-byte key used to seal every wire frame after AUTH_OK.
func DeriveSessionKey(pairCode, clientNonce, serverNonce string) []byte {
	h := blake3.New()
	h.Write([]byte("session:" + pairCode + ":" + clientNonce + ":" + serverNonce))
	return h.Sum(nil)
}
