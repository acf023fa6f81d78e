package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/airdock-app/airdock/internal/crypto"
)

// Mode is the wire frame's leading byte: which codec produced the payload and whether it is
// encrypted.
type Mode uint8

const (
	ModePlainJSON       Mode = 0
	ModeEncryptedJSON   Mode = 1
	ModePlainBinary     Mode = 2
	ModeEncryptedBinary Mode = 3
)

// MaxPayloadBytes is the largest payload a single frame may carry (16 MiB).
const MaxPayloadBytes = 16 * 1024 * 1024

const headerSize = 5 // mode(1) + length(4 BE)

// Codec identifies which of the two frame codecs a connection has negotiated.
type Codec int

const (
	CodecJSON Codec = iota
	CodecBinary
)

// WriteFrame encodes msg with codec, optionally encrypts it under sessionKey (aad is the
// associated data, conventionally the session ID), and writes the framed result to w.
func WriteFrame(w io.Writer, msg Message, codec Codec, sessionKey, aad []byte) error {
	var serialized []byte
	var err error
	switch codec {
	case CodecJSON:
		serialized, err = EncodeJSON(msg)
	case CodecBinary:
		serialized, err = EncodeBinary(msg)
	default:
		return fmt.Errorf("wire: unknown codec %d", codec)
	}
	if err != nil {
		return err
	}

	payload := serialized
	encrypted := sessionKey != nil
	if encrypted {
		payload, err = crypto.EncryptFrame(sessionKey, aad, serialized)
		if err != nil {
			return err
		}
	}

	if len(payload) > MaxPayloadBytes {
		return NewError(ErrFrameTooLarge, fmt.Sprintf("payload too large: %d bytes", len(payload)))
	}

	mode := modeFor(encrypted, codec)
	var header [headerSize]byte
	header[0] = byte(mode)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return wrapIOError(err)
	}
	if _, err := w.Write(payload); err != nil {
		return wrapIOError(err)
	}
	return nil
}

func modeFor(encrypted bool, codec Codec) Mode {
	switch {
	case !encrypted && codec == CodecJSON:
		return ModePlainJSON
	case encrypted && codec == CodecJSON:
		return ModeEncryptedJSON
	case !encrypted && codec == CodecBinary:
		return ModePlainBinary
	default:
		return ModeEncryptedBinary
	}
}

// ReadFrame reads one framed message from r. sessionKey decrypts an encrypted frame; it may be
// nil only while no session key has been established yet (pre-AUTH_OK). expectCodec, when
// non-nil, rejects a frame whose mode disagrees with the connection's negotiated codec.
func ReadFrame(r io.Reader, sessionKey, aad []byte, expectCodec *Codec) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, wrapIOError(err)
	}

	mode := Mode(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length == 0 || length > MaxPayloadBytes {
		return nil, NewError(ErrFrameLengthInvalid, fmt.Sprintf("invalid frame length: %d", length))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, wrapIOError(err)
	}

	encrypted, codec, err := decodeMode(mode)
	if err != nil {
		return nil, err
	}

	if expectCodec != nil && *expectCodec != codec {
		return nil, NewError(ErrFrameCodecUnexpected, fmt.Sprintf("expected codec=%d, actual codec=%d", *expectCodec, codec))
	}

	plain := payload
	if encrypted {
		if sessionKey == nil {
			return nil, NewError(ErrFrameUnexpectedEncrypted, "received encrypted frame but no session key exists")
		}
		plain, err = crypto.DecryptFrame(sessionKey, aad, payload)
		if err != nil {
			return nil, err
		}
	}

	switch codec {
	case CodecJSON:
		return DecodeJSON(plain)
	default:
		return DecodeBinary(plain)
	}
}

func decodeMode(mode Mode) (encrypted bool, codec Codec, err error) {
	switch mode {
	case ModePlainJSON:
		return false, CodecJSON, nil
	case ModeEncryptedJSON:
		return true, CodecJSON, nil
	case ModePlainBinary:
		return false, CodecBinary, nil
	case ModeEncryptedBinary:
		return true, CodecBinary, nil
	default:
		return false, 0, NewError(ErrFrameModeInvalid, fmt.Sprintf("invalid frame mode: %d", mode))
	}
}

func wrapIOError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return NewError(ErrConnectionClosed, err.Error())
	}
	return NewError(ErrIO, err.Error())
}
