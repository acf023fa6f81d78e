package wire

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestWriteReadFramePlainJSON(t *testing.T) {
	var buf bytes.Buffer
	msg := Ping{TS: 123}
	if err := WriteFrame(&buf, msg, CodecJSON, nil, nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := ReadFrame(&buf, nil, nil, nil)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got != msg {
		t.Errorf("got %#v, want %#v", got, msg)
	}
}

func TestWriteReadFramePlainBinary(t *testing.T) {
	var buf bytes.Buffer
	msg := ChunkBinary{SessionID: "s1", FileID: "f1", ChunkIndex: 2, TotalChunks: 5, Hash: "h", Data: []byte("payload")}
	if err := WriteFrame(&buf, msg, CodecBinary, nil, nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := ReadFrame(&buf, nil, nil, nil)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if gotChunk, ok := got.(ChunkBinary); !ok || !bytes.Equal(gotChunk.Data, msg.Data) || gotChunk.Hash != msg.Hash {
		t.Errorf("got %#v, want %#v", got, msg)
	}
}

func TestWriteReadFrameEncrypted(t *testing.T) {
	var buf bytes.Buffer
	key := bytes.Repeat([]byte{0x11}, 32)
	aad := []byte("session-42")
	msg := AuthOK{PeerDeviceID: "dev-2", PeerName: "Bob"}

	if err := WriteFrame(&buf, msg, CodecJSON, key, aad); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	got, err := ReadFrame(&buf, key, aad, nil)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("got %#v, want %#v", got, msg)
	}
}

func TestReadFrameRejectsEncryptedWithoutKey(t *testing.T) {
	var buf bytes.Buffer
	key := bytes.Repeat([]byte{0x22}, 32)
	if err := WriteFrame(&buf, Ping{TS: 1}, CodecJSON, key, []byte("aad")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	_, err := ReadFrame(&buf, nil, nil, nil)
	var wireErr *Error
	if !errors.As(err, &wireErr) || wireErr.Code != ErrFrameUnexpectedEncrypted {
		t.Fatalf("expected %s, got %v", ErrFrameUnexpectedEncrypted, err)
	}
}

func TestReadFrameRejectsCodecMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Ping{TS: 1}, CodecBinary, nil, nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	expect := CodecJSON
	_, err := ReadFrame(&buf, nil, nil, &expect)
	var wireErr *Error
	if !errors.As(err, &wireErr) || wireErr.Code != ErrFrameCodecUnexpected {
		t.Fatalf("expected %s, got %v", ErrFrameCodecUnexpected, err)
	}
}

func TestMaxPayloadBoundary(t *testing.T) {
	var buf bytes.Buffer
	atMax := [headerSize]byte{byte(ModePlainBinary), 0, 0, 0, 0}
	putU32(atMax[1:], MaxPayloadBytes)
	buf.Write(atMax[:])
	buf.Write(make([]byte, MaxPayloadBytes))

	_, err := ReadFrame(&buf, nil, nil, nil)
	var wireErr *Error
	if err == nil {
		t.Fatal("expected decode error for a zeroed max-size payload, got nil")
	}
	if errors.As(err, &wireErr) && wireErr.Code == ErrFrameLengthInvalid {
		t.Fatalf("max-size payload must not be rejected as too large: %v", err)
	}

	var overBuf bytes.Buffer
	overHeader := [headerSize]byte{byte(ModePlainBinary), 0, 0, 0, 0}
	putU32(overHeader[1:], MaxPayloadBytes+1)
	overBuf.Write(overHeader[:])

	_, err = ReadFrame(&overBuf, nil, nil, nil)
	if !errors.As(err, &wireErr) || wireErr.Code != ErrFrameLengthInvalid {
		t.Fatalf("expected %s for oversized frame, got %v", ErrFrameLengthInvalid, err)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
