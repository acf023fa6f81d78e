package wire

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }
func u16Ptr(v uint16) *uint16 { return &v }

func sampleMessages() []Message {
	return []Message{
		Hello{
			DeviceID:        "dev-1",
			DeviceName:      "Alice's Laptop",
			Nonce:           "aa",
			ProtocolVersion: u16Ptr(2),
			Capabilities:    []string{"codec-bin-v2", "ack-batch-v2", "pipeline-v2"},
		},
		AuthChallenge{Nonce: "bb", ExpiresAt: 1700000000000},
		AuthResponse{PairCode: "12345678", Proof: "deadbeef"},
		AuthOK{PeerDeviceID: "dev-2", PeerName: "Bob's Desktop"},
		Manifest{
			SessionID: "sess-1",
			Direction: "send",
			SaveDir:   "/tmp/downloads",
			Files: []ManifestFile{
				{
					FileID:          "file-1",
					RelativePath:    "photo.png",
					SizeBytes:       2500,
					ChunkSize:       1024,
					ChunkCount:      3,
					Blake3:          "abc123",
					MimeType:        strPtr("image/png"),
					IsFolderArchive: false,
				},
			},
		},
		ManifestAck{
			SessionID: "sess-1",
			MissingChunks: []MissingChunks{
				{FileID: "file-1", MissingChunkIndexes: []uint32{1, 2}},
			},
		},
		Chunk{SessionID: "sess-1", FileID: "file-1", ChunkIndex: 0, TotalChunks: 3, Hash: "h0", Data: "YmFzZTY0"},
		ChunkBinary{SessionID: "sess-1", FileID: "file-1", ChunkIndex: 0, TotalChunks: 3, Hash: "h0", Data: []byte{1, 2, 3, 4}},
		Ack{SessionID: "sess-1", FileID: "file-1", ChunkIndex: 0, OK: true},
		Ack{SessionID: "sess-1", FileID: "file-1", ChunkIndex: 1, OK: false, Error: strPtr("chunk_hash_mismatch")},
		AckBatch{
			SessionID: "sess-1",
			Items: []AckItem{
				{FileID: "file-1", ChunkIndex: 0, OK: true},
				{FileID: "file-1", ChunkIndex: 1, OK: false, Error: strPtr("chunk_hash_mismatch")},
			},
		},
		FileDone{SessionID: "sess-1", FileID: "file-1", Blake3: "abc123"},
		SessionDone{SessionID: "sess-1", OK: true},
		ErrorFrame{Code: "transfer_auth_failed", Message: "pair code mismatch"},
		Ping{TS: 1700000000000},
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	for _, msg := range sampleMessages() {
		encoded, err := EncodeJSON(msg)
		if err != nil {
			t.Fatalf("EncodeJSON(%T) failed: %v", msg, err)
		}
		decoded, err := DecodeJSON(encoded)
		if err != nil {
			t.Fatalf("DecodeJSON(%T) failed: %v", msg, err)
		}
		if !reflect.DeepEqual(msg, decoded) {
			t.Errorf("JSON round-trip mismatch for %T:\n got  %#v\n want %#v", msg, decoded, msg)
		}
	}
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	for _, msg := range sampleMessages() {
		encoded, err := EncodeBinary(msg)
		if err != nil {
			t.Fatalf("EncodeBinary(%T) failed: %v", msg, err)
		}
		decoded, err := DecodeBinary(encoded)
		if err != nil {
			t.Fatalf("DecodeBinary(%T) failed: %v", msg, err)
		}
		if !reflect.DeepEqual(msg, decoded) {
			t.Errorf("binary round-trip mismatch for %T:\n got  %#v\n want %#v", msg, decoded, msg)
		}
	}
}

func TestDecodeJSONRejectsUnknownType(t *testing.T) {
	if _, err := DecodeJSON([]byte(`{"type":"NOT_A_REAL_FRAME"}`)); err == nil {
		t.Error("expected error for unknown frame type")
	}
}

func TestDecodeBinaryRejectsTruncatedPayload(t *testing.T) {
	encoded, err := EncodeBinary(Ping{TS: 42})
	if err != nil {
		t.Fatalf("EncodeBinary failed: %v", err)
	}
	if _, err := DecodeBinary(encoded[:len(encoded)-4]); err == nil {
		t.Error("expected error decoding truncated binary frame")
	}
}
