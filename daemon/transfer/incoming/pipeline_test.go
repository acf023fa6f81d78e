package incoming

import (
	"encoding/base64"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/blake3"

	"github.com/airdock-app/airdock/daemon/transfer/control"
	"github.com/airdock-app/airdock/internal/bitmap"
	"github.com/airdock-app/airdock/internal/wire"
)

func hashHex(b []byte) string {
	h := blake3.Sum256(b)
	return hex.EncodeToString(h[:])
}

func TestRunWritesChunksAcksAndFinalizesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	part := target + ".sess-1.part"

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := Config{
		SessionID: "sess-1", Codec: wire.CodecJSON, AckBatchV2: false,
		AckBatchSize: 1, AckFlushInterval: time.Hour,
	}
	specs := []FileSpec{
		{FileID: "f1", SizeBytes: 6, ChunkSize: 3, ChunkCount: 2, TargetPath: target, PartPath: part, Bitmap: bitmap.Empty(2)},
	}
	ctl := control.New()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(serverConn, cfg, specs, ctl, Hooks{})
	}()

	chunk0 := []byte{1, 2, 3}
	chunk1 := []byte{4, 5, 6}
	if err := wire.WriteFrame(clientConn, wire.Chunk{
		SessionID: "sess-1", FileID: "f1", ChunkIndex: 0, TotalChunks: 2,
		Hash: hashHex(chunk0), Data: b64(chunk0),
	}, wire.CodecJSON, nil, nil); err != nil {
		t.Fatal(err)
	}
	ack, err := wire.ReadFrame(clientConn, nil, nil, nil)
	if err != nil {
		t.Fatalf("read ack 0: %v", err)
	}
	if a, ok := ack.(wire.Ack); !ok || !a.OK {
		t.Fatalf("expected ok ack for chunk 0, got %+v", ack)
	}

	if err := wire.WriteFrame(clientConn, wire.Chunk{
		SessionID: "sess-1", FileID: "f1", ChunkIndex: 1, TotalChunks: 2,
		Hash: hashHex(chunk1), Data: b64(chunk1),
	}, wire.CodecJSON, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := wire.ReadFrame(clientConn, nil, nil, nil); err != nil {
		t.Fatalf("read ack 1: %v", err)
	}

	fullData := append(append([]byte{}, chunk0...), chunk1...)
	if err := wire.WriteFrame(clientConn, wire.FileDone{
		SessionID: "sess-1", FileID: "f1", Blake3: hashHex(fullData),
	}, wire.CodecJSON, nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := wire.WriteFrame(clientConn, wire.SessionDone{SessionID: "sess-1", OK: true}, wire.CodecJSON, nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(target); err != nil {
		t.Errorf("expected finalized file at %q: %v", target, err)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Errorf("expected part file to be gone after rename, stat err = %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(fullData) {
		t.Errorf("finalized content mismatch: got %v, want %v", got, fullData)
	}
}

func TestRunRejectsChunkWithBadHash(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	part := target + ".sess-2.part"

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := Config{SessionID: "sess-2", Codec: wire.CodecJSON, AckBatchSize: 1, AckFlushInterval: time.Hour}
	specs := []FileSpec{
		{FileID: "f1", SizeBytes: 3, ChunkSize: 3, ChunkCount: 1, TargetPath: target, PartPath: part, Bitmap: bitmap.Empty(1)},
	}
	ctl := control.New()

	go func() { _ = Run(serverConn, cfg, specs, ctl, Hooks{}) }()

	if err := wire.WriteFrame(clientConn, wire.Chunk{
		SessionID: "sess-2", FileID: "f1", ChunkIndex: 0, TotalChunks: 1,
		Hash: "not-the-real-hash", Data: b64([]byte{9, 9, 9}),
	}, wire.CodecJSON, nil, nil); err != nil {
		t.Fatal(err)
	}
	ack, err := wire.ReadFrame(clientConn, nil, nil, nil)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	a, ok := ack.(wire.Ack)
	if !ok || a.OK {
		t.Fatalf("expected a not-ok ack, got %+v", ack)
	}
	if a.Error == nil || *a.Error != wire.ErrChunkHashMismatch {
		t.Errorf("expected error code %s, got %v", wire.ErrChunkHashMismatch, a.Error)
	}
}

func TestResolveConflictPathAppendsSuffixWhenTargetExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.csv")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveConflictPath(target)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "report (1).csv")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveConflictPathReturnsOriginalWhenFree(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "fresh.csv")
	got, err := ResolveConflictPath(target)
	if err != nil {
		t.Fatal(err)
	}
	if got != target {
		t.Errorf("got %q, want %q", got, target)
	}
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
