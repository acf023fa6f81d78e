package chunkio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

func TestChunkReaderReadChunk(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "src.bin")

	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i % 256)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	r, err := OpenChunkReader(path)
	if err != nil {
		t.Fatalf("OpenChunkReader: %v", err)
	}
	defer r.Close()

	const chunkSize = 1024
	chunk0, err := r.ReadChunk(0, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(0): %v", err)
	}
	if !bytes.Equal(chunk0, data[:chunkSize]) {
		t.Error("chunk 0 mismatch")
	}

	chunk2, err := r.ReadChunk(2, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(2): %v", err)
	}
	if len(chunk2) != 452 {
		t.Fatalf("expected short tail chunk of 452 bytes, got %d", len(chunk2))
	}
	if !bytes.Equal(chunk2, data[2048:2500]) {
		t.Error("tail chunk mismatch")
	}
}

func TestChunkWriterResumesWithoutTruncating(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "dest", "out.bin")

	const chunkSize, totalSize = 1024, int64(2500)
	w, err := OpenChunkWriter(path, totalSize)
	if err != nil {
		t.Fatalf("OpenChunkWriter: %v", err)
	}

	chunk0 := bytes.Repeat([]byte{0xAA}, chunkSize)
	if err := w.WriteChunk(0, chunkSize, chunk0); err != nil {
		t.Fatalf("WriteChunk(0): %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	w.Close()

	// Reopen: previously written chunk 0 must survive.
	w2, err := OpenChunkWriter(path, totalSize)
	if err != nil {
		t.Fatalf("reopen OpenChunkWriter: %v", err)
	}
	defer w2.Close()

	r, err := OpenChunkReader(path)
	if err != nil {
		t.Fatalf("OpenChunkReader: %v", err)
	}
	defer r.Close()

	got, err := r.ReadChunk(0, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(0): %v", err)
	}
	if !bytes.Equal(got, chunk0) {
		t.Error("resumed writer lost previously written chunk 0")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != totalSize {
		t.Errorf("expected preallocated size %d, got %d", totalSize, info.Size())
	}
}

func TestFileHashHex(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "hashed.bin")
	data := []byte("airdock transfer engine")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	got, err := FileHashHex(path)
	if err != nil {
		t.Fatalf("FileHashHex: %v", err)
	}

	h := blake3.New()
	h.Write(data)
	want := hexEncode(h.Sum(nil))

	if got != want {
		t.Errorf("FileHashHex = %s, want %s", got, want)
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
