// Package chunkio provides positional chunk-addressed file I/O and streaming file hashing
// for the transfer engine.
package chunkio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// ChunkReader is a positional reader over a file opened for chunked reads.
type ChunkReader struct {
	file *os.File
}

// OpenChunkReader opens path for positional chunk reads.
func OpenChunkReader(path string) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunkio: open %q: %w", path, err)
	}
	return &ChunkReader{file: f}, nil
}

// ReadChunk seeks to index*chunkSize and reads up to chunkSize bytes. The final chunk of a
// file is shorter than chunkSize; callers must not treat a short read past EOF as an error.
func (r *ChunkReader) ReadChunk(index int64, chunkSize int64) ([]byte, error) {
	offset := index * chunkSize
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("chunkio: seek to chunk %d: %w", index, err)
	}

	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(r.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("chunkio: read chunk %d: %w", index, err)
	}
	return buf[:n], nil
}

// Close closes the underlying file.
func (r *ChunkReader) Close() error {
	return r.file.Close()
}

// ChunkWriter is a positional writer over a file opened (or created) for chunked writes.
type ChunkWriter struct {
	file *os.File
}

// OpenChunkWriter ensures path's parent directory exists, then creates or opens path for
// read+write without truncating existing content (so a resumed transfer keeps its data).
// When totalSize is non-zero, the file is pre-allocated to that size up front.
func OpenChunkWriter(path string, totalSize int64) (*ChunkWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chunkio: create parent dir for %q: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chunkio: open %q: %w", path, err)
	}

	if totalSize > 0 {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("chunkio: preallocate %q to %d bytes: %w", path, totalSize, err)
		}
	}

	return &ChunkWriter{file: f}, nil
}

// WriteChunk seeks to index*chunkSize and writes data.
func (w *ChunkWriter) WriteChunk(index int64, chunkSize int64, data []byte) error {
	offset := index * chunkSize
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("chunkio: seek to chunk %d: %w", index, err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("chunkio: write chunk %d: %w", index, err)
	}
	return nil
}

// Flush commits the writer's buffered state to stable storage.
func (w *ChunkWriter) Flush() error {
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *ChunkWriter) Close() error {
	return w.file.Close()
}

// FileHashHex streams path through a BLAKE3 hasher and returns the lowercase hex digest.
func FileHashHex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("chunkio: open %q: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("chunkio: hash %q: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
