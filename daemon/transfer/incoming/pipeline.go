package incoming

import (
	"encoding/base64"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/airdock-app/airdock/daemon/transfer/control"
	"github.com/airdock-app/airdock/internal/bitmap"
	"github.com/airdock-app/airdock/internal/chunkio"
	"github.com/airdock-app/airdock/internal/wire"
)

func chunkHashHex(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

type fileState struct {
	spec             FileSpec
	bitmap           []byte
	transferredBytes int64
	status           string
	dirty            bool
	writer           *chunkio.ChunkWriter
}

// Run drives the receiver's data phase over conn until SESSION_DONE, ERROR, or an
// unrecoverable local error. It blocks until the session reaches a terminal state.
func Run(conn net.Conn, cfg Config, specs []FileSpec, ctl *control.Signals, hooks Hooks) error {
	files := make(map[string]*fileState, len(specs))
	for _, spec := range specs {
		files[spec.FileID] = &fileState{
			spec:             spec,
			bitmap:           append([]byte(nil), spec.Bitmap...),
			transferredBytes: bitmap.CompletedBytes(spec.Bitmap, spec.ChunkCount, spec.ChunkSize, spec.SizeBytes),
			status:           "running",
		}
	}
	defer func() {
		for _, f := range files {
			if f.writer != nil {
				_ = f.writer.Close()
			}
		}
	}()

	var ackBuffer []wire.AckItem
	lastAckFlush := hooks.now()
	expectCodec := cfg.Codec

	flushAcks := func() error {
		if len(ackBuffer) == 0 {
			return nil
		}
		items := ackBuffer
		ackBuffer = nil
		lastAckFlush = hooks.now()
		if cfg.AckBatchV2 {
			return wire.WriteFrame(conn, wire.AckBatch{SessionID: cfg.SessionID, Items: items}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID))
		}
		for _, item := range items {
			if err := wire.WriteFrame(conn, wire.Ack{
				SessionID: cfg.SessionID, FileID: item.FileID, ChunkIndex: item.ChunkIndex,
				OK: item.OK, Error: item.Error,
			}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID)); err != nil {
				return err
			}
		}
		return nil
	}

	flushDirty := func() error {
		var dirty []FileProgress
		for _, f := range files {
			if !f.dirty {
				continue
			}
			dirty = append(dirty, FileProgress{
				FileID:           f.spec.FileID,
				Bitmap:           f.bitmap,
				TransferredBytes: f.transferredBytes,
				Status:           f.status,
				TargetPath:       f.spec.TargetPath,
			})
			f.dirty = false
		}
		if len(dirty) > 0 && hooks.FlushFiles != nil {
			return hooks.FlushFiles(dirty)
		}
		return nil
	}

	sessionTransferred := func() int64 {
		var sum int64
		for _, f := range files {
			sum += f.transferredBytes
		}
		return sum
	}

	var totalBytes int64
	for _, spec := range specs {
		totalBytes += spec.SizeBytes
	}
	lastEmit := hooks.now()
	lastEmitBytes := sessionTransferred()

	emit := func(forced bool) {
		if hooks.Emit == nil {
			return
		}
		now := hooks.now()
		transferred := sessionTransferred()
		elapsed := now.Sub(lastEmit).Seconds()
		var speedBps, etaSeconds float64
		if elapsed > 0 {
			speedBps = float64(transferred-lastEmitBytes) / elapsed
		}
		if speedBps > 0 {
			if remaining := totalBytes - transferred; remaining > 0 {
				etaSeconds = float64(remaining) / speedBps
			}
		}
		lastEmit = now
		lastEmitBytes = transferred
		hooks.Emit(Snapshot{
			SessionID:        cfg.SessionID,
			TransferredBytes: transferred,
			SpeedBps:         speedBps,
			ETASeconds:       etaSeconds,
		}, forced)
	}

	fail := func(code, message string) error {
		_ = flushAcks()
		_ = flushDirty()
		errCode := code
		if hooks.FlushSession != nil {
			_ = hooks.FlushSession(SessionProgress{TransferredBytes: sessionTransferred(), Status: "failed", ErrorCode: &errCode})
		}
		emit(true)
		return wire.NewError(code, message)
	}

	appendAck := func(fileID string, chunkIndex uint32, ok bool, errCode *string) {
		ackBuffer = append(ackBuffer, wire.AckItem{FileID: fileID, ChunkIndex: chunkIndex, OK: ok, Error: errCode})
		if len(ackBuffer) >= cfg.AckBatchSize {
			_ = flushAcks()
		}
	}

	handleChunk := func(sessionID, fileID string, chunkIndex uint32, hash string, data []byte) error {
		if sessionID != cfg.SessionID {
			return nil
		}
		f, ok := files[fileID]
		if !ok {
			return nil
		}

		if chunkHashHex(data) != hash {
			errCode := wire.ErrChunkHashMismatch
			appendAck(fileID, chunkIndex, false, &errCode)
			return nil
		}

		if f.writer == nil {
			w, err := chunkio.OpenChunkWriter(f.spec.PartPath, f.spec.SizeBytes)
			if err != nil {
				return wire.NewError(wire.ErrTargetOpenFailed, err.Error())
			}
			f.writer = w
		}
		if err := f.writer.WriteChunk(int64(chunkIndex), f.spec.ChunkSize, data); err != nil {
			return wire.NewError(wire.ErrTargetWriteFailed, err.Error())
		}

		if !bitmap.IsDone(f.bitmap, int64(chunkIndex)) {
			_ = bitmap.MarkDone(f.bitmap, int64(chunkIndex))
			f.transferredBytes = bitmap.CompletedBytes(f.bitmap, f.spec.ChunkCount, f.spec.ChunkSize, f.spec.SizeBytes)
			f.dirty = true
		}
		appendAck(fileID, chunkIndex, true, nil)
		return nil
	}

	handleFileDone := func(fileID, wantHash string) error {
		f, ok := files[fileID]
		if !ok {
			return nil
		}
		if f.writer != nil {
			if err := f.writer.Flush(); err != nil {
				return fail(wire.ErrTargetFlushFailed, err.Error())
			}
			if err := f.writer.Close(); err != nil {
				return fail(wire.ErrTargetFlushFailed, err.Error())
			}
			f.writer = nil
		}

		gotHash, err := chunkio.FileHashHex(f.spec.PartPath)
		if err != nil {
			return fail(wire.ErrIO, err.Error())
		}
		if !strings.EqualFold(gotHash, wantHash) {
			f.status = "failed"
			f.dirty = true
			return fail(wire.ErrFileHashMismatch, "file "+fileID+" hash mismatch after transfer")
		}

		final, err := ResolveConflictPath(f.spec.TargetPath)
		if err != nil {
			return fail(wire.ErrTargetRenameFailed, err.Error())
		}
		if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
			return fail(wire.ErrTargetDirCreateFailed, err.Error())
		}
		if err := os.Rename(f.spec.PartPath, final); err != nil {
			return fail(wire.ErrTargetRenameFailed, err.Error())
		}

		f.spec.TargetPath = final
		f.transferredBytes = f.spec.SizeBytes
		f.status = "success"
		f.dirty = true
		return nil
	}

	for {
		if ctl.Canceled() {
			return fail(wire.ErrSessionCanceled, "session canceled")
		}

		_ = conn.SetReadDeadline(hooks.now().Add(AckReadTimeout))
		msg, err := wire.ReadFrame(conn, cfg.SessionKey, []byte(cfg.SessionID), &expectCodec)
		if err != nil {
			if !isTimeout(err) {
				return fail(wire.ErrConnectionClosed, err.Error())
			}
		} else {
			switch m := msg.(type) {
			case wire.Chunk:
				data, decErr := decodeBase64(m.Data)
				if decErr != nil {
					errCode := wire.ErrChunkDecodeFailed
					appendAck(m.FileID, m.ChunkIndex, false, &errCode)
				} else if err := handleChunk(m.SessionID, m.FileID, m.ChunkIndex, m.Hash, data); err != nil {
					return err
				}
			case wire.ChunkBinary:
				if err := handleChunk(m.SessionID, m.FileID, m.ChunkIndex, m.Hash, m.Data); err != nil {
					return err
				}
			case wire.FileDone:
				if err := handleFileDone(m.FileID, m.Blake3); err != nil {
					return err
				}
			case wire.SessionDone:
				if err := flushAcks(); err != nil {
					return err
				}
				if err := flushDirty(); err != nil {
					return err
				}
				status := "success"
				var errorCode *string
				if !m.OK {
					status = "failed"
					code := "remote_failed"
					errorCode = &code
				}
				if hooks.FlushSession != nil {
					if err := hooks.FlushSession(SessionProgress{TransferredBytes: sessionTransferred(), Status: status, ErrorCode: errorCode}); err != nil {
						return err
					}
				}
				emit(true)
				if !m.OK {
					return wire.NewError("remote_failed", "sender reported failure")
				}
				return nil
			case wire.ErrorFrame:
				return fail(m.Code, m.Message)
			case wire.Ping:
				// liveness only
			}
		}

		now := hooks.now()
		if len(ackBuffer) > 0 && now.Sub(lastAckFlush) >= cfg.AckFlushInterval {
			if err := flushAcks(); err != nil {
				return err
			}
		}
		emit(false)
	}
}

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "i/o timeout")
}
