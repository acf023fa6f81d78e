package outgoing

import (
	"encoding/base64"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"time"

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

func newFileState(spec FileSpec) *fileState {
	bm := bitmap.Empty(spec.ChunkCount)
	missing := make(map[int64]bool, len(spec.MissingChunks))
	for _, idx := range spec.MissingChunks {
		missing[idx] = true
	}
	for i := int64(0); i < spec.ChunkCount; i++ {
		if !missing[i] {
			_ = bitmap.MarkDone(bm, i)
		}
	}
	return &fileState{
		spec:             spec,
		bitmap:           bm,
		transferredBytes: bitmap.CompletedBytes(bm, spec.ChunkCount, spec.ChunkSize, spec.SizeBytes),
		remaining:        int64(len(spec.MissingChunks)),
	}
}

// Run drives the sender's data phase over conn until every file completes, the session is
// canceled, or an unrecoverable error occurs. It blocks until the session reaches a terminal
// state.
func Run(conn net.Conn, cfg Config, specs []FileSpec, ctl *control.Signals, hooks Hooks) error {
	files := make([]*fileState, len(specs))
	readers := make([]*chunkio.ChunkReader, len(specs))
	for i, spec := range specs {
		files[i] = newFileState(spec)
		r, err := chunkio.OpenChunkReader(spec.SourcePath)
		if err != nil {
			return wire.NewError(wire.ErrSourceOpenFailed, err.Error())
		}
		readers[i] = r
	}
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	sched := newScheduler(files)

	var sessionTransferred, totalBytes int64
	var retransmitChunks int64
	for _, f := range files {
		sessionTransferred += f.transferredBytes
		totalBytes += f.spec.SizeBytes
	}

	lastFlush := hooks.now()
	lastEmit := hooks.now()
	lastEmitBytes := sessionTransferred
	expectCodec := cfg.Codec

	emit := func(forced bool) {
		now := hooks.now()
		if !forced && now.Sub(lastEmit) < cfg.EventEmitInterval {
			return
		}
		elapsed := now.Sub(lastEmit).Seconds()
		var speedBps, etaSeconds float64
		if elapsed > 0 {
			speedBps = float64(sessionTransferred-lastEmitBytes) / elapsed
		}
		if speedBps > 0 {
			if remaining := totalBytes - sessionTransferred; remaining > 0 {
				etaSeconds = float64(remaining) / speedBps
			}
		}
		lastEmit = now
		lastEmitBytes = sessionTransferred
		if hooks.Emit == nil {
			return
		}
		hooks.Emit(Snapshot{
			SessionID:        cfg.SessionID,
			TransferredBytes: sessionTransferred,
			SpeedBps:         speedBps,
			ETASeconds:       etaSeconds,
			InflightChunks:   len(sched.inflight),
			RetransmitChunks: retransmitChunks,
			ProtocolVersion:  cfg.ProtocolVersion,
			Codec:            cfg.Codec,
		}, forced)
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
				Status:           statusOf(f),
			})
			f.dirty = false
		}
		if len(dirty) > 0 && hooks.FlushFiles != nil {
			if err := hooks.FlushFiles(dirty); err != nil {
				return err
			}
		}
		if hooks.FlushSession != nil {
			if err := hooks.FlushSession(SessionProgress{
				TransferredBytes: sessionTransferred,
				Status:           "running",
				RetransmitChunks: retransmitChunks,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	fail := func(code, message string) error {
		_ = flushDirty()
		errMsg := message
		_ = wire.WriteFrame(conn, wire.SessionDone{SessionID: cfg.SessionID, OK: false, Error: &errMsg}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID))
		emit(true)
		return wire.NewError(code, message)
	}

	sendChunk := func(key ChunkKey) error {
		f := files[key.FileIndex]
		data, err := readers[key.FileIndex].ReadChunk(key.ChunkIndex, f.spec.ChunkSize)
		if err != nil {
			return wire.NewError(wire.ErrSourceReadFailed, err.Error())
		}
		hash := chunkHashHex(data)

		var sendErr error
		if cfg.Codec == wire.CodecBinary {
			sendErr = wire.WriteFrame(conn, wire.ChunkBinary{
				SessionID: cfg.SessionID, FileID: f.spec.FileID,
				ChunkIndex: uint32(key.ChunkIndex), TotalChunks: uint32(f.spec.ChunkCount),
				Hash: hash, Data: data,
			}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID))
		} else {
			sendErr = wire.WriteFrame(conn, wire.Chunk{
				SessionID: cfg.SessionID, FileID: f.spec.FileID,
				ChunkIndex: uint32(key.ChunkIndex), TotalChunks: uint32(f.spec.ChunkCount),
				Hash: hash, Data: base64.StdEncoding.EncodeToString(data),
			}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID))
		}
		if sendErr != nil {
			return sendErr
		}

		sched.inflight[key] = &inflightEntry{sentAt: hooks.now(), retries: sched.retryCounts[key]}
		return nil
	}

	retry := func(key ChunkKey, terminalCode string) error {
		delete(sched.inflight, key)
		sched.retryCounts[key]++
		if sched.retryCounts[key] > MaxRetries {
			return fail(terminalCode, "chunk "+files[key.FileIndex].spec.FileID+"/"+strconv.FormatInt(key.ChunkIndex, 10)+" exceeded retry limit")
		}
		retransmitChunks++
		sched.fairQueue.PushFront(key)
		return nil
	}

	sendFileDone := func(f *fileState) error {
		f.doneSent = true
		hash, err := chunkio.FileHashHex(f.spec.SourcePath)
		if err != nil {
			return wire.NewError(wire.ErrSourceReadFailed, err.Error())
		}
		return wire.WriteFrame(conn, wire.FileDone{
			SessionID: cfg.SessionID, FileID: f.spec.FileID, Blake3: hash,
		}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID))
	}

	handleAckItem := func(fileIdx int, chunkIndex uint32, ok bool) error {
		key := ChunkKey{FileIndex: fileIdx, ChunkIndex: int64(chunkIndex)}
		if _, present := sched.inflight[key]; !present {
			return nil
		}
		if !ok {
			return retry(key, wire.ErrChunkRetryExhausted)
		}

		delete(sched.inflight, key)
		delete(sched.retryCounts, key)
		f := files[fileIdx]
		if !bitmap.IsDone(f.bitmap, key.ChunkIndex) {
			_ = bitmap.MarkDone(f.bitmap, key.ChunkIndex)
			newTransferred := bitmap.CompletedBytes(f.bitmap, f.spec.ChunkCount, f.spec.ChunkSize, f.spec.SizeBytes)
			sessionTransferred += newTransferred - f.transferredBytes
			f.transferredBytes = newTransferred
			f.remaining--
			f.dirty = true

			if f.remaining <= 0 && !f.doneSent {
				if err := sendFileDone(f); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// A file with no missing chunks at session start (a zero-byte file, or a resumed session
	// whose bitmap was already fully set) never has a chunk enqueued, so it never receives an
	// ACK and handleAckItem above never runs for it. Send its FILE_DONE up front instead of
	// waiting for a completion event that will never arrive.
	for _, f := range files {
		if f.remaining <= 0 && !f.doneSent {
			if err := sendFileDone(f); err != nil {
				return fail(wire.ErrIO, err.Error())
			}
			f.dirty = true
		}
	}

	fileIndexByID := func(fileID string) int {
		for i, f := range files {
			if f.spec.FileID == fileID {
				return i
			}
		}
		return -1
	}

	for !sched.idle() {
		if ctl.Canceled() {
			return fail(wire.ErrSessionCanceled, "session canceled")
		}
		if ctl.Paused() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		for len(sched.inflight) < cfg.MaxInflightChunks && sched.fairQueue.Len() > 0 {
			key, _ := sched.fairQueue.PopFront()
			f := files[key.FileIndex]
			if _, inflight := sched.inflight[key]; inflight {
				continue
			}
			if bitmap.IsDone(f.bitmap, key.ChunkIndex) {
				continue
			}
			if err := sendChunk(key); err != nil {
				return fail(wire.ErrIO, err.Error())
			}
		}

		_ = conn.SetReadDeadline(hooks.now().Add(AckReadTimeout))
		msg, err := wire.ReadFrame(conn, cfg.SessionKey, []byte(cfg.SessionID), &expectCodec)
		if err != nil {
			if !isTimeout(err) {
				return fail(wire.ErrConnectionClosed, err.Error())
			}
		} else {
			switch m := msg.(type) {
			case wire.Ack:
				idx := fileIndexByID(m.FileID)
				if idx >= 0 {
					if err := handleAckItem(idx, m.ChunkIndex, m.OK); err != nil {
						return err
					}
				}
			case wire.AckBatch:
				for _, item := range m.Items {
					idx := fileIndexByID(item.FileID)
					if idx < 0 {
						continue
					}
					if err := handleAckItem(idx, item.ChunkIndex, item.OK); err != nil {
						return err
					}
				}
			case wire.ErrorFrame:
				return fail(m.Code, m.Message)
			case wire.Ping:
				// liveness only
			}
		}

		now := hooks.now()
		for key, entry := range sched.inflight {
			if now.Sub(entry.sentAt) >= InflightTimeout {
				if err := retry(key, wire.ErrChunkAckTimeout); err != nil {
					return err
				}
			}
		}

		if now.Sub(lastFlush) >= cfg.DBFlushInterval {
			lastFlush = now
			if err := flushDirty(); err != nil {
				return err
			}
		}
		emit(false)
	}

	if err := flushDirty(); err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, wire.SessionDone{SessionID: cfg.SessionID, OK: true}, cfg.Codec, cfg.SessionKey, []byte(cfg.SessionID)); err != nil {
		return err
	}
	emit(true)
	return nil
}

func statusOf(f *fileState) string {
	if f.doneSent {
		return "success"
	}
	return "running"
}

// isTimeout reports whether err stems from the per-iteration read deadline rather than a real
// connection failure. ReadFrame wraps every I/O error into *wire.Error, which loses the
// underlying net.Error's Timeout() bit, so this falls back to matching the standard library's
// deadline-exceeded message text.
func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "i/o timeout")
}
