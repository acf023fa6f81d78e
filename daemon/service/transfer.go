package service

import (
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/airdock-app/airdock/daemon/store"
	"github.com/airdock-app/airdock/daemon/supervisor"
	"github.com/airdock-app/airdock/daemon/transfer/control"
	"github.com/airdock-app/airdock/daemon/transfer/handshake"
	"github.com/airdock-app/airdock/daemon/transfer/incoming"
	"github.com/airdock-app/airdock/daemon/transfer/manifest"
	"github.com/airdock-app/airdock/daemon/transfer/outgoing"
	"github.com/airdock-app/airdock/internal/wire"
)

// SendFilesFile is one caller-supplied source for send_files: a path plus optional overrides.
type SendFilesFile struct {
	Path           string
	RelativePath   string
	CompressFolder bool
}

// SendFilesRequest is the input to SendFiles.
type SendFilesRequest struct {
	PeerDeviceID string
	PairCode     string
	Files        []SendFilesFile
	SessionID    string // optional caller-chosen ID; generated when empty.
}

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// SendFiles resolves the peer's dial address, pre-hashes and chunks every source file, persists
// the queued session and file rows, and spawns the outgoing worker.
func (s *Service) SendFiles(req SendFilesRequest) (*store.Session, error) {
	addr, ok := s.peerDialAddress(req.PeerDeviceID)
	if !ok {
		return nil, wire.NewError(wire.ErrPeerNotFound, "peer "+req.PeerDeviceID+" is not currently visible")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	settings := s.GetSettings()
	chunkSize := settings.ChunkSizeBytes()

	type resolvedFile struct {
		source  manifest.SourceFile
		cleanup string
	}
	resolved := make([]resolvedFile, 0, len(req.Files))
	var totalBytes int64

	cleanupAll := func() {
		for _, rf := range resolved {
			if rf.cleanup != "" {
				os.Remove(rf.cleanup)
			}
		}
	}

	for _, f := range req.Files {
		info, err := os.Stat(f.Path)
		if err != nil {
			cleanupAll()
			return nil, err
		}

		relativePath := f.RelativePath
		if relativePath == "" {
			relativePath = info.Name()
		}

		isFolderArchive := false
		sourcePath := f.Path
		size := info.Size()
		if info.IsDir() {
			if !f.CompressFolder {
				cleanupAll()
				return nil, wire.NewError(wire.ErrSourceOpenFailed, "path "+f.Path+" is a directory; compress_folder was not set")
			}
			archivePath, archiveSize, err := buildFolderArchive(sessionID, f.Path)
			if err != nil {
				cleanupAll()
				return nil, err
			}
			sourcePath = archivePath
			size = archiveSize
			isFolderArchive = true
			if f.RelativePath == "" {
				relativePath = info.Name() + ".tar.gz"
			}
		}

		mimeType, _, _ := previewMetadata(sourcePath)
		totalBytes += size

		cleanupPath := ""
		if isFolderArchive {
			cleanupPath = sourcePath
		}
		resolved = append(resolved, resolvedFile{
			source: manifest.SourceFile{
				FileID:          uuid.NewString(),
				SourcePath:      sourcePath,
				RelativePath:    relativePath,
				SizeBytes:       size,
				MimeType:        mimeType,
				IsFolderArchive: isFolderArchive,
			},
			cleanup: cleanupPath,
		})
	}

	manifestFiles := make([]wire.ManifestFile, 0, len(resolved))
	specs := make([]outgoing.FileSpec, 0, len(resolved))
	fileRows := make([]store.File, 0, len(resolved))
	for _, rf := range resolved {
		mf, err := manifest.BuildFile(rf.source, chunkSize)
		if err != nil {
			cleanupAll()
			return nil, err
		}
		manifestFiles = append(manifestFiles, mf)

		missing := make([]int64, mf.ChunkCount)
		for i := range missing {
			missing[i] = int64(i)
		}
		specs = append(specs, outgoing.FileSpec{
			FileID: mf.FileID, SourcePath: rf.source.SourcePath, RelativePath: rf.source.RelativePath,
			SizeBytes: int64(mf.SizeBytes), ChunkSize: int64(mf.ChunkSize), ChunkCount: int64(mf.ChunkCount),
			MissingChunks: missing,
		})

		sourcePath := rf.source.SourcePath
		fileRows = append(fileRows, store.File{
			ID: mf.FileID, SessionID: sessionID, RelativePath: rf.source.RelativePath,
			SourcePath: &sourcePath, SizeBytes: int64(mf.SizeBytes), ChunkSize: int64(mf.ChunkSize),
			ChunkCount: int64(mf.ChunkCount), CompletedBitmap: emptyBitmapBytes(int64(mf.ChunkCount)),
			Blake3: strPtr(mf.Blake3), MimeType: mf.MimeType, Status: "queued", IsFolderArchive: mf.IsFolderArchive,
		})
	}

	peerEntry, _ := s.findOnlinePeer(req.PeerDeviceID)
	now := s.now().UnixMilli()
	session := store.Session{
		ID: sessionID, Direction: "send", PeerDeviceID: req.PeerDeviceID, PeerName: peerEntry.DisplayName,
		Status: "queued", TotalBytes: totalBytes, CreatedAt: now,
	}
	if err := s.st.InsertSession(session); err != nil {
		cleanupAll()
		return nil, err
	}
	if err := s.st.UpsertFilesBatch(fileRows, now); err != nil {
		cleanupAll()
		return nil, err
	}

	cleanupPaths := make([]string, 0)
	for _, rf := range resolved {
		if rf.cleanup != "" {
			cleanupPaths = append(cleanupPaths, rf.cleanup)
		}
	}

	go s.runOutgoingWorker(sessionID, req.PeerDeviceID, req.PairCode, addr, manifestFiles, specs, totalBytes, cleanupPaths)

	persisted, err := s.st.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

func (s *Service) runOutgoingWorker(sessionID, peerDeviceID, pairCode, addr string, manifestFiles []wire.ManifestFile, specs []outgoing.FileSpec, totalBytes int64, cleanupPaths []string) {
	defer func() {
		for _, p := range cleanupPaths {
			os.Remove(p)
		}
	}()

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		s.log.ConnectionFailed(addr, err)
		s.metrics.RecordConnection(false)
		s.finalizeSession(sessionID, "failed", s.now().UnixMilli(), strPtr(wire.ErrConnectionClosed), strPtr(err.Error()))
		return
	}
	defer conn.Close()
	s.log.ConnectionEstablished(addr, "client")
	s.metrics.RecordConnection(true)
	dialedAt := s.now()
	defer func() { s.metrics.RecordConnectionClose(s.now().Sub(dialedAt).Seconds()) }()

	settings := s.GetSettings()
	clientResult, err := handshake.ClientHandshake(conn, handshake.ClientConfig{
		DeviceID: s.identity.DeviceID, DeviceName: s.identity.DisplayName, PairCode: pairCode,
		CodecV2Enabled: settings.CodecV2Enabled,
	})
	if err != nil {
		s.finalizeSession(sessionID, "failed", s.now().UnixMilli(), strPtr(wire.ErrAuthFailed), strPtr(err.Error()))
		return
	}

	// MANIFEST and MANIFEST_ACK are keyed with a nil AAD rather than the session ID: the
	// receiver does not know the session ID until it has decrypted the MANIFEST frame that
	// carries it, so neither side can use it as associated data for this exchange. Every
	// data-phase frame after this point uses aad=[]byte(sessionID).
	m := wire.Manifest{SessionID: sessionID, Direction: "send", Files: manifestFiles}
	if err := wire.WriteFrame(conn, m, clientResult.Negotiated.Codec, clientResult.SessionKey, nil); err != nil {
		s.finalizeSession(sessionID, "failed", s.now().UnixMilli(), strPtr(wire.ErrIO), strPtr(err.Error()))
		return
	}

	ackMsg, err := wire.ReadFrame(conn, clientResult.SessionKey, nil, nil)
	if err != nil {
		s.finalizeSession(sessionID, "failed", s.now().UnixMilli(), strPtr(wire.ErrIO), strPtr(err.Error()))
		return
	}
	ack, ok := ackMsg.(wire.ManifestAck)
	if !ok {
		s.finalizeSession(sessionID, "failed", s.now().UnixMilli(), strPtr(wire.ErrProtocolManifestAckInvalid), strPtr("expected MANIFEST_ACK"))
		return
	}
	for i, spec := range specs {
		scheduled := manifest.ScheduleIndexes(ack, spec.FileID, spec.MissingChunks)
		diverged := len(scheduled) != len(spec.MissingChunks)
		for j := 0; !diverged && j < len(scheduled); j++ {
			diverged = scheduled[j] != spec.MissingChunks[j]
		}
		if diverged {
			s.log.WithSession(sessionID).Warn("MANIFEST_ACK missing chunks for file " + spec.FileID + " differ from the local bitmap; using MANIFEST_ACK")
		}
		specs[i].MissingChunks = scheduled
	}

	startedAtMS := s.now().UnixMilli()
	startedAt := s.now()
	_ = s.st.UpsertSessionProgress(store.Session{
		ID: sessionID, Direction: "send", PeerDeviceID: peerDeviceID, Status: "running",
		TotalBytes: totalBytes, StartedAt: &startedAtMS,
	})
	s.log.SessionStarted(sessionID, "send", peerDeviceID, totalBytes, len(specs))
	s.metrics.RecordSessionStart()

	var retryFiles []supervisor.RetryFile
	for _, spec := range specs {
		retryFiles = append(retryFiles, supervisor.RetryFile{SourcePath: spec.SourcePath, RelativePath: spec.RelativePath})
	}

	signals := s.sup.Track(sessionID, "send", peerDeviceID, pairCode, retryFiles, supervisor.Hooks{
		EmitNow: func(status string) { s.events.Publish(SessionEvent{SessionID: sessionID, Status: status}) },
		Finalize: func(status string, finishedAtMillis int64) error {
			return s.finalizeSession(sessionID, status, finishedAtMillis, nil, nil)
		},
	})

	eventEmitInterval := time.Duration(settings.EventEmitIntervalMS) * time.Millisecond
	hooks := outgoing.Hooks{
		FlushFiles: func(dirty []outgoing.FileProgress) error { return s.flushOutgoingFiles(sessionID, dirty) },
		FlushSession: func(p outgoing.SessionProgress) error {
			return s.st.UpsertSessionProgress(store.Session{
				ID: sessionID, Direction: "send", PeerDeviceID: peerDeviceID, Status: "running",
				TotalBytes: totalBytes, TransferredBytes: p.TransferredBytes, StartedAt: &startedAtMS,
			})
		},
		Emit: func(snap outgoing.Snapshot, forced bool) {
			if !s.sup.ShouldEmit(sessionID, forced, int64(settings.EventEmitIntervalMS)) {
				return
			}
			s.events.Publish(SessionEvent{SessionID: sessionID, TransferredBytes: snap.TransferredBytes, TotalBytes: totalBytes, SpeedBps: snap.SpeedBps, ETASeconds: snap.ETASeconds, Done: snap.Done})
		},
		Now: s.now,
	}

	runCfg := outgoing.Config{
		SessionID: sessionID, ProtocolVersion: handshake.ProtocolVersion, Codec: clientResult.Negotiated.Codec,
		SessionKey: clientResult.SessionKey, MaxInflightChunks: settings.MaxInflightChunks,
		DBFlushInterval: time.Duration(settings.DBFlushIntervalMS) * time.Millisecond, EventEmitInterval: eventEmitInterval,
	}

	runErr := outgoing.Run(conn, runCfg, specs, signals, hooks)
	s.sup.Forget(sessionID)

	finishedAt := s.now().UnixMilli()
	status := "success"
	var errCode, errMsg *string
	if runErr != nil {
		status = "failed"
		if we, ok := runErr.(*wire.Error); ok {
			if we.Code == wire.ErrSessionCanceled {
				status = "canceled"
			}
			errCode = strPtr(we.Code)
			errMsg = strPtr(we.Message)
		} else {
			msg := runErr.Error()
			errMsg = &msg
		}
	}
	s.finalizeSession(sessionID, status, finishedAt, errCode, errMsg)
}

func (s *Service) flushOutgoingFiles(sessionID string, dirty []outgoing.FileProgress) error {
	items := make([]store.File, 0, len(dirty))
	for _, f := range dirty {
		items = append(items, store.File{
			ID: f.FileID, SessionID: sessionID, CompletedBitmap: f.Bitmap,
			TransferredBytes: f.TransferredBytes, Status: f.Status, Blake3: nilIfEmpty(f.Blake3),
		})
	}
	return s.st.UpsertFilesBatch(items, s.now().UnixMilli())
}

func (s *Service) finalizeSession(sessionID, status string, finishedAtMillis int64, errCode, errMsg *string) error {
	persisted, err := s.st.GetSession(sessionID)
	if err != nil {
		return err
	}
	if persisted == nil {
		return nil
	}
	// CancelSession's Finalize hook and the pipeline's own post-Run finalize can both land
	// here for the same session; only the first to observe a non-terminal status reports it.
	alreadyTerminal := persisted.Status == "success" || persisted.Status == "failed" || persisted.Status == "canceled"

	settings := s.GetSettings()
	cleanupAfter := finishedAtMillis + int64(settings.AutoCleanupDays)*dayMillis
	persisted.Status = status
	persisted.FinishedAt = &finishedAtMillis
	persisted.CleanupAfterAt = &cleanupAfter
	if errCode != nil {
		persisted.ErrorCode = errCode
	}
	if errMsg != nil {
		persisted.ErrorMessage = errMsg
	}

	if !alreadyTerminal {
		duration := time.Duration(0)
		if persisted.StartedAt != nil {
			duration = time.Duration(finishedAtMillis-*persisted.StartedAt) * time.Millisecond
		}
		code := ""
		if errCode != nil {
			code = *errCode
		}
		s.log.SessionFinished(sessionID, status, duration, code)
		s.metrics.RecordSessionComplete(status, duration.Seconds())
	}

	return s.st.UpsertSessionProgress(*persisted)
}

// PauseSession pauses a live outgoing or incoming session.
func (s *Service) PauseSession(sessionID string) error { return s.sup.PauseSession(sessionID) }

// ResumeSession resumes a paused live session.
func (s *Service) ResumeSession(sessionID string) error { return s.sup.ResumeSession(sessionID) }

// CancelSession cancels a live session.
func (s *Service) CancelSession(sessionID string) error { return s.sup.CancelSession(sessionID) }

// RetrySession reconstitutes and delegates a failed/canceled send as a new session.
func (s *Service) RetrySession(sessionID string) (*store.Session, error) {
	retry, err := s.sup.RetrySession(sessionID)
	if err != nil {
		return nil, err
	}

	files := make([]SendFilesFile, 0, len(retry.Files))
	for _, f := range retry.Files {
		files = append(files, SendFilesFile{Path: f.SourcePath, RelativePath: f.RelativePath})
	}
	return s.SendFiles(SendFilesRequest{PeerDeviceID: retry.PeerDeviceID, PairCode: retry.PairCode, Files: files})
}

// handleIncomingConnection drives server-side handshake -> manifest -> incoming pipeline for one
// accepted socket.
func (s *Service) handleIncomingConnection(conn net.Conn) {
	defer conn.Close()

	settings := s.GetSettings()
	result, err := handshake.ServerHandshake(conn, handshake.ServerConfig{
		DeviceID: s.identity.DeviceID, DeviceName: s.identity.DisplayName,
		CodecV2Enabled:  settings.CodecV2Enabled,
		PairingRequired: settings.PairingRequired,
		LivePairCode:    s.pairCode.live,
		OnAuthFailure: func(peerDeviceID string, blockedUntil time.Time) {
			ts := blockedUntil.UnixMilli()
			_ = s.st.MarkPeerPairFailure(peerDeviceID, &ts)
		},
		OnAuthSuccess: func(peerDeviceID string) {
			_ = s.st.MarkPeerPairSuccess(peerDeviceID, s.now().UnixMilli())
		},
		Now: s.now,
	})
	if err != nil {
		s.log.AuthFailed("", conn.RemoteAddr().String(), err.Error())
		return
	}

	// MANIFEST carries the session ID itself, so it (and the MANIFEST_ACK reply) is keyed
	// with a nil AAD; every frame after this one uses aad=[]byte(sessionID).
	msg, err := wire.ReadFrame(conn, result.SessionKey, nil, nil)
	if err != nil {
		return
	}
	mf, ok := msg.(wire.Manifest)
	if !ok {
		return
	}

	reconciled, err := manifest.Reconcile(mf, settings.DefaultDownloadDir, s.st.GetFileBitmap)
	if err != nil {
		return
	}

	sessionID := mf.SessionID
	var totalBytes int64
	specs := make([]incoming.FileSpec, 0, len(reconciled))
	fileRows := make([]store.File, 0, len(reconciled))
	for _, r := range reconciled {
		totalBytes += int64(r.File.SizeBytes)
		specs = append(specs, incoming.FileSpec{
			FileID: r.File.FileID, RelativePath: r.File.RelativePath, SizeBytes: int64(r.File.SizeBytes),
			ChunkSize: int64(r.File.ChunkSize), ChunkCount: int64(r.File.ChunkCount),
			TargetPath: r.TargetPath, PartPath: r.PartPath, Bitmap: r.Bitmap,
		})
		targetPath := r.TargetPath
		fileRows = append(fileRows, store.File{
			ID: r.File.FileID, SessionID: sessionID, RelativePath: r.File.RelativePath,
			TargetPath: &targetPath, SizeBytes: int64(r.File.SizeBytes), ChunkSize: int64(r.File.ChunkSize),
			ChunkCount: int64(r.File.ChunkCount), CompletedBitmap: r.Bitmap, TransferredBytes: r.TransferredBytes,
			Status: "running", MimeType: r.File.MimeType, IsFolderArchive: r.File.IsFolderArchive,
		})
	}

	now := s.now().UnixMilli()
	saveDir := mf.SaveDir
	if saveDir == "" {
		saveDir = settings.DefaultDownloadDir
	}
	_ = s.st.InsertSession(store.Session{
		ID: sessionID, Direction: "receive", PeerDeviceID: result.PeerDeviceID, PeerName: result.PeerName,
		Status: "running", TotalBytes: totalBytes, SaveDir: saveDir, CreatedAt: now, StartedAt: &now,
	})
	_ = s.st.UpsertFilesBatch(fileRows, now)

	if err := wire.WriteFrame(conn, manifest.BuildAck(sessionID, reconciled), result.Negotiated.Codec, result.SessionKey, nil); err != nil {
		return
	}
	s.log.SessionStarted(sessionID, "receive", result.PeerDeviceID, totalBytes, len(specs))
	s.metrics.RecordSessionStart()

	signals := s.sup.Track(sessionID, "receive", result.PeerDeviceID, "", nil, supervisor.Hooks{
		EmitNow: func(status string) { s.events.Publish(SessionEvent{SessionID: sessionID, Status: status}) },
		Finalize: func(status string, finishedAtMillis int64) error {
			return s.finalizeSession(sessionID, status, finishedAtMillis, nil, nil)
		},
	})
	s.runIncomingPipeline(conn, sessionID, result, specs, totalBytes, signals)
}

func (s *Service) runIncomingPipeline(conn net.Conn, sessionID string, result handshake.ServerResult, specs []incoming.FileSpec, totalBytes int64, signals *control.Signals) {
	settings := s.GetSettings()
	hooks := incoming.Hooks{
		FlushFiles: func(dirty []incoming.FileProgress) error { return s.flushIncomingFiles(sessionID, dirty) },
		FlushSession: func(p incoming.SessionProgress) error {
			return s.st.UpsertSessionProgress(store.Session{
				ID: sessionID, Direction: "receive", PeerDeviceID: result.PeerDeviceID, PeerName: result.PeerName,
				Status: p.Status, TotalBytes: totalBytes, TransferredBytes: p.TransferredBytes,
			})
		},
		Emit: func(snap incoming.Snapshot, forced bool) {
			if !s.sup.ShouldEmit(sessionID, forced, int64(settings.EventEmitIntervalMS)) {
				return
			}
			s.events.Publish(SessionEvent{SessionID: sessionID, TransferredBytes: snap.TransferredBytes, TotalBytes: totalBytes, SpeedBps: snap.SpeedBps, ETASeconds: snap.ETASeconds, Done: snap.Done})
		},
		Now: s.now,
	}

	runCfg := incoming.Config{
		SessionID: sessionID, Codec: result.Negotiated.Codec, SessionKey: result.SessionKey,
		AckBatchV2: result.Negotiated.AckBatchV2, AckBatchSize: settings.AckBatchSize,
		AckFlushInterval: time.Duration(settings.AckFlushIntervalMS) * time.Millisecond,
	}

	runErr := incoming.Run(conn, runCfg, specs, signals, hooks)
	s.sup.Forget(sessionID)

	finishedAt := s.now().UnixMilli()
	status := "success"
	var errCode, errMsg *string
	if runErr != nil {
		status = "failed"
		if we, ok := runErr.(*wire.Error); ok {
			if we.Code == wire.ErrSessionCanceled {
				status = "canceled"
			}
			errCode = strPtr(we.Code)
			errMsg = strPtr(we.Message)
		} else {
			msg := runErr.Error()
			errMsg = &msg
		}
	}
	s.finalizeSession(sessionID, status, finishedAt, errCode, errMsg)
}

func (s *Service) flushIncomingFiles(sessionID string, dirty []incoming.FileProgress) error {
	items := make([]store.File, 0, len(dirty))
	for _, f := range dirty {
		items = append(items, store.File{
			ID: f.FileID, SessionID: sessionID, CompletedBitmap: f.Bitmap,
			TransferredBytes: f.TransferredBytes, Status: f.Status, TargetPath: nilIfEmpty(f.TargetPath),
		})
	}
	return s.st.UpsertFilesBatch(items, s.now().UnixMilli())
}

func strPtr(s string) *string { return &s }

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyBitmapBytes(chunkCount int64) []byte {
	byteLen := (chunkCount + 7) / 8
	if byteLen <= 0 {
		return []byte{}
	}
	return make([]byte, byteLen)
}
