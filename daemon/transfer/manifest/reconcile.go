package manifest

import (
	"github.com/airdock-app/airdock/internal/bitmap"
	"github.com/airdock-app/airdock/internal/wire"
)

// BitmapLookup resolves the previously-persisted completed-chunk bitmap for (sessionID, fileID),
// returning nil if none exists.
type BitmapLookup func(sessionID, fileID string) ([]byte, error)

// ReconciledFile is one file's resume state after reconciliation, ready to persist and to drive
// the incoming pipeline.
type ReconciledFile struct {
	File             wire.ManifestFile
	Bitmap           []byte
	MissingChunks    []uint32
	TransferredBytes int64
	TargetPath       string
	PartPath         string
}

// Reconcile runs the receiver's four manifest-stage steps for every file in m: look up any
// prior bitmap (or start empty), compute the missing-chunk list and transferred-byte count, and
// resolve the target/staging paths.
func Reconcile(m wire.Manifest, defaultDownloadDir string, lookup BitmapLookup) ([]ReconciledFile, error) {
	saveDir := m.SaveDir
	if saveDir == "" {
		saveDir = defaultDownloadDir
	}

	out := make([]ReconciledFile, 0, len(m.Files))
	for _, f := range m.Files {
		chunkCount := int64(f.ChunkCount)
		chunkSize := int64(f.ChunkSize)
		sizeBytes := int64(f.SizeBytes)

		prior, err := lookup(m.SessionID, f.FileID)
		if err != nil {
			return nil, err
		}
		bm := prior
		if bm == nil {
			bm = bitmap.Empty(chunkCount)
		}

		missing := bitmap.Missing(bm, chunkCount)
		missingU32 := make([]uint32, len(missing))
		for i, idx := range missing {
			missingU32[i] = uint32(idx)
		}

		out = append(out, ReconciledFile{
			File:             f,
			Bitmap:           bm,
			MissingChunks:    missingU32,
			TransferredBytes: bitmap.CompletedBytes(bm, chunkCount, chunkSize, sizeBytes),
			TargetPath:       ResolveTargetPath(saveDir, f.RelativePath),
			PartPath:         BuildPartPath(saveDir, m.SessionID, f.RelativePath),
		})
	}
	return out, nil
}

// BuildAck assembles the MANIFEST_ACK frame naming each file's missing chunk indexes.
func BuildAck(sessionID string, reconciled []ReconciledFile) wire.ManifestAck {
	entries := make([]wire.MissingChunks, 0, len(reconciled))
	for _, r := range reconciled {
		entries = append(entries, wire.MissingChunks{
			FileID:              r.File.FileID,
			MissingChunkIndexes: r.MissingChunks,
		})
	}
	return wire.ManifestAck{SessionID: sessionID, MissingChunks: entries}
}

// ScheduleIndexes returns the chunk indexes the sender must transmit for fileID: the
// MANIFEST_ACK's authoritative list when present, else localBitmapMissing as a fallback.
func ScheduleIndexes(ack wire.ManifestAck, fileID string, localBitmapMissing []int64) []int64 {
	for _, entry := range ack.MissingChunks {
		if entry.FileID != fileID {
			continue
		}
		out := make([]int64, len(entry.MissingChunkIndexes))
		for i, idx := range entry.MissingChunkIndexes {
			out[i] = int64(idx)
		}
		return out
	}
	return localBitmapMissing
}
