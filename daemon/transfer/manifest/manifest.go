package manifest

import (
	"github.com/airdock-app/airdock/internal/bitmap"
	"github.com/airdock-app/airdock/internal/chunkio"
	"github.com/airdock-app/airdock/internal/wire"
)

// SourceFile describes one file the sender intends to transfer, prior to manifest construction.
type SourceFile struct {
	FileID          string
	SourcePath      string
	RelativePath    string
	SizeBytes       int64
	MimeType        *string
	IsFolderArchive bool
}

// BuildFile hashes sourcePath and returns its wire.ManifestFile entry, chunked at chunkSize
// bytes.
func BuildFile(f SourceFile, chunkSize int64) (wire.ManifestFile, error) {
	hash, err := chunkio.FileHashHex(f.SourcePath)
	if err != nil {
		return wire.ManifestFile{}, err
	}
	chunkCount := bitmap.ChunkCount(f.SizeBytes, chunkSize)

	return wire.ManifestFile{
		FileID:          f.FileID,
		RelativePath:    f.RelativePath,
		SizeBytes:       uint64(f.SizeBytes),
		ChunkSize:       uint32(chunkSize),
		ChunkCount:      uint32(chunkCount),
		Blake3:          hash,
		MimeType:        f.MimeType,
		IsFolderArchive: f.IsFolderArchive,
	}, nil
}

// Build hashes every source file and assembles the MANIFEST frame the sender transmits.
func Build(sessionID, saveDir string, files []SourceFile, chunkSize int64) (wire.Manifest, error) {
	entries := make([]wire.ManifestFile, 0, len(files))
	for _, f := range files {
		entry, err := BuildFile(f, chunkSize)
		if err != nil {
			return wire.Manifest{}, err
		}
		entries = append(entries, entry)
	}
	return wire.Manifest{
		SessionID: sessionID,
		Direction: "send",
		SaveDir:   saveDir,
		Files:     entries,
	}, nil
}
