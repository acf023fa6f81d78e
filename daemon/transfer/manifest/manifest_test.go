package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/airdock-app/airdock/internal/bitmap"
	"github.com/airdock-app/airdock/internal/wire"
)

func TestBuildFileHashesAndCountsChunks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.bin")
	if err := os.WriteFile(src, make([]byte, 130), 0o644); err != nil {
		t.Fatal(err)
	}

	entry, err := BuildFile(SourceFile{
		FileID:       "f1",
		SourcePath:   src,
		RelativePath: "photo.bin",
		SizeBytes:    130,
	}, 64)
	if err != nil {
		t.Fatalf("BuildFile: %v", err)
	}
	if entry.ChunkCount != 3 {
		t.Errorf("chunk count = %d, want 3", entry.ChunkCount)
	}
	if entry.Blake3 == "" {
		t.Error("expected a non-empty blake3 hash")
	}
	if entry.SizeBytes != 130 || entry.ChunkSize != 64 {
		t.Errorf("unexpected size/chunk fields: %+v", entry)
	}
}

func TestReconcileWithNoPriorBitmapStartsEmpty(t *testing.T) {
	m := wire.Manifest{
		SessionID: "sess-1",
		Direction: "send",
		Files: []wire.ManifestFile{
			{FileID: "f1", RelativePath: "a/b.txt", SizeBytes: 200, ChunkSize: 64, ChunkCount: 4},
		},
	}

	lookup := func(sessionID, fileID string) ([]byte, error) { return nil, nil }

	reconciled, err := Reconcile(m, "/downloads", lookup)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(reconciled) != 1 {
		t.Fatalf("got %d reconciled files, want 1", len(reconciled))
	}
	r := reconciled[0]
	if len(r.MissingChunks) != 4 {
		t.Errorf("missing chunks = %v, want all 4 indexes", r.MissingChunks)
	}
	if r.TransferredBytes != 0 {
		t.Errorf("transferred bytes = %d, want 0", r.TransferredBytes)
	}
	wantTarget := filepath.Join("/downloads", "a", "b.txt")
	if r.TargetPath != wantTarget {
		t.Errorf("target path = %q, want %q", r.TargetPath, wantTarget)
	}
	wantPart := filepath.Join("/downloads", "a", "b.txt.sess-1.part")
	if r.PartPath != wantPart {
		t.Errorf("part path = %q, want %q", r.PartPath, wantPart)
	}
}

func TestReconcileWithPriorBitmapComputesMissingAndTransferred(t *testing.T) {
	chunkCount := int64(4)
	bm := bitmap.Empty(chunkCount)
	_ = bitmap.MarkDone(bm, 0)
	_ = bitmap.MarkDone(bm, 2)

	m := wire.Manifest{
		SessionID: "sess-2",
		Files: []wire.ManifestFile{
			{FileID: "f1", RelativePath: "video.mp4", SizeBytes: 250, ChunkSize: 64, ChunkCount: 4},
		},
	}

	lookup := func(sessionID, fileID string) ([]byte, error) {
		if sessionID == "sess-2" && fileID == "f1" {
			return bm, nil
		}
		return nil, nil
	}

	reconciled, err := Reconcile(m, "/downloads", lookup)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	r := reconciled[0]
	if len(r.MissingChunks) != 2 || r.MissingChunks[0] != 1 || r.MissingChunks[1] != 3 {
		t.Errorf("missing chunks = %v, want [1 3]", r.MissingChunks)
	}
	if r.TransferredBytes != 128 {
		t.Errorf("transferred bytes = %d, want 128", r.TransferredBytes)
	}
}

func TestReconcileUsesManifestSaveDirOverDefault(t *testing.T) {
	m := wire.Manifest{
		SessionID: "sess-3",
		SaveDir:   "/custom/save",
		Files: []wire.ManifestFile{
			{FileID: "f1", RelativePath: "doc.pdf", SizeBytes: 10, ChunkSize: 64, ChunkCount: 1},
		},
	}
	reconciled, err := Reconcile(m, "/default/downloads", func(string, string) ([]byte, error) { return nil, nil })
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := filepath.Join("/custom/save", "doc.pdf")
	if reconciled[0].TargetPath != want {
		t.Errorf("target path = %q, want %q", reconciled[0].TargetPath, want)
	}
}

func TestBuildAckNamesEachFilesMissingIndexes(t *testing.T) {
	reconciled := []ReconciledFile{
		{File: wire.ManifestFile{FileID: "f1"}, MissingChunks: []uint32{0, 2}},
		{File: wire.ManifestFile{FileID: "f2"}, MissingChunks: []uint32{}},
	}
	ack := BuildAck("sess-4", reconciled)
	if ack.SessionID != "sess-4" {
		t.Errorf("session id = %q, want sess-4", ack.SessionID)
	}
	if len(ack.MissingChunks) != 2 {
		t.Fatalf("got %d entries, want 2", len(ack.MissingChunks))
	}
	if ack.MissingChunks[0].FileID != "f1" || len(ack.MissingChunks[0].MissingChunkIndexes) != 2 {
		t.Errorf("unexpected first entry: %+v", ack.MissingChunks[0])
	}
}

func TestScheduleIndexesPrefersAckOverLocalBitmap(t *testing.T) {
	ack := wire.ManifestAck{
		SessionID: "sess-5",
		MissingChunks: []wire.MissingChunks{
			{FileID: "f1", MissingChunkIndexes: []uint32{5, 6}},
		},
	}
	got := ScheduleIndexes(ack, "f1", []int64{0, 1, 2})
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("got %v, want [5 6]", got)
	}
}

func TestScheduleIndexesFallsBackWhenFileAbsentFromAck(t *testing.T) {
	ack := wire.ManifestAck{SessionID: "sess-6"}
	got := ScheduleIndexes(ack, "f1", []int64{0, 1, 2})
	if len(got) != 3 {
		t.Errorf("got %v, want fallback [0 1 2]", got)
	}
}

func TestBuildPartPathDerivesFromBasename(t *testing.T) {
	got := BuildPartPath("/downloads", "sess-7", "nested/report.csv")
	want := filepath.Join("/downloads", "nested", "report.csv.sess-7.part")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveTargetPathNormalizesBackslashes(t *testing.T) {
	got := ResolveTargetPath("/downloads", `nested\report.csv`)
	want := filepath.Join("/downloads", "nested", "report.csv")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
