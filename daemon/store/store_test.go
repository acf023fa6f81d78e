package store

import (
	"path/filepath"
	"testing"

	"github.com/airdock-app/airdock/daemon/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "airdock.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadSettingsFillsDefaultsAndPersists(t *testing.T) {
	s := openTestStore(t)

	settings, err := s.LoadSettings("/tmp/downloads")
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings.DefaultDownloadDir != "/tmp/downloads" {
		t.Errorf("got %q, want %q", settings.DefaultDownloadDir, "/tmp/downloads")
	}
	if settings.MaxParallelFiles != config.DefaultSettings("/tmp/downloads").MaxParallelFiles {
		t.Errorf("unexpected default max_parallel_files: %d", settings.MaxParallelFiles)
	}

	settings.MaxParallelFiles = 999 // out of range, should clamp on next load
	if err := s.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	reloaded, err := s.LoadSettings("/tmp/downloads")
	if err != nil {
		t.Fatalf("reload LoadSettings failed: %v", err)
	}
	if reloaded.MaxParallelFiles != 8 {
		t.Errorf("got %d, want clamped 8", reloaded.MaxParallelFiles)
	}
}

func TestSessionUpsertPreservesStartedAt(t *testing.T) {
	s := openTestStore(t)

	started := int64(1000)
	session := Session{
		ID: "sess-1", Direction: "send", PeerDeviceID: "dev-2", PeerName: "Bob",
		Status: "running", TotalBytes: 100, SaveDir: "/tmp", CreatedAt: 500,
		StartedAt: &started,
	}
	if err := s.InsertSession(session); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	session.TransferredBytes = 50
	session.StartedAt = nil // simulate a later progress update that doesn't know started_at
	if err := s.UpsertSessionProgress(session); err != nil {
		t.Fatalf("UpsertSessionProgress failed: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.StartedAt == nil || *got.StartedAt != started {
		t.Errorf("started_at not preserved: got %v, want %d", got.StartedAt, started)
	}
	if got.TransferredBytes != 50 {
		t.Errorf("got %d, want 50", got.TransferredBytes)
	}
}

func TestFileUpsertPreservesBitmapWhenOmitted(t *testing.T) {
	s := openTestStore(t)

	if err := s.InsertSession(Session{ID: "sess-1", Direction: "receive", PeerDeviceID: "dev-1", PeerName: "Alice", Status: "running", SaveDir: "/tmp", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	bitmap := []byte{0b00000101}
	if err := s.InsertOrUpdateFile(File{
		ID: "file-1", SessionID: "sess-1", RelativePath: "a.bin", SizeBytes: 100, ChunkSize: 10,
		ChunkCount: 10, CompletedBitmap: bitmap, Status: "running",
	}, 10); err != nil {
		t.Fatalf("InsertOrUpdateFile failed: %v", err)
	}

	// A later update that doesn't know the bitmap must not clobber it.
	if err := s.InsertOrUpdateFile(File{
		ID: "file-1", SessionID: "sess-1", RelativePath: "a.bin", SizeBytes: 100, ChunkSize: 10,
		ChunkCount: 10, TransferredBytes: 30, Status: "running",
	}, 20); err != nil {
		t.Fatalf("second InsertOrUpdateFile failed: %v", err)
	}

	got, err := s.GetFileBitmap("sess-1", "file-1")
	if err != nil {
		t.Fatalf("GetFileBitmap failed: %v", err)
	}
	if len(got) != 1 || got[0] != bitmap[0] {
		t.Errorf("bitmap got %v, want %v", got, bitmap)
	}

	session, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(session.Files) != 1 || session.Files[0].TransferredBytes != 30 {
		t.Errorf("unexpected files: %+v", session.Files)
	}
}

func TestPeerPairFailureAndSuccess(t *testing.T) {
	s := openTestStore(t)

	if err := s.MarkPeerPairFailure("dev-1", nil); err != nil {
		t.Fatalf("MarkPeerPairFailure failed: %v", err)
	}
	if err := s.MarkPeerPairFailure("dev-1", nil); err != nil {
		t.Fatalf("MarkPeerPairFailure (2nd) failed: %v", err)
	}

	peers, err := s.ListStoredPeers()
	if err != nil {
		t.Fatalf("ListStoredPeers failed: %v", err)
	}
	if len(peers) != 1 || peers[0].FailedAttempts != 2 {
		t.Fatalf("unexpected peers: %+v", peers)
	}

	if err := s.MarkPeerPairSuccess("dev-1", 999); err != nil {
		t.Fatalf("MarkPeerPairSuccess failed: %v", err)
	}

	peers, err = s.ListStoredPeers()
	if err != nil {
		t.Fatalf("ListStoredPeers (2nd) failed: %v", err)
	}
	if len(peers) != 1 || peers[0].FailedAttempts != 0 || peers[0].TrustLevel != TrustTrusted {
		t.Fatalf("unexpected peers after success: %+v", peers)
	}
}

func TestMergeOnlinePeers(t *testing.T) {
	stored := []Peer{
		{DeviceID: "dev-1", DisplayName: "Alice (old name)", TrustLevel: TrustTrusted, LastSeenAt: 1},
		{DeviceID: "dev-2", DisplayName: "Offline Peer", TrustLevel: TrustUnknown, LastSeenAt: 5},
	}
	online := []Peer{
		{DeviceID: "dev-1", DisplayName: "Alice", Address: "10.0.0.5", ListenPort: 42420, LastSeenAt: 100},
	}

	merged := MergeOnlinePeers(stored, online)
	if len(merged) != 2 {
		t.Fatalf("got %d peers, want 2", len(merged))
	}
	if merged[0].DeviceID != "dev-1" || !merged[0].Online || merged[0].DisplayName != "Alice" {
		t.Errorf("unexpected first peer: %+v", merged[0])
	}
	if merged[0].TrustLevel != TrustTrusted {
		t.Errorf("online merge must keep persisted trust level, got %q", merged[0].TrustLevel)
	}
	if merged[1].DeviceID != "dev-2" || merged[1].Online {
		t.Errorf("unexpected second peer: %+v", merged[1])
	}
}

func TestCleanupExpiredDeletesPastSessions(t *testing.T) {
	s := openTestStore(t)

	cleanupAt := int64(1000)
	if err := s.InsertSession(Session{ID: "sess-expired", Direction: "send", PeerDeviceID: "d", PeerName: "d", Status: "success", SaveDir: "/tmp", CreatedAt: 1, CleanupAfterAt: &cleanupAt}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	if err := s.InsertSession(Session{ID: "sess-kept", Direction: "send", PeerDeviceID: "d", PeerName: "d", Status: "success", SaveDir: "/tmp", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	if err := s.CleanupExpired(2000); err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}

	if got, err := s.GetSession("sess-expired"); err != nil || got != nil {
		t.Errorf("expected sess-expired to be gone, got %+v, err %v", got, err)
	}
	if got, err := s.GetSession("sess-kept"); err != nil || got == nil {
		t.Errorf("expected sess-kept to survive, got %+v, err %v", got, err)
	}
}
