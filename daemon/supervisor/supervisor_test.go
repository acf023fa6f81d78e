package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/airdock-app/airdock/daemon/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st })
	return st
}

func fixedNow(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestPauseResumeFlipsSignalsAndEmits(t *testing.T) {
	sup := New(newTestStore(t), fixedNow(1000))
	var emitted []string
	signals := sup.Track("s1", "send", "peer-1", "123456", nil, Hooks{
		EmitNow: func(status string) { emitted = append(emitted, status) },
	})

	if err := sup.PauseSession("s1"); err != nil {
		t.Fatalf("PauseSession: %v", err)
	}
	if !signals.Paused() {
		t.Error("expected signals.Paused() to be true after PauseSession")
	}

	if err := sup.ResumeSession("s1"); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if signals.Paused() {
		t.Error("expected signals.Paused() to be false after ResumeSession")
	}

	want := []string{"paused", "running"}
	if len(emitted) != len(want) || emitted[0] != want[0] || emitted[1] != want[1] {
		t.Errorf("emitted = %v, want %v", emitted, want)
	}
}

func TestPauseUnknownSessionErrors(t *testing.T) {
	sup := New(newTestStore(t), fixedNow(1000))
	if err := sup.PauseSession("missing"); err == nil {
		t.Fatal("expected error pausing an untracked session")
	}
}

func TestCancelSessionSetsSignalAndFinalizes(t *testing.T) {
	sup := New(newTestStore(t), fixedNow(5000))
	var finalizedStatus string
	var finalizedAt int64
	var emitted bool
	signals := sup.Track("s1", "send", "peer-1", "123456", nil, Hooks{
		Finalize: func(status string, finishedAtMillis int64) error {
			finalizedStatus = status
			finalizedAt = finishedAtMillis
			return nil
		},
		EmitNow: func(string) { emitted = true },
	})

	if err := sup.CancelSession("s1"); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if !signals.Canceled() {
		t.Error("expected signals.Canceled() to be true")
	}
	if finalizedStatus != "canceled" {
		t.Errorf("finalizedStatus = %q, want canceled", finalizedStatus)
	}
	if finalizedAt != 5000 {
		t.Errorf("finalizedAt = %d, want 5000", finalizedAt)
	}
	if !emitted {
		t.Error("expected EmitNow to be called")
	}
}

func TestShouldEmitThrottlesNonForcedEmits(t *testing.T) {
	ms := int64(1000)
	sup := New(newTestStore(t), func() time.Time { return time.UnixMilli(ms) })
	sup.Track("s1", "send", "peer-1", "123456", nil, Hooks{})

	if !sup.ShouldEmit("s1", false, 500) {
		t.Error("expected first emit to pass (no prior emit recorded)")
	}
	ms += 100
	if sup.ShouldEmit("s1", false, 500) {
		t.Error("expected emit within throttle interval to be dropped")
	}
	ms += 500
	if !sup.ShouldEmit("s1", false, 500) {
		t.Error("expected emit past throttle interval to pass")
	}
	ms += 1
	if !sup.ShouldEmit("s1", true, 500) {
		t.Error("expected forced emit to always pass")
	}
}

func TestShouldEmitForUntrackedSessionFollowsForced(t *testing.T) {
	sup := New(newTestStore(t), fixedNow(1000))
	if sup.ShouldEmit("ghost", false, 500) {
		t.Error("expected non-forced emit for untracked session to be dropped")
	}
	if !sup.ShouldEmit("ghost", true, 500) {
		t.Error("expected forced emit for untracked session to pass")
	}
}

func TestRetrySessionRejectsNonSendDirection(t *testing.T) {
	st := newTestStore(t)
	sup := New(st, fixedNow(1000))
	if err := st.InsertSession(store.Session{
		ID: "s1", Direction: "receive", Status: "failed", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	sup.Track("s1", "receive", "peer-1", "123456", nil, Hooks{})

	if _, err := sup.RetrySession("s1"); err == nil {
		t.Fatal("expected error retrying a receive session")
	}
}

func TestRetrySessionRejectsNonRetryableStatus(t *testing.T) {
	st := newTestStore(t)
	sup := New(st, fixedNow(1000))
	if err := st.InsertSession(store.Session{
		ID: "s1", Direction: "send", Status: "running", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	sup.Track("s1", "send", "peer-1", "123456", nil, Hooks{})

	if _, err := sup.RetrySession("s1"); err == nil {
		t.Fatal("expected error retrying a running session")
	}
}

func TestRetrySessionRequiresCachedPairCode(t *testing.T) {
	st := newTestStore(t)
	sup := New(st, fixedNow(1000))
	if err := st.InsertSession(store.Session{
		ID: "s1", Direction: "send", Status: "failed", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	// Not tracked live, so no pair code is cached anywhere (e.g. after a daemon restart).

	if _, err := sup.RetrySession("s1"); err == nil {
		t.Fatal("expected error retrying a session with no cached pair code")
	}
}

func TestRetrySessionReconstitutesSourceFiles(t *testing.T) {
	st := newTestStore(t)
	sup := New(st, fixedNow(1000))
	if err := st.InsertSession(store.Session{
		ID: "s1", Direction: "send", PeerDeviceID: "peer-1", Status: "failed", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	srcA := "/home/user/docs/a.txt"
	if err := st.InsertOrUpdateFile(store.File{
		ID: "f1", SessionID: "s1", RelativePath: "a.txt", SourcePath: &srcA, SizeBytes: 10,
	}, 1000); err != nil {
		t.Fatal(err)
	}
	// A file with no recorded source path (shouldn't happen for a send, but must not panic).
	if err := st.InsertOrUpdateFile(store.File{
		ID: "f2", SessionID: "s1", RelativePath: "b.txt", SizeBytes: 5,
	}, 1000); err != nil {
		t.Fatal(err)
	}

	sup.Track("s1", "send", "peer-1", "778899", nil, Hooks{})

	retry, err := sup.RetrySession("s1")
	if err != nil {
		t.Fatalf("RetrySession: %v", err)
	}
	if retry.PairCode != "778899" {
		t.Errorf("PairCode = %q, want 778899", retry.PairCode)
	}
	if retry.PeerDeviceID != "peer-1" {
		t.Errorf("PeerDeviceID = %q, want peer-1", retry.PeerDeviceID)
	}
	if len(retry.Files) != 1 || retry.Files[0].SourcePath != srcA {
		t.Errorf("Files = %+v, want exactly one file with source path %q", retry.Files, srcA)
	}
}

func TestForgetRemovesLiveSession(t *testing.T) {
	sup := New(newTestStore(t), fixedNow(1000))
	sup.Track("s1", "send", "peer-1", "123456", nil, Hooks{})
	sup.Forget("s1")

	if err := sup.PauseSession("s1"); err == nil {
		t.Fatal("expected error pausing a forgotten session")
	}
}
