// Package supervisor tracks live transfer sessions: their pause/cancel signal, emit
// throttling, and the bookkeeping needed to reconstitute a failed or canceled send as a new
// retry session.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/airdock-app/airdock/daemon/store"
	"github.com/airdock-app/airdock/daemon/transfer/control"
	"github.com/airdock-app/airdock/internal/wire"
)

// Hooks are the side effects pause/resume/cancel perform outside of the in-memory signal flip.
type Hooks struct {
	// EmitNow forces an immediate progress snapshot reflecting the session's new status.
	EmitNow func(status string)
	// Finalize persists a terminal status and finished_at timestamp. Used by CancelSession.
	Finalize func(status string, finishedAtMillis int64) error
}

// liveSession is the supervisor's bookkeeping for one session currently being driven by a
// pipeline.
type liveSession struct {
	id           string
	direction    string
	peerDeviceID string
	pairCode     string
	sourceFiles  []RetryFile
	signals      *control.Signals
	hooks        Hooks
	lastEmitMS   int64
}

// RetryFile names one file as reconstituted for a retry: its original source path and the
// relative path it should keep within the new session.
type RetryFile struct {
	SourcePath   string
	RelativePath string
}

// RetryInput is what retry_session hands back to the caller to delegate into send_files.
type RetryInput struct {
	PeerDeviceID string
	PairCode     string
	Files        []RetryFile
}

// retryableStatuses names the persisted session statuses that may be retried.
var retryableStatuses = map[string]bool{
	"failed":   true,
	"canceled": true,
}

// Supervisor is the process-wide registry of live sessions.
type Supervisor struct {
	mu   sync.Mutex
	live map[string]*liveSession
	st   *store.Store
	now  func() time.Time

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
}

// New returns a Supervisor backed by st. now defaults to time.Now when nil.
func New(st *store.Store, now func() time.Time) *Supervisor {
	if now == nil {
		now = time.Now
	}
	return &Supervisor{
		live: make(map[string]*liveSession),
		st:   st,
		now:  now,
	}
}

// Track registers a newly started session and returns the control.Signals its pipeline must
// poll. pairCode is cached in memory only, never persisted, so that retry_session can later
// reconstitute a send without the caller supplying it again.
func (s *Supervisor) Track(id, direction, peerDeviceID, pairCode string, files []RetryFile, hooks Hooks) *control.Signals {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := control.New()
	s.live[id] = &liveSession{
		id: id, direction: direction, peerDeviceID: peerDeviceID, pairCode: pairCode,
		sourceFiles: files, signals: signals, hooks: hooks,
	}
	return signals
}

// Forget removes a session from the live registry once its pipeline has returned.
func (s *Supervisor) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
}

func (s *Supervisor) lookup(id string) (*liveSession, error) {
	ls, ok := s.live[id]
	if !ok {
		return nil, wire.NewError(wire.ErrSessionNotRunning, "session "+id+" is not running")
	}
	return ls, nil
}

// PauseSession flips the session's paused signal and force-emits a snapshot.
func (s *Supervisor) PauseSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.lookup(id)
	if err != nil {
		return err
	}
	ls.signals.Pause()
	if ls.hooks.EmitNow != nil {
		ls.hooks.EmitNow("paused")
	}
	return nil
}

// ResumeSession clears the session's paused signal and force-emits a snapshot.
func (s *Supervisor) ResumeSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.lookup(id)
	if err != nil {
		return err
	}
	ls.signals.Resume()
	if ls.hooks.EmitNow != nil {
		ls.hooks.EmitNow("running")
	}
	return nil
}

// CancelSession sets the canceled signal, persists the terminal status, and force-emits a
// snapshot.
func (s *Supervisor) CancelSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.lookup(id)
	if err != nil {
		return err
	}
	ls.signals.Cancel()
	if ls.hooks.Finalize != nil {
		if err := ls.hooks.Finalize("canceled", s.now().UnixMilli()); err != nil {
			return err
		}
	}
	if ls.hooks.EmitNow != nil {
		ls.hooks.EmitNow("canceled")
	}
	return nil
}

// ShouldEmit applies the per-session emit throttle: forced emits always pass; non-forced
// emits are dropped when less than intervalMS has elapsed since the last one that passed.
func (s *Supervisor) ShouldEmit(id string, forced bool, intervalMS int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMS := s.now().UnixMilli()
	ls, ok := s.live[id]
	if !ok {
		return forced
	}
	if !forced && nowMS-ls.lastEmitMS < intervalMS {
		return false
	}
	ls.lastEmitMS = nowMS
	return true
}

// RetrySession validates that persisted reports the session as retryable and reconstitutes a
// send_files input from its stored files and cached pair code.
func (s *Supervisor) RetrySession(id string) (RetryInput, error) {
	s.mu.Lock()
	cached, tracked := s.live[id]
	s.mu.Unlock()

	persisted, err := s.st.GetSession(id)
	if err != nil {
		return RetryInput{}, err
	}
	if persisted == nil {
		return RetryInput{}, wire.NewError(wire.ErrSessionNotFound, "session "+id+" not found")
	}
	if persisted.Direction != "send" {
		return RetryInput{}, wire.NewError(wire.ErrSessionRetryDirectionInvalid, "only send sessions may be retried")
	}
	if !retryableStatuses[persisted.Status] {
		return RetryInput{}, wire.NewError(wire.ErrSessionNotRetryable, "session "+id+" status "+persisted.Status+" is not retryable")
	}

	var pairCode string
	if tracked {
		pairCode = cached.pairCode
	}
	if pairCode == "" {
		return RetryInput{}, wire.NewError(wire.ErrRetryPairCodeMissing, "no cached pair code for session "+id)
	}

	files := make([]RetryFile, 0, len(persisted.Files))
	for _, f := range persisted.Files {
		if f.SourcePath == nil || *f.SourcePath == "" {
			continue
		}
		files = append(files, RetryFile{SourcePath: *f.SourcePath, RelativePath: f.RelativePath})
	}

	return RetryInput{
		PeerDeviceID: persisted.PeerDeviceID,
		PairCode:     pairCode,
		Files:        files,
	}, nil
}

// StartCleanupSweep runs store.CleanupExpired once immediately and then on every tick of
// interval until StopCleanupSweep is called.
func (s *Supervisor) StartCleanupSweep(interval time.Duration) {
	s.mu.Lock()
	if s.cleanupCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cleanupCancel = cancel
	s.cleanupDone = make(chan struct{})
	s.mu.Unlock()

	go s.cleanupLoop(ctx, interval)
}

func (s *Supervisor) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer close(s.cleanupDone)

	sweep := func() {
		_ = s.st.CleanupExpired(s.now().UnixMilli())
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// StopCleanupSweep stops the background sweep loop, waiting up to 5s for it to exit.
func (s *Supervisor) StopCleanupSweep() {
	s.mu.Lock()
	cancel := s.cleanupCancel
	done := s.cleanupDone
	s.cleanupCancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
