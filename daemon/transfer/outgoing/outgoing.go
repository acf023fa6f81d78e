// Package outgoing drives the sender's data phase: a fair chunk scheduler, an in-flight
// window with retry/timeout handling, and periodic persistence and progress emission.
package outgoing

import (
	"time"

	"github.com/airdock-app/airdock/internal/wire"
)

// MaxRetries is the number of times a chunk may be retransmitted before the session fails.
const MaxRetries = 3

// AckReadTimeout bounds how long one scheduler iteration waits for a frame before sweeping
// the in-flight window for timeouts.
const AckReadTimeout = 40 * time.Millisecond

// InflightTimeout is how long a chunk may sit unacknowledged before being treated as timed out.
const InflightTimeout = 3000 * time.Millisecond

// FileSpec describes one file the scheduler must drive to completion.
type FileSpec struct {
	FileID        string
	SourcePath    string
	RelativePath  string
	SizeBytes     int64
	ChunkSize     int64
	ChunkCount    int64
	MissingChunks []int64
}

// FileProgress is the batched, dirty-only view handed to the persistence flush hook.
type FileProgress struct {
	FileID           string
	Bitmap           []byte
	TransferredBytes int64
	Status           string
	Blake3           string
}

// SessionProgress is handed to the session-level persistence flush hook.
type SessionProgress struct {
	TransferredBytes int64
	Status           string
	RetransmitChunks int64
}

// Snapshot is the progress event emitted to subscribers at EventEmitInterval.
type Snapshot struct {
	SessionID        string
	TransferredBytes int64
	SpeedBps         float64
	ETASeconds       float64
	InflightChunks   int
	RetransmitChunks int64
	ProtocolVersion  uint16
	Codec            wire.Codec
	Done             bool
}

// Hooks are the side effects the scheduler performs outside of the wire protocol itself.
type Hooks struct {
	FlushFiles   func(dirty []FileProgress) error
	FlushSession func(progress SessionProgress) error
	Emit         func(snap Snapshot, forced bool)
	Now          func() time.Time
}

func (h Hooks) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Config parameterizes one outgoing session run.
type Config struct {
	SessionID         string
	ProtocolVersion   uint16
	Codec             wire.Codec
	SessionKey        []byte
	MaxInflightChunks int
	DBFlushInterval   time.Duration
	EventEmitInterval time.Duration
}
