package outgoing

import "time"

// ChunkKey identifies one chunk within a multi-file session.
type ChunkKey struct {
	FileIndex  int
	ChunkIndex int64
}

// inflightEntry tracks one chunk currently in flight, awaiting an ACK.
type inflightEntry struct {
	sentAt  time.Time
	retries int
}

// deque is an unbounded double-ended queue of ChunkKey. Retries are rare relative to the
// steady-state pop-from-front traffic, so the O(n) PushFront is an acceptable trade for
// simplicity.
type deque struct {
	items []ChunkKey
}

func (d *deque) Len() int { return len(d.items) }

func (d *deque) PushBack(k ChunkKey) {
	d.items = append(d.items, k)
}

func (d *deque) PushFront(k ChunkKey) {
	d.items = append([]ChunkKey{k}, d.items...)
}

func (d *deque) PopFront() (ChunkKey, bool) {
	if len(d.items) == 0 {
		return ChunkKey{}, false
	}
	k := d.items[0]
	d.items = d.items[1:]
	return k, true
}

// buildFairQueue flattens each file's missing-chunk list into one global queue, taking one
// chunk from each non-empty file in turn.
func buildFairQueue(files []*fileState) *deque {
	queues := make([][]int64, len(files))
	for i, f := range files {
		queues[i] = append([]int64(nil), f.spec.MissingChunks...)
	}

	q := &deque{}
	for {
		progressed := false
		for i := range queues {
			if len(queues[i]) == 0 {
				continue
			}
			q.PushBack(ChunkKey{FileIndex: i, ChunkIndex: queues[i][0]})
			queues[i] = queues[i][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return q
}

// scheduler owns the fair queue, the in-flight map, and retry counts for one outgoing session.
type scheduler struct {
	files       []*fileState
	fairQueue   *deque
	inflight    map[ChunkKey]*inflightEntry
	retryCounts map[ChunkKey]int
}

func newScheduler(files []*fileState) *scheduler {
	return &scheduler{
		files:       files,
		fairQueue:   buildFairQueue(files),
		inflight:    make(map[ChunkKey]*inflightEntry),
		retryCounts: make(map[ChunkKey]int),
	}
}

func (s *scheduler) idle() bool {
	return s.fairQueue.Len() == 0 && len(s.inflight) == 0
}

// fileState is one file's live scheduling and persistence state within an outgoing session.
type fileState struct {
	spec             FileSpec
	bitmap           []byte
	transferredBytes int64
	remaining        int64
	doneSent         bool
	dirty            bool
}
