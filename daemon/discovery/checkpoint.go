package discovery

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var bucketSightings = []byte("discovery_sightings")

// Checkpoint persists the last-seen timestamp of every device ever sighted, so a freshly
// restarted daemon can tell a recently-gone peer apart from one it has simply never met.
type Checkpoint struct {
	db *bolt.DB
}

// OpenCheckpoint opens (creating if needed) a bolt-backed sighting checkpoint at path.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketSightings)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Checkpoint{db: db}, nil
}

// Close closes the underlying bolt database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}

// RecordSighting stores deviceID's last-seen timestamp.
func (c *Checkpoint) RecordSighting(deviceID string, lastSeenAtMillis int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketSightings)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(lastSeenAtMillis))
		return bk.Put([]byte(deviceID), buf)
	})
}

// LastSighting returns the last recorded timestamp for deviceID, or ok=false if never seen.
func (c *Checkpoint) LastSighting(deviceID string) (lastSeenAtMillis int64, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketSightings)
		v := bk.Get([]byte(deviceID))
		if v == nil {
			return nil
		}
		if len(v) >= 8 {
			lastSeenAtMillis = int64(binary.BigEndian.Uint64(v))
			ok = true
		}
		return nil
	})
	return lastSeenAtMillis, ok, err
}
