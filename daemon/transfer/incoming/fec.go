package incoming

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// FEC shards ride as ordinary chunks appended after a file's data range: a sender that opts a
// file into FEC recovery sends ChunkCount regular data chunks followed by parityShards parity
// chunks at indexes [ChunkCount, ChunkCount+parityShards), generated by splitting the file into
// dataShards equal-size groups and running Reed-Solomon over them. The wire framing is unaffected
// — parity chunks travel through the same CHUNK frame as data — so Recover only needs the raw
// shard bytes the receiver already collected, with nil standing in for anything not yet received.

// Encoder generates parity shards from a sender's data shards.
type Encoder struct {
	dataShards   int
	parityShards int
	rs           reedsolomon.Encoder
}

// NewEncoder builds an Encoder for dataShards data shards producing parityShards parity shards.
func NewEncoder(dataShards, parityShards int) (*Encoder, error) {
	rs, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("incoming: fec encoder: %w", err)
	}
	return &Encoder{dataShards: dataShards, parityShards: parityShards, rs: rs}, nil
}

// Encode returns the parityShards parity shards for the given data shards, which must all be the
// same length.
func (e *Encoder) Encode(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) != e.dataShards {
		return nil, fmt.Errorf("incoming: fec encoder: expected %d data shards, got %d", e.dataShards, len(dataShards))
	}
	shardLen := 0
	if len(dataShards) > 0 {
		shardLen = len(dataShards[0])
	}

	all := make([][]byte, e.dataShards+e.parityShards)
	copy(all, dataShards)
	for i := e.dataShards; i < len(all); i++ {
		all[i] = make([]byte, shardLen)
	}
	if err := e.rs.Encode(all); err != nil {
		return nil, fmt.Errorf("incoming: fec encoder: encode: %w", err)
	}
	return all[e.dataShards:], nil
}

// Recoverer reconstructs a file's missing data shards from whatever parity shards the receiver
// collected.
type Recoverer struct {
	dataShards   int
	parityShards int
	rs           reedsolomon.Encoder
}

// NewRecoverer builds a Recoverer for a file carrying dataShards data shards and parityShards
// parity shards.
func NewRecoverer(dataShards, parityShards int) (*Recoverer, error) {
	rs, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("incoming: fec recoverer: %w", err)
	}
	return &Recoverer{dataShards: dataShards, parityShards: parityShards, rs: rs}, nil
}

// Recover reconstructs missing shards in place. shards must have length dataShards+parityShards;
// a nil entry marks a shard not yet received. It returns how many data shards were reconstructed,
// or an error if more shards are missing than parityShards can recover.
func (r *Recoverer) Recover(shards [][]byte) (int, error) {
	if len(shards) != r.dataShards+r.parityShards {
		return 0, fmt.Errorf("incoming: fec recoverer: expected %d shards, got %d", r.dataShards+r.parityShards, len(shards))
	}

	missingData, missingTotal := 0, 0
	for i, s := range shards {
		if s == nil {
			missingTotal++
			if i < r.dataShards {
				missingData++
			}
		}
	}
	if missingTotal == 0 {
		return 0, nil
	}
	if missingTotal > r.parityShards {
		return 0, fmt.Errorf("incoming: fec recoverer: %d shards missing, can only recover %d", missingTotal, r.parityShards)
	}

	if err := r.rs.Reconstruct(shards); err != nil {
		return 0, fmt.Errorf("incoming: fec recoverer: reconstruct: %w", err)
	}
	return missingData, nil
}
