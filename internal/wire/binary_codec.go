package wire

import (
	"encoding/binary"
	"fmt"
)

// Binary variant indexes. Order matches the JSON type list; stable once shipped since a
// peer's binary codec choice is a wire contract, not an implementation detail.
const (
	variantHello uint8 = iota
	variantAuthChallenge
	variantAuthResponse
	variantAuthOK
	variantManifest
	variantManifestAck
	variantChunk
	variantChunkBinary
	variantAck
	variantAckBatch
	variantFileDone
	variantSessionDone
	variantError
	variantPing
)

type binWriter struct {
	buf []byte
}

func (w *binWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *binWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *binWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *binWriter) i64(v int64) { w.u64(uint64(v)) }

func (w *binWriter) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *binWriter) str(v string) { w.bytes([]byte(v)) }

func (w *binWriter) optStr(v *string) {
	if v == nil {
		w.bool(false)
		return
	}
	w.bool(true)
	w.str(*v)
}

func (w *binWriter) optU16(v *uint16) {
	if v == nil {
		w.bool(false)
		return
	}
	w.bool(true)
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], *v)
	w.buf = append(w.buf, b[:]...)
}

func (w *binWriter) strSlice(v []string) {
	w.u32(uint32(len(v)))
	for _, s := range v {
		w.str(s)
	}
}

func (w *binWriter) optStrSlice(v []string) {
	if v == nil {
		w.bool(false)
		return
	}
	w.bool(true)
	w.strSlice(v)
}

type binReader struct {
	buf []byte
	pos int
}

func (r *binReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("binary frame truncated: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *binReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *binReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *binReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *binReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *binReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *binReader) bytesField() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *binReader) str() (string, error) {
	b, err := r.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *binReader) optStr() (*string, error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *binReader) optU16() (*uint16, error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	if err := r.need(2); err != nil {
		return nil, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return &v, nil
}

func (r *binReader) strSlice() ([]string, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = r.str()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *binReader) optStrSlice() ([]string, error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	return r.strSlice()
}

// EncodeBinary serializes msg into the deterministic flat binary codec used when
// "codec-bin-v2" is negotiated.
func EncodeBinary(msg Message) ([]byte, error) {
	w := &binWriter{}

	switch m := msg.(type) {
	case Hello:
		w.u8(variantHello)
		w.str(m.DeviceID)
		w.str(m.DeviceName)
		w.str(m.Nonce)
		w.optU16(m.ProtocolVersion)
		w.optStrSlice(m.Capabilities)
	case AuthChallenge:
		w.u8(variantAuthChallenge)
		w.str(m.Nonce)
		w.i64(m.ExpiresAt)
	case AuthResponse:
		w.u8(variantAuthResponse)
		w.str(m.PairCode)
		w.str(m.Proof)
	case AuthOK:
		w.u8(variantAuthOK)
		w.str(m.PeerDeviceID)
		w.str(m.PeerName)
		w.optU16(m.ProtocolVersion)
		w.optStrSlice(m.Capabilities)
	case Manifest:
		w.u8(variantManifest)
		w.str(m.SessionID)
		w.str(m.Direction)
		w.str(m.SaveDir)
		w.u32(uint32(len(m.Files)))
		for _, f := range m.Files {
			w.str(f.FileID)
			w.str(f.RelativePath)
			w.u64(f.SizeBytes)
			w.u32(f.ChunkSize)
			w.u32(f.ChunkCount)
			w.str(f.Blake3)
			w.optStr(f.MimeType)
			w.bool(f.IsFolderArchive)
		}
	case ManifestAck:
		w.u8(variantManifestAck)
		w.str(m.SessionID)
		w.u32(uint32(len(m.MissingChunks)))
		for _, mc := range m.MissingChunks {
			w.str(mc.FileID)
			w.u32(uint32(len(mc.MissingChunkIndexes)))
			for _, idx := range mc.MissingChunkIndexes {
				w.u32(idx)
			}
		}
	case Chunk:
		w.u8(variantChunk)
		w.str(m.SessionID)
		w.str(m.FileID)
		w.u32(m.ChunkIndex)
		w.u32(m.TotalChunks)
		w.str(m.Hash)
		w.str(m.Data)
	case ChunkBinary:
		w.u8(variantChunkBinary)
		w.str(m.SessionID)
		w.str(m.FileID)
		w.u32(m.ChunkIndex)
		w.u32(m.TotalChunks)
		w.str(m.Hash)
		w.bytes(m.Data)
	case Ack:
		w.u8(variantAck)
		w.str(m.SessionID)
		w.str(m.FileID)
		w.u32(m.ChunkIndex)
		w.bool(m.OK)
		w.optStr(m.Error)
	case AckBatch:
		w.u8(variantAckBatch)
		w.str(m.SessionID)
		w.u32(uint32(len(m.Items)))
		for _, it := range m.Items {
			w.str(it.FileID)
			w.u32(it.ChunkIndex)
			w.bool(it.OK)
			w.optStr(it.Error)
		}
	case FileDone:
		w.u8(variantFileDone)
		w.str(m.SessionID)
		w.str(m.FileID)
		w.str(m.Blake3)
	case SessionDone:
		w.u8(variantSessionDone)
		w.str(m.SessionID)
		w.bool(m.OK)
		w.optStr(m.Error)
	case ErrorFrame:
		w.u8(variantError)
		w.str(m.Code)
		w.str(m.Message)
	case Ping:
		w.u8(variantPing)
		w.i64(m.TS)
	default:
		return nil, NewError(ErrFrameSerializeFailed, fmt.Sprintf("unsupported message type %T", msg))
	}

	return w.buf, nil
}

// DecodeBinary parses a payload produced by EncodeBinary. A payload with bytes left over after
// its variant's fields is rejected.
func DecodeBinary(payload []byte) (Message, error) {
	r := &binReader{buf: payload}
	variant, err := r.u8()
	if err != nil {
		return nil, NewError(ErrFrameParseFailed, err.Error())
	}

	msg, err := decodeBinaryVariant(variant, r)
	if err != nil {
		return nil, NewError(ErrFrameParseFailed, err.Error())
	}
	if r.pos != len(payload) {
		return nil, NewError(ErrFrameParseFailed, fmt.Sprintf("binary frame has %d trailing bytes", len(payload)-r.pos))
	}
	return msg, nil
}

func decodeBinaryVariant(variant uint8, r *binReader) (Message, error) {
	switch variant {
	case variantHello:
		var m Hello
		var err error
		if m.DeviceID, err = r.str(); err != nil {
			return nil, err
		}
		if m.DeviceName, err = r.str(); err != nil {
			return nil, err
		}
		if m.Nonce, err = r.str(); err != nil {
			return nil, err
		}
		if m.ProtocolVersion, err = r.optU16(); err != nil {
			return nil, err
		}
		if m.Capabilities, err = r.optStrSlice(); err != nil {
			return nil, err
		}
		return m, nil

	case variantAuthChallenge:
		var m AuthChallenge
		var err error
		if m.Nonce, err = r.str(); err != nil {
			return nil, err
		}
		if m.ExpiresAt, err = r.i64(); err != nil {
			return nil, err
		}
		return m, nil

	case variantAuthResponse:
		var m AuthResponse
		var err error
		if m.PairCode, err = r.str(); err != nil {
			return nil, err
		}
		if m.Proof, err = r.str(); err != nil {
			return nil, err
		}
		return m, nil

	case variantAuthOK:
		var m AuthOK
		var err error
		if m.PeerDeviceID, err = r.str(); err != nil {
			return nil, err
		}
		if m.PeerName, err = r.str(); err != nil {
			return nil, err
		}
		if m.ProtocolVersion, err = r.optU16(); err != nil {
			return nil, err
		}
		if m.Capabilities, err = r.optStrSlice(); err != nil {
			return nil, err
		}
		return m, nil

	case variantManifest:
		var m Manifest
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.Direction, err = r.str(); err != nil {
			return nil, err
		}
		if m.SaveDir, err = r.str(); err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.Files = make([]ManifestFile, count)
		for i := range m.Files {
			f := &m.Files[i]
			if f.FileID, err = r.str(); err != nil {
				return nil, err
			}
			if f.RelativePath, err = r.str(); err != nil {
				return nil, err
			}
			if f.SizeBytes, err = r.u64(); err != nil {
				return nil, err
			}
			if f.ChunkSize, err = r.u32(); err != nil {
				return nil, err
			}
			if f.ChunkCount, err = r.u32(); err != nil {
				return nil, err
			}
			if f.Blake3, err = r.str(); err != nil {
				return nil, err
			}
			if f.MimeType, err = r.optStr(); err != nil {
				return nil, err
			}
			if f.IsFolderArchive, err = r.boolean(); err != nil {
				return nil, err
			}
		}
		return m, nil

	case variantManifestAck:
		var m ManifestAck
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.MissingChunks = make([]MissingChunks, count)
		for i := range m.MissingChunks {
			mc := &m.MissingChunks[i]
			if mc.FileID, err = r.str(); err != nil {
				return nil, err
			}
			idxCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			mc.MissingChunkIndexes = make([]uint32, idxCount)
			for j := range mc.MissingChunkIndexes {
				if mc.MissingChunkIndexes[j], err = r.u32(); err != nil {
					return nil, err
				}
			}
		}
		return m, nil

	case variantChunk:
		var m Chunk
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.FileID, err = r.str(); err != nil {
			return nil, err
		}
		if m.ChunkIndex, err = r.u32(); err != nil {
			return nil, err
		}
		if m.TotalChunks, err = r.u32(); err != nil {
			return nil, err
		}
		if m.Hash, err = r.str(); err != nil {
			return nil, err
		}
		if m.Data, err = r.str(); err != nil {
			return nil, err
		}
		return m, nil

	case variantChunkBinary:
		var m ChunkBinary
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.FileID, err = r.str(); err != nil {
			return nil, err
		}
		if m.ChunkIndex, err = r.u32(); err != nil {
			return nil, err
		}
		if m.TotalChunks, err = r.u32(); err != nil {
			return nil, err
		}
		if m.Hash, err = r.str(); err != nil {
			return nil, err
		}
		if m.Data, err = r.bytesField(); err != nil {
			return nil, err
		}
		return m, nil

	case variantAck:
		var m Ack
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.FileID, err = r.str(); err != nil {
			return nil, err
		}
		if m.ChunkIndex, err = r.u32(); err != nil {
			return nil, err
		}
		if m.OK, err = r.boolean(); err != nil {
			return nil, err
		}
		if m.Error, err = r.optStr(); err != nil {
			return nil, err
		}
		return m, nil

	case variantAckBatch:
		var m AckBatch
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.Items = make([]AckItem, count)
		for i := range m.Items {
			it := &m.Items[i]
			if it.FileID, err = r.str(); err != nil {
				return nil, err
			}
			if it.ChunkIndex, err = r.u32(); err != nil {
				return nil, err
			}
			if it.OK, err = r.boolean(); err != nil {
				return nil, err
			}
			if it.Error, err = r.optStr(); err != nil {
				return nil, err
			}
		}
		return m, nil

	case variantFileDone:
		var m FileDone
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.FileID, err = r.str(); err != nil {
			return nil, err
		}
		if m.Blake3, err = r.str(); err != nil {
			return nil, err
		}
		return m, nil

	case variantSessionDone:
		var m SessionDone
		var err error
		if m.SessionID, err = r.str(); err != nil {
			return nil, err
		}
		if m.OK, err = r.boolean(); err != nil {
			return nil, err
		}
		if m.Error, err = r.optStr(); err != nil {
			return nil, err
		}
		return m, nil

	case variantError:
		var m ErrorFrame
		var err error
		if m.Code, err = r.str(); err != nil {
			return nil, err
		}
		if m.Message, err = r.str(); err != nil {
			return nil, err
		}
		return m, nil

	case variantPing:
		var m Ping
		var err error
		if m.TS, err = r.i64(); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown binary frame variant %d", variant)
	}
}
