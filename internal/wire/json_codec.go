package wire

import (
	"encoding/json"
	"fmt"
)

type typeEnvelope struct {
	Type string `json:"type"`
}

// EncodeJSON marshals msg into the canonical tagged JSON object: msg's own fields plus a
// "type" discriminator naming the variant.
func EncodeJSON(msg Message) ([]byte, error) {
	fields, err := json.Marshal(msg)
	if err != nil {
		return nil, NewError(ErrFrameSerializeFailed, err.Error())
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(fields, &merged); err != nil {
		return nil, NewError(ErrFrameSerializeFailed, err.Error())
	}
	typeJSON, _ := json.Marshal(msg.Type())
	merged["type"] = typeJSON

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, NewError(ErrFrameSerializeFailed, err.Error())
	}
	return out, nil
}

// DecodeJSON reads the "type" discriminator from payload and unmarshals into the matching
// Message variant.
func DecodeJSON(payload []byte) (Message, error) {
	var envelope typeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, NewError(ErrFrameParseFailed, err.Error())
	}

	var dst Message
	switch envelope.Type {
	case TypeHello:
		dst = &Hello{}
	case TypeAuthChallenge:
		dst = &AuthChallenge{}
	case TypeAuthResponse:
		dst = &AuthResponse{}
	case TypeAuthOK:
		dst = &AuthOK{}
	case TypeManifest:
		dst = &Manifest{}
	case TypeManifestAck:
		dst = &ManifestAck{}
	case TypeChunk:
		dst = &Chunk{}
	case TypeChunkBinary:
		dst = &ChunkBinary{}
	case TypeAck:
		dst = &Ack{}
	case TypeAckBatch:
		dst = &AckBatch{}
	case TypeFileDone:
		dst = &FileDone{}
	case TypeSessionDone:
		dst = &SessionDone{}
	case TypeError:
		dst = &ErrorFrame{}
	case TypePing:
		dst = &Ping{}
	default:
		return nil, NewError(ErrFrameParseFailed, fmt.Sprintf("unknown frame type %q", envelope.Type))
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return nil, NewError(ErrFrameParseFailed, err.Error())
	}
	return dereference(dst), nil
}

// dereference converts a pointer-to-variant Message back into its value form, matching the
// value-typed constructors used throughout the rest of the package.
func dereference(msg Message) Message {
	switch m := msg.(type) {
	case *Hello:
		return *m
	case *AuthChallenge:
		return *m
	case *AuthResponse:
		return *m
	case *AuthOK:
		return *m
	case *Manifest:
		return *m
	case *ManifestAck:
		return *m
	case *Chunk:
		return *m
	case *ChunkBinary:
		return *m
	case *Ack:
		return *m
	case *AckBatch:
		return *m
	case *FileDone:
		return *m
	case *SessionDone:
		return *m
	case *ErrorFrame:
		return *m
	case *Ping:
		return *m
	default:
		return msg
	}
}
