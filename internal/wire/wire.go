// Package wire defines dispatchd's message envelope and the broadcast
// frame format. It is the Go-native stand-in for the external framed-
// message schema the core spec delegates away: a plain gob-encodable
// struct instead of a protobuf-generated comm.Message, carrying the same
// fields server.rs's comm::Message carries.
package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dispatchd/dispatchd/internal/model"
)

// Type enumerates the message taxonomy from spec.md §6.
type Type int

const (
	TypeUnknown Type = iota
	TypeRegisterClient
	TypeAck
	TypeRegisterFunction
	TypeInvoke
	TypeDone
	TypePull
	TypeHello
	TypeDeliver
	TypeDebug
)

// SchedulerInfo is the DEBUG broadcast payload: a snapshot of the
// scheduler's worker and job queues.
type SchedulerInfo struct {
	WorkerQueue []model.WorkerID
	JobQueue    []model.Call
}

// Message is the single envelope type carried over both the request/reply
// and broadcast channels. Only the fields relevant to Type are populated,
// mirroring comm::Message's "one struct, many optional fields" shape.
type Message struct {
	Type Type

	Address       string
	WorkerID      model.WorkerID
	FnName        string
	Call          model.Call
	ObjRef        model.ObjectRef
	SchedulerInfo SchedulerInfo
}

// Encode gob-encodes m.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes a Message from b.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// broadcastPrefixWidth is the fixed width of the ASCII decimal WorkerID
// prefix on every broadcast frame (spec.md §6: "7-digit zero-padded
// decimal").
const broadcastPrefixWidth = 7

// EncodeBroadcastFrame renders the fixed-width zero-padded decimal
// WorkerID prefix followed by the gob-encoded message, matching the
// "{:0>#07}" formatting in server.rs's publisher thread.
func EncodeBroadcastFrame(id model.WorkerID, m Message) ([]byte, error) {
	body, err := Encode(m)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("%0*d", broadcastPrefixWidth, id)
	if len(prefix) != broadcastPrefixWidth {
		return nil, fmt.Errorf("wire: worker id %d does not fit in a %d-digit prefix", id, broadcastPrefixWidth)
	}
	frame := make([]byte, 0, len(prefix)+len(body))
	frame = append(frame, prefix...)
	frame = append(frame, body...)
	return frame, nil
}

// DecodeBroadcastFrame splits a broadcast frame into its addressed
// WorkerID and decoded Message. Subscribers that only care about frames
// addressed to them should compare the prefix before calling this; it is
// provided separately as PeekBroadcastPrefix.
func DecodeBroadcastFrame(frame []byte) (model.WorkerID, Message, error) {
	if len(frame) < broadcastPrefixWidth {
		return 0, Message{}, fmt.Errorf("wire: broadcast frame shorter than prefix width")
	}
	var id uint64
	if _, err := fmt.Sscanf(string(frame[:broadcastPrefixWidth]), "%d", &id); err != nil {
		return 0, Message{}, fmt.Errorf("wire: invalid broadcast prefix: %w", err)
	}
	m, err := Decode(frame[broadcastPrefixWidth:])
	if err != nil {
		return 0, Message{}, err
	}
	return model.WorkerID(id), m, nil
}

// PeekBroadcastPrefix reads only the WorkerID prefix of a broadcast frame,
// the client-side filter step ("Subscribers filter on the 7-byte prefix").
func PeekBroadcastPrefix(frame []byte) (model.WorkerID, error) {
	if len(frame) < broadcastPrefixWidth {
		return 0, fmt.Errorf("wire: broadcast frame shorter than prefix width")
	}
	var id uint64
	if _, err := fmt.Sscanf(string(frame[:broadcastPrefixWidth]), "%d", &id); err != nil {
		return 0, fmt.Errorf("wire: invalid broadcast prefix: %w", err)
	}
	return model.WorkerID(id), nil
}
