// Package protocol implements the Maelstrom wire envelope: newline
// delimited JSON messages of the form {src, dest, body}, where body
// carries a type discriminant plus an optional msg_id/in_reply_to pair.
package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Message is one line of the wire protocol.
type Message struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body wraps a typed Payload together with the envelope's bookkeeping
// fields. Optional fields are omitted from the JSON encoding rather
// than emitted as null.
type Body struct {
	Payload     Payload
	MsgID       *int
	InReplyTo   *int
}

// Payload is a discriminated union over every message type this node
// understands. Concrete implementations live in payloads.go; the
// marker method keeps the union closed to this package.
type Payload interface {
	payloadType() string
	isPayload()
}

// MarshalJSON flattens Payload's fields alongside type/msg_id/in_reply_to,
// mirroring the Rust source's `#[serde(flatten)] pl: Pl` shape by hand
// since Go has no tagged-enum derive.
func (b Body) MarshalJSON() ([]byte, error) {
	payloadJSON, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, fmt.Errorf("flatten payload: %w", err)
	}

	typeJSON, _ := json.Marshal(b.Payload.payloadType())
	fields["type"] = typeJSON

	if b.MsgID != nil {
		fields["msg_id"], _ = json.Marshal(*b.MsgID)
	}
	if b.InReplyTo != nil {
		fields["in_reply_to"], _ = json.Marshal(*b.InReplyTo)
	}

	return json.Marshal(fields)
}

// UnmarshalJSON peeks at the type discriminant, decodes the bookkeeping
// fields, and dispatches the remainder into the matching Payload struct.
func (b *Body) UnmarshalJSON(data []byte) error {
	var peek struct {
		Type      string `json:"type"`
		MsgID     *int   `json:"msg_id"`
		InReplyTo *int   `json:"in_reply_to"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return fmt.Errorf("peek body type: %w", err)
	}

	payload, err := decodePayload(peek.Type, data)
	if err != nil {
		return err
	}

	b.Payload = payload
	b.MsgID = peek.MsgID
	b.InReplyTo = peek.InReplyTo
	return nil
}

// IDAllocator hands out a process-wide monotonically increasing msg_id.
type IDAllocator struct {
	next atomic.Int64
}

// NewIDAllocator returns an allocator starting at 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns the next msg_id, starting at 1 and never repeating.
func (a *IDAllocator) Next() int {
	return int(a.next.Add(1))
}

// Reply builds the response to req: src/dest swapped, in_reply_to
// copied from req's msg_id, and a freshly allocated msg_id of its own.
func Reply(req Message, alloc *IDAllocator, payload Payload) Message {
	id := alloc.Next()
	return Message{
		Src:  req.Dest,
		Dest: req.Src,
		Body: Body{
			Payload:   payload,
			MsgID:     &id,
			InReplyTo: req.Body.MsgID,
		},
	}
}

// Unsolicited builds an outbound message with no in_reply_to.
func Unsolicited(src, dest string, alloc *IDAllocator, payload Payload) Message {
	id := alloc.Next()
	return Message{
		Src:  src,
		Dest: dest,
		Body: Body{
			Payload: payload,
			MsgID:   &id,
		},
	}
}

// FireAndForget builds an outbound message with neither msg_id nor
// in_reply_to, for payloads the spec marks "(no reply)" such as
// gossip_cntr and broadcast_txn.
func FireAndForget(src, dest string, payload Payload) Message {
	return Message{
		Src:  src,
		Dest: dest,
		Body: Body{Payload: payload},
	}
}
