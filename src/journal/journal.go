package journal

import (
	"bytes"
	"reflect"
	"time"

	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/ugorji/go/codec"
)

// Kind says what happened to a journaled envelope.
type Kind string

const (
	// Sent is an envelope the node broadcast, including forwarded ones.
	Sent Kind = "sent"
	// Accepted is an inbound envelope that passed validation.
	Accepted Kind = "accepted"
	// Rejected is an inbound message that failed validation.
	Rejected Kind = "rejected"
)

// Entry is one journal record. Envelope is nil for rejected payloads that
// could not be decoded.
type Entry struct {
	Seq      uint64             `json:"seq"`
	Kind     Kind               `json:"kind"`
	Time     time.Time          `json:"time"`
	Origin   string             `json:"origin,omitempty"`
	Detail   string             `json:"detail,omitempty"`
	Envelope *envelope.Envelope `json:"envelope,omitempty"`
}

// Journal is an append-only record of envelopes.
type Journal interface {
	// Record appends the entry and returns its sequence number.
	Record(e Entry) (uint64, error)

	// Entries returns at most limit entries with a sequence number greater
	// than or equal to from. A non-positive limit means no limit.
	Entries(from uint64, limit int) ([]Entry, error)

	// Last returns the sequence number of the last recorded entry, 0 if none.
	Last() uint64

	Close() error
}

func jsonHandle() *codec.JsonHandle {
	jh := &codec.JsonHandle{}
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}

// Marshal encodes the entry as canonical JSON.
func (e *Entry) Marshal() ([]byte, error) {
	var b bytes.Buffer

	enc := codec.NewEncoder(&b, jsonHandle())

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes an entry produced by Marshal.
func (e *Entry) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)

	dec := codec.NewDecoder(b, jsonHandle())

	return dec.Decode(e)
}
