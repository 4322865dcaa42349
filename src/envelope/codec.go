package envelope

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}

// Marshal returns the canonical JSON encoding of the Envelope. Map keys are
// sorted, so two Envelopes with equal content have identical encodings.
func (e *Envelope) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON encoding into the Envelope. It does not
// validate the result; use Decode for untrusted input.
func (e *Envelope) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, jsonHandle())

	if err := dec.Decode(e); err != nil {
		return err
	}

	return nil
}

// Clone deep-copies state through a JSON round trip, the way a browser
// structured clone of a JSON-compatible value behaves. Values that have no
// JSON representation (functions, channels, complex numbers, cyclic
// structures) produce a NotSerializable SyncErr. Numbers come back as float64.
func Clone(state map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(
			common.NewSyncErr("Clone", common.NotSerializable, err.Error()),
			"cloning state")
	}

	var res map[string]interface{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(
			common.NewSyncErr("Clone", common.NotSerializable, err.Error()),
			"cloning state")
	}

	return res, nil
}

// Fingerprint returns the canonical encoding of state after normalizing it
// with Clone. Two states with equal fingerprints are considered identical by
// the protocol regardless of the Go types used to build them.
func Fingerprint(state map[string]interface{}) ([]byte, error) {
	normalized, err := Clone(state)
	if err != nil {
		return nil, err
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Equal reports whether two states have the same fingerprint. States that
// cannot be fingerprinted are never equal.
func Equal(a, b map[string]interface{}) bool {
	fa, err := Fingerprint(a)
	if err != nil {
		return false
	}

	fb, err := Fingerprint(b)
	if err != nil {
		return false
	}

	return bytes.Equal(fa, fb)
}
