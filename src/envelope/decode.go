package envelope

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Reason classifies why an inbound payload was refused.
type Reason uint32

const (
	// Malformed payloads are absent, not structured objects, or lack required
	// fields.
	Malformed Reason = iota
	// UnknownAction payloads carry an action the protocol does not know.
	UnknownAction
	// Echo payloads were created by the receiving context itself.
	Echo
	// Duplicate payloads carry an id that was already processed.
	Duplicate
	// ForeignOrigin payloads arrived from an origin outside the allow-list.
	ForeignOrigin
	// NameMismatch payloads belong to another logical channel.
	NameMismatch
)

// String ...
func (r Reason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case UnknownAction:
		return "unknown_action"
	case Echo:
		return "echo"
	case Duplicate:
		return "duplicate"
	case ForeignOrigin:
		return "foreign_origin"
	case NameMismatch:
		return "name_mismatch"
	default:
		return "unknown"
	}
}

// Rejection is returned when an inbound payload must be dropped.
type Rejection struct {
	Reason Reason
	Detail string
}

// Reject ...
func Reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Error ...
func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%s): %s", r.Reason, r.Detail)
}

// IsRejection returns the Rejection wrapped in err, if any.
func IsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}

// Decode turns a raw transport payload into an Envelope. Accepted payloads
// are Envelope values or pointers, canonical JSON bytes, and generic maps as
// produced by JSON decoders. The returned Envelope never aliases the payload's
// Tabs slice.
func Decode(payload interface{}) (*Envelope, error) {
	var env *Envelope

	switch p := payload.(type) {
	case nil:
		return nil, Reject(Malformed, "absent payload")
	case *Envelope:
		if p == nil {
			return nil, Reject(Malformed, "absent payload")
		}
		env = p.Copy()
	case Envelope:
		env = p.Copy()
	case []byte:
		env = &Envelope{}
		if err := env.Unmarshal(p); err != nil {
			return nil, Reject(Malformed, "undecodable payload: %v", err)
		}
	case map[string]interface{}:
		env = &Envelope{}
		if err := decodeMap(p, env); err != nil {
			return nil, Reject(Malformed, "invalid fields: %v", err)
		}
	default:
		return nil, Reject(Malformed, "payload of type %T is not a structured object", payload)
	}

	if !env.Action.Valid() {
		return nil, Reject(UnknownAction, "action %q", env.Action)
	}

	if env.ID == "" {
		return nil, Reject(Malformed, "missing id")
	}

	if env.SourceID == "" {
		return nil, Reject(Malformed, "missing sourceId")
	}

	return env, nil
}

func decodeMap(m map[string]interface{}, env *Envelope) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  env,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}
