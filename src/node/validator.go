package node

import (
	"github.com/mosaicnetworks/tabsync/src/dedup"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/net"
)

// Validator decides whether an inbound message is processed. It checks, in
// order: the payload decodes to an envelope, the envelope is not one of ours,
// its id has not been processed yet, the sender's origin is allowed, and the
// envelope belongs to our channel. Validation never mutates the dedup cache.
type Validator struct {
	sourceID string
	name     string
	origins  []string
	seen     *dedup.Cache
}

// NewValidator creates a Validator for the node identified by sourceID on the
// named channel.
func NewValidator(sourceID, name string, origins []string, seen *dedup.Cache) *Validator {
	return &Validator{
		sourceID: sourceID,
		name:     name,
		origins:  origins,
		seen:     seen,
	}
}

// Validate returns the decoded envelope, or the reason it was rejected.
func (v *Validator) Validate(m net.Message) (*envelope.Envelope, *envelope.Rejection) {
	env, err := envelope.Decode(m.Data)
	if err != nil {
		if rej, ok := envelope.IsRejection(err); ok {
			return nil, rej
		}
		return nil, envelope.Reject(envelope.Malformed, "%v", err)
	}

	if env.SourceID == v.sourceID {
		return env, envelope.Reject(envelope.Echo, "%s", env.ID)
	}

	if v.seen.Seen(env.ID) {
		return env, envelope.Reject(envelope.Duplicate, "%s", env.ID)
	}

	if !net.MatchOrigin(v.origins, m.Origin) {
		return env, envelope.Reject(envelope.ForeignOrigin, "%s", m.Origin)
	}

	if env.Name != v.name {
		return env, envelope.Reject(envelope.NameMismatch, "%s", env.Name)
	}

	return env, nil
}
