package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewSourceID returns a random identifier for a context. It is generated once
// per context and never persisted.
func NewSourceID() string {
	return uuid.NewString()
}

// IDGenerator produces message ids for one context. An id is the composition
// of the context's SourceID, a strictly increasing local timestamp, and a
// random suffix.
type IDGenerator struct {
	sourceID string

	mu   sync.Mutex
	last int64
}

// NewIDGenerator creates an IDGenerator for sourceID. An empty sourceID is
// replaced by a fresh one.
func NewIDGenerator(sourceID string) *IDGenerator {
	if sourceID == "" {
		sourceID = NewSourceID()
	}
	return &IDGenerator{sourceID: sourceID}
}

// SourceID returns the SourceID stamped on every Envelope built with this
// generator.
func (g *IDGenerator) SourceID() string {
	return g.sourceID
}

// Next returns a new message id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	ts := time.Now().UnixNano()
	if ts <= g.last {
		ts = g.last + 1
	}
	g.last = ts
	g.mu.Unlock()

	return fmt.Sprintf("%s-%x-%s", g.sourceID, ts, randomSuffix())
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
