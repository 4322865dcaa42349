package node

import (
	"testing"

	"github.com/mosaicnetworks/tabsync/src/dedup"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/net"
)

func TestValidator(t *testing.T) {
	seen := dedup.NewCache(0, 0)

	self := envelope.NewIDGenerator("")
	other := envelope.NewIDGenerator("")

	v := NewValidator(self.SourceID(), "counter", []string{"https://a.example"}, seen)

	dup := envelope.NewSync(other, "counter")
	seen.Add(dup.ID)

	cases := []struct {
		name   string
		msg    net.Message
		reason envelope.Reason
		ok     bool
	}{
		{
			name: "valid",
			msg:  net.Message{Origin: "https://a.example", Data: envelope.NewSync(other, "counter")},
			ok:   true,
		},
		{
			name:   "nil payload",
			msg:    net.Message{Origin: "https://a.example"},
			reason: envelope.Malformed,
		},
		{
			name:   "unknown action",
			msg:    net.Message{Origin: "https://a.example", Data: []byte(`{"action":"explode","id":"1","sourceId":"x"}`)},
			reason: envelope.UnknownAction,
		},
		{
			name:   "echo",
			msg:    net.Message{Origin: "https://a.example", Data: envelope.NewSync(self, "counter")},
			reason: envelope.Echo,
		},
		{
			name:   "duplicate",
			msg:    net.Message{Origin: "https://a.example", Data: dup},
			reason: envelope.Duplicate,
		},
		{
			name:   "foreign origin",
			msg:    net.Message{Origin: "https://evil.example", Data: envelope.NewSync(other, "counter")},
			reason: envelope.ForeignOrigin,
		},
		{
			name:   "name mismatch",
			msg:    net.Message{Origin: "https://a.example", Data: envelope.NewSync(other, "other")},
			reason: envelope.NameMismatch,
		},
		{
			// echo is checked before origin
			name:   "echo from foreign origin",
			msg:    net.Message{Origin: "https://evil.example", Data: envelope.NewSync(self, "counter")},
			reason: envelope.Echo,
		},
	}

	for _, c := range cases {
		env, rej := v.Validate(c.msg)
		if c.ok {
			if rej != nil {
				t.Fatalf("%s: unexpected rejection: %v", c.name, rej)
			}
			if env == nil {
				t.Fatalf("%s: envelope should not be nil", c.name)
			}
			continue
		}
		if rej == nil {
			t.Fatalf("%s: expected rejection %s", c.name, c.reason)
		}
		if rej.Reason != c.reason {
			t.Fatalf("%s: reason should be %s, not %s", c.name, c.reason, rej.Reason)
		}
	}

	if seen.Len() != 1 {
		t.Fatalf("validation should not modify the dedup cache, got %d ids", seen.Len())
	}
}

func TestValidatorWildcard(t *testing.T) {
	v := NewValidator("me", "counter", []string{net.WildcardOrigin}, dedup.NewCache(0, 0))

	_, rej := v.Validate(net.Message{
		Origin: "https://anywhere.example",
		Data:   envelope.NewSync(envelope.NewIDGenerator(""), "counter"),
	})
	if rej != nil {
		t.Fatalf("wildcard should accept any origin: %v", rej)
	}
}
