package envelope

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/pkg/errors"
)

func TestIDGeneratorUniqueness(t *testing.T) {
	gen := NewIDGenerator("")
	if gen.SourceID() == "" {
		t.Fatal("SourceID should be generated when empty")
	}

	other := NewIDGenerator("")
	if gen.SourceID() == other.SourceID() {
		t.Fatal("two generators should never share a SourceID")
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.Next()
		if seen[id] {
			t.Fatalf("id %s generated twice", id)
		}
		if !strings.HasPrefix(id, gen.SourceID()) {
			t.Fatalf("id %s should start with the SourceID", id)
		}
		seen[id] = true
	}
}

func TestBuilders(t *testing.T) {
	gen := NewIDGenerator("source-a")

	sync1 := NewSync(gen, "counter")
	sync2 := NewSync(gen, "counter")
	if sync1.ID == sync2.ID {
		t.Fatal("every sync request should carry a fresh id")
	}

	tabs := []int{0, 1}
	add := NewAddNewTab(gen, "counter", "source-b", 1, tabs)
	tabs[0] = 42
	if add.Tabs[0] != 0 {
		t.Fatal("NewAddNewTab should copy the roster")
	}
	if add.Target != "source-b" || add.Tab != 1 || add.SourceID != "source-a" {
		t.Fatalf("unexpected add_new_tab envelope %#v", add)
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	gen := NewIDGenerator("source-a")
	env := NewChangeMain(gen, "counter", 2, []int{2, 3})

	raw, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var out Envelope
	if err := out.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(*env, out) {
		t.Fatalf("Envelope should be %#v, not %#v", *env, out)
	}
}

func TestDecode(t *testing.T) {
	gen := NewIDGenerator("source-a")
	change := NewChange(gen, "counter", map[string]interface{}{"count": 1})
	raw, err := change.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name    string
		payload interface{}
		reason  Reason
		ok      bool
	}{
		{"nil", nil, Malformed, false},
		{"string", "hello", Malformed, false},
		{"number", 42, Malformed, false},
		{"nil pointer", (*Envelope)(nil), Malformed, false},
		{"pointer", change, 0, true},
		{"value", *change, 0, true},
		{"bytes", raw, 0, true},
		{"garbage bytes", []byte("{not json"), Malformed, false},
		{"map", map[string]interface{}{
			"action":   "change",
			"id":       "x-1",
			"sourceId": "source-b",
			"name":     "counter",
			"state":    map[string]interface{}{"count": 2.0},
			"tabs":     []interface{}{0.0, 1.0},
		}, 0, true},
		{"map with bad state", map[string]interface{}{
			"action":   "change",
			"id":       "x-1",
			"sourceId": "source-b",
			"state":    "not an object",
		}, Malformed, false},
		{"unknown action", map[string]interface{}{
			"action":   "explode",
			"id":       "x-1",
			"sourceId": "source-b",
		}, UnknownAction, false},
		{"missing id", map[string]interface{}{
			"action":   "sync",
			"sourceId": "source-b",
		}, Malformed, false},
		{"missing source", map[string]interface{}{
			"action": "sync",
			"id":     "x-1",
		}, Malformed, false},
	}

	for _, tc := range testCases {
		env, err := Decode(tc.payload)
		if tc.ok {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			if !env.Action.Valid() {
				t.Fatalf("%s: decoded envelope has invalid action", tc.name)
			}
			continue
		}

		rej, ok := IsRejection(err)
		if !ok {
			t.Fatalf("%s: expected a Rejection, got %v", tc.name, err)
		}
		if rej.Reason != tc.reason {
			t.Fatalf("%s: reason should be %s, not %s", tc.name, tc.reason, rej.Reason)
		}
	}
}

func TestDecodeMapTabs(t *testing.T) {
	env, err := Decode(map[string]interface{}{
		"action":   "change_main",
		"id":       "x-1",
		"sourceId": "source-b",
		"tab":      3.0,
		"tabs":     []interface{}{3.0, 5.0},
	})
	if err != nil {
		t.Fatal(err)
	}

	if env.Tab != 3 || !reflect.DeepEqual(env.Tabs, []int{3, 5}) {
		t.Fatalf("unexpected roster fields: tab=%d tabs=%v", env.Tab, env.Tabs)
	}
}

func TestCloneRejectsNonSerializable(t *testing.T) {
	_, err := Clone(map[string]interface{}{
		"callback": func() {},
	})
	if err == nil {
		t.Fatal("cloning a func should fail")
	}

	if !common.IsSync(errors.Cause(err), common.NotSerializable) {
		t.Fatalf("error should be NotSerializable, not %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	nested := map[string]interface{}{"a": 1}
	state := map[string]interface{}{"nested": nested}

	clone, err := Clone(state)
	if err != nil {
		t.Fatal(err)
	}

	nested["a"] = 2

	if clone["nested"].(map[string]interface{})["a"] != 1.0 {
		t.Fatalf("clone should not share nested maps: %v", clone)
	}
}

func TestEqualNormalizesNumbers(t *testing.T) {
	a := map[string]interface{}{"count": 1, "tags": []string{"x"}}
	b := map[string]interface{}{"tags": []interface{}{"x"}, "count": 1.0}

	if !Equal(a, b) {
		t.Fatal("states with the same JSON representation should be equal")
	}

	if Equal(a, map[string]interface{}{"count": 2}) {
		t.Fatal("different states should not be equal")
	}
}
