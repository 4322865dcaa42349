package commands

import (
	"testing"
)

func TestParseAssignment(t *testing.T) {
	cases := []struct {
		line  string
		key   string
		value interface{}
	}{
		{"count=1", "count", float64(1)},
		{" label = hello world ", "label", "hello world"},
		{`label="quoted"`, "label", "quoted"},
		{"done=true", "done", true},
		{"nothing=null", "nothing", nil},
		{"expr=a=b", "expr", "a=b"},
	}

	for _, c := range cases {
		key, value, err := parseAssignment(c.line)
		if err != nil {
			t.Fatalf("%s: %v", c.line, err)
		}
		if key != c.key {
			t.Fatalf("%s: key should be %s, not %s", c.line, c.key, key)
		}
		if value != c.value {
			t.Fatalf("%s: value should be %v, not %v", c.line, c.value, value)
		}
	}

	for _, line := range []string{"novalue", "=1"} {
		if _, _, err := parseAssignment(line); err == nil {
			t.Fatalf("%s should not parse", line)
		}
	}
}
