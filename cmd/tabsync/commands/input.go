package commands

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseAssignment parses a "key=value" line. Values that are valid JSON are
// decoded, anything else is taken as a string.
func parseAssignment(line string) (string, interface{}, error) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("expected key=value, got %q", line)
	}

	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", nil, fmt.Errorf("empty key in %q", line)
	}

	raw := strings.TrimSpace(parts[1])

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	return key, value, nil
}
