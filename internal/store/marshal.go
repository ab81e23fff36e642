package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// marshalJSON encodes v with HTML escaping disabled. Map keys come out
// sorted, so equal values always produce equal text.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func marshalDependencies(deps map[string]string) (string, error) {
	if len(deps) == 0 {
		return "{}", nil
	}
	s, err := marshalJSON(deps)
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return s, nil
}

// unmarshalDependencies returns nil for an empty object so records read back
// compare equal to records that never had a dependency.
func unmarshalDependencies(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var deps map[string]string
	if err := json.Unmarshal([]byte(data), &deps); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return deps, nil
}

func marshalNames(names []string) (string, error) {
	if len(names) == 0 {
		return "[]", nil
	}
	s, err := marshalJSON(names)
	if err != nil {
		return "", fmt.Errorf("marshal names: %w", err)
	}
	return s, nil
}

func unmarshalNames(data string) ([]string, error) {
	out := []string{}
	if data == "" || data == "[]" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal names: %w", err)
	}
	return out, nil
}

func marshalRecoveryMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	s, err := marshalJSON(m)
	if err != nil {
		return "", fmt.Errorf("marshal recovery map: %w", err)
	}
	return s, nil
}

func unmarshalRecoveryMap(data string) (map[string]string, error) {
	out := map[string]string{}
	if data == "" || data == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal recovery map: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
