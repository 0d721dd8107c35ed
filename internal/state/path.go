package state

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
)

// ParsePath splits a dot-delimited path key into validated segments.
// Empty paths and empty segments ("a..b") are rejected at call time rather
// than surfacing later as phantom map keys.
func ParsePath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("path %q has empty segment at position %d", path, i)
		}
	}
	return segments, nil
}

// lookup walks segments through a payload tree. Map segments index by key;
// sequence segments index numerically ("targets.0").
func lookup(p envelope.Payload, segments []string) (any, bool) {
	var current any = map[string]any(p)
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// write sets value at segments, creating intermediate maps as needed. An
// intermediate segment that holds anything other than a map is coerced
// into a new empty map; the write never silently indexes into a scalar.
func write(p envelope.Payload, segments []string, value any) {
	node := map[string]any(p)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// remove deletes the value at segments. Missing intermediate nodes make
// this a no-op; only map nodes are navigated.
func remove(p envelope.Payload, segments []string) {
	node := map[string]any(p)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, segments[len(segments)-1])
}
