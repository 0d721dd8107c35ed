package migrate

import (
	"fmt"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
)

// defaultTransforms is the upgrade history of the on-disk schema. Entries
// are ordered oldest first and never reordered or removed; a payload
// written at any past version replays the tail of this chain.
func defaultTransforms() []Transform {
	return []Transform{
		{
			Component: "position",
			Since:     envelope.Version{Major: 1, Minor: 1, Patch: 0},
			Name:      "add-dimension",
			Apply:     setIfMissing("dimension", "overworld"),
		},
		{
			Component: "mining",
			Since:     envelope.Version{Major: 1, Minor: 2, Patch: 0},
			Name:      "add-strategy",
			Apply:     setIfMissing("strategy", "strip"),
		},
		{
			Component: "mining",
			Since:     envelope.Version{Major: 1, Minor: 2, Patch: 0},
			Name:      "nest-bounds",
			Apply:     nestMiningBounds,
		},
		{
			Component: "main",
			Since:     envelope.Version{Major: 1, Minor: 1, Patch: 0},
			Name:      "add-session-counters",
			Apply:     setIfMissing("sessions", float64(0)),
		},
	}
}

// setIfMissing introduces a field with a default without touching data that
// already carries it.
func setIfMissing(key string, value any) func(envelope.Payload) error {
	return func(p envelope.Payload) error {
		if _, ok := p[key]; !ok {
			p[key] = value
		}
		return nil
	}
}

// nestMiningBounds moves the flat width/length/depth fields of early mining
// payloads under a single bounds map.
func nestMiningBounds(p envelope.Payload) error {
	if _, ok := p["bounds"]; ok {
		return nil
	}
	bounds := map[string]any{}
	for _, key := range []string{"width", "length", "depth"} {
		v, ok := p[key]
		if !ok {
			continue
		}
		if _, isNum := v.(float64); !isNum {
			if _, isInt := v.(int); !isInt {
				return fmt.Errorf("bound %q is not numeric", key)
			}
		}
		bounds[key] = v
		delete(p, key)
	}
	p["bounds"] = bounds
	return nil
}
