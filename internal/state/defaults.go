package state

import "git.home.luguber.info/inful/fieldstate/internal/envelope"

// FileExt is the extension of every component's primary state file.
const FileExt = ".state"

// DefaultComponent receives path keys whose first segment is not a
// recognized component identifier.
const DefaultComponent = "main"

// Components lists every known component in save order.
var Components = []string{"position", "mining", "inventory", "network", "main"}

// defaultsFor returns the type-specific default constructor for a
// component. Defaults use canonical JSON scalar types (float64 for
// numbers) so in-memory state compares equal before and after a save.
func defaultsFor(component string) func() envelope.Payload {
	switch component {
	case "position":
		return positionDefaults
	case "mining":
		return miningDefaults
	case "inventory":
		return inventoryDefaults
	case "network":
		return networkDefaults
	default:
		return mainDefaults
	}
}

func positionDefaults() envelope.Payload {
	return envelope.Payload{
		"x":         float64(0),
		"y":         float64(0),
		"z":         float64(0),
		"heading":   "north",
		"dimension": "overworld",
	}
}

func miningDefaults() envelope.Payload {
	return envelope.Payload{
		"strategy": "strip",
		"bounds": map[string]any{
			"width":  float64(0),
			"length": float64(0),
			"depth":  float64(0),
		},
		"progress": map[string]any{
			"mined": float64(0),
			"row":   float64(0),
			"layer": float64(0),
		},
	}
}

func inventoryDefaults() envelope.Payload {
	return envelope.Payload{
		"capacity": float64(16),
		"slots":    []any{},
		"reserved": map[string]any{},
	}
}

func networkDefaults() envelope.Payload {
	return envelope.Payload{
		"peers":              []any{},
		"endpoint":           "",
		"heartbeat_interval": float64(30),
	}
}

func mainDefaults() envelope.Payload {
	return envelope.Payload{
		"status":   "idle",
		"sessions": float64(0),
		"mission":  map[string]any{},
	}
}

func isKnownComponent(name string) bool {
	for _, c := range Components {
		if c == name {
			return true
		}
	}
	return false
}
