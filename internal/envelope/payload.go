package envelope

// Payload is the serializable value tree held by a component: nested maps
// keyed by strings, ordered sequences, and scalars. No cycles.
type Payload = map[string]any

// ClonePayload returns a deep copy of p. Sequences and nested maps are
// copied; scalars are value types already.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ClonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
