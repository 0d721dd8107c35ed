package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
)

func TestParsePath(t *testing.T) {
	segs, err := ParsePath("position.x")
	require.NoError(t, err)
	assert.Equal(t, []string{"position", "x"}, segs)

	_, err = ParsePath("")
	assert.Error(t, err)

	_, err = ParsePath("a..b")
	assert.Error(t, err)

	_, err = ParsePath(".a")
	assert.Error(t, err)
}

func TestLookupMapAndSequence(t *testing.T) {
	p := envelope.Payload{
		"targets": []any{
			map[string]any{"name": "alpha"},
			map[string]any{"name": "beta"},
		},
		"depth": float64(12),
	}

	v, ok := lookup(p, []string{"targets", "1", "name"})
	require.True(t, ok)
	assert.Equal(t, "beta", v)

	v, ok = lookup(p, []string{"depth"})
	require.True(t, ok)
	assert.Equal(t, float64(12), v)

	_, ok = lookup(p, []string{"targets", "5"})
	assert.False(t, ok)

	_, ok = lookup(p, []string{"targets", "abc"})
	assert.False(t, ok)

	_, ok = lookup(p, []string{"depth", "nested"})
	assert.False(t, ok)
}

func TestWriteCoercesIntermediates(t *testing.T) {
	p := envelope.Payload{"fuel": float64(80)}

	// "fuel" holds a scalar; writing through it replaces it with a map.
	write(p, []string{"fuel", "reserve", "level"}, float64(20))

	v, ok := lookup(p, []string{"fuel", "reserve", "level"})
	require.True(t, ok)
	assert.Equal(t, float64(20), v)
}

func TestRemove(t *testing.T) {
	p := envelope.Payload{
		"mission": map[string]any{"id": "m-7", "phase": "survey"},
	}

	remove(p, []string{"mission", "phase"})
	_, ok := lookup(p, []string{"mission", "phase"})
	assert.False(t, ok)

	// Missing intermediate is a no-op, not a panic.
	remove(p, []string{"nope", "deep", "key"})
	assert.Len(t, p, 1)
}
