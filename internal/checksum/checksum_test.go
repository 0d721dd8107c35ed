package checksum

import "testing"

func TestSumKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		data string
		want uint32
	}{
		{"empty", "", 0},
		{"check", "123456789", 0xCBF43926},
		{"single", "a", 0xE8B7BE43},
	}
	for _, tc := range cases {
		if got := Sum([]byte(tc.data)); got != tc.want {
			t.Errorf("%s: expected %08x, got %08x", tc.name, tc.want, got)
		}
	}
}

func TestSumDeterministic(t *testing.T) {
	data := []byte(`{"x":10,"y":64,"z":-3}`)
	first := Sum(data)
	for i := 0; i < 10; i++ {
		if got := Sum(data); got != first {
			t.Fatalf("checksum not deterministic: %08x != %08x", got, first)
		}
	}
}

func TestSumSingleByteSensitivity(t *testing.T) {
	data := []byte(`{"position":{"x":10,"y":64,"z":-3},"fuel":1200}`)
	base := Sum(data)
	for i := range data {
		mutated := make([]byte, len(data))
		copy(mutated, data)
		mutated[i] ^= 0x01
		if Sum(mutated) == base {
			t.Errorf("flipping bit in byte %d did not change checksum", i)
		}
	}
}
