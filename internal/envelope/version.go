package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is a structured schema version with numeric ordering. Stored as a
// "major.minor.patch" string on disk; compared component-wise so that
// 10.0.0 orders after 2.0.0.
type Version struct {
	Major int
	Minor int
	Patch int
}

// CurrentSchema is the schema version written into every new envelope.
var CurrentSchema = Version{Major: 1, Minor: 2, Patch: 0}

// ParseVersion parses a "major.minor.patch" string. A missing patch or minor
// component defaults to zero, so "1" and "1.0" both parse as 1.0.0.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q", s, p)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the canonical "major.minor.patch" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 when v is older than, equal to, or newer
// than other.
func (v Version) Compare(other Version) int {
	pairs := [3][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Before reports whether v is strictly older than other.
func (v Version) Before(other Version) bool { return v.Compare(other) < 0 }

// MarshalJSON encodes the version as its canonical string form.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts the canonical string form.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
