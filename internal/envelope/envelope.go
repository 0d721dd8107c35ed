// Package envelope defines the on-disk record wrapping a component payload:
// schema version, integrity checksum, write timestamp, and the payload tree
// itself. The checksum is always computed over the canonical JSON encoding
// of the payload so it can be recomputed byte-identically after a read.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/fieldstate/internal/checksum"
)

var (
	// ErrStructural indicates a decoded envelope is missing required
	// fields (payload or checksum).
	ErrStructural = errors.New("envelope missing required fields")

	// ErrChecksumMismatch indicates the recomputed payload checksum does
	// not match the stored one.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
)

// Envelope is the versioned, checksummed wrapper around a component payload.
type Envelope struct {
	SchemaVersion Version `json:"schema_version"`
	Checksum      uint32  `json:"checksum"`
	Timestamp     int64   `json:"timestamp"`
	WriteID       string  `json:"write_id,omitempty"`
	Payload       Payload `json:"payload"`
}

// rawEnvelope mirrors Envelope with pointer fields so structural presence
// can be checked after decode.
type rawEnvelope struct {
	SchemaVersion *Version        `json:"schema_version"`
	Checksum      *uint32         `json:"checksum"`
	Timestamp     int64           `json:"timestamp"`
	WriteID       string          `json:"write_id"`
	Payload       json.RawMessage `json:"payload"`
}

// EncodePayload produces the canonical JSON encoding of a payload. Map keys
// are emitted sorted, so the encoding is deterministic for a given tree.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// New builds an envelope for p at the current schema version. The payload is
// normalized through a JSON round-trip first so that non-canonical values
// (typed structs, integer scalars) checksum identically after a later read.
func New(p Payload) (*Envelope, error) {
	normalized, encoded, err := normalize(p)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		SchemaVersion: CurrentSchema,
		Checksum:      checksum.Sum(encoded),
		Timestamp:     time.Now().Unix(),
		WriteID:       uuid.NewString(),
		Payload:       normalized,
	}, nil
}

// normalize round-trips p through its JSON encoding, returning the canonical
// payload tree and the bytes the checksum is computed over.
func normalize(p Payload) (Payload, []byte, error) {
	encoded, err := EncodePayload(p)
	if err != nil {
		return nil, nil, err
	}
	var normalized Payload
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, nil, fmt.Errorf("normalize payload: %w", err)
	}
	// Re-encode in case normalization changed the byte form (it should
	// not, but the checksum must match what a reader recomputes).
	canonical, err := EncodePayload(normalized)
	if err != nil {
		return nil, nil, err
	}
	return normalized, canonical, nil
}

// Marshal encodes the envelope for storage. Indented so corrupted files
// remain tractable for the recovery heuristics and for humans.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses envelope bytes and enforces structural requirements: both
// the payload and checksum fields must be present. The checksum is NOT
// verified here; call Verify.
func Decode(data []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Payload == nil || raw.Checksum == nil {
		return nil, ErrStructural
	}
	var payload Payload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	env := &Envelope{
		Checksum:  *raw.Checksum,
		Timestamp: raw.Timestamp,
		WriteID:   raw.WriteID,
		Payload:   payload,
	}
	if raw.SchemaVersion != nil {
		env.SchemaVersion = *raw.SchemaVersion
	}
	return env, nil
}

// Verify recomputes the checksum over the re-serialized payload and compares
// it to the stored value. The stored checksum is never trusted blindly.
func (e *Envelope) Verify() error {
	encoded, err := EncodePayload(e.Payload)
	if err != nil {
		return err
	}
	if got := checksum.Sum(encoded); got != e.Checksum {
		return fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksumMismatch, e.Checksum, got)
	}
	return nil
}
