// Package persist implements the durability layer for component state
// files: checksummed atomic writes, rotating backups, validated reads with
// primary healing, and heuristic corruption recovery.
package persist

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// TempPath returns the transient sibling used during an atomic write. It
// must never persist outside an in-progress write.
func TempPath(path string) string { return path + ".tmp" }

// AtomicWrite persists payload to path such that a reader never observes a
// half-written file. The sequence is: serialize and checksum the payload
// into an envelope, write the envelope to a temp sibling, read the temp
// file back and byte-compare, then rename over the primary. On success the
// envelope bytes are rotated into the backup slots.
//
// Failures before the rename leave the primary untouched; retry is the
// caller's concern.
func AtomicWrite(path string, payload envelope.Payload) (*envelope.Envelope, error) {
	env, err := envelope.New(payload)
	if err != nil {
		return nil, err
	}
	data, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	tmp := TempPath(path)
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	// Read back and verify before the temp file becomes the primary.
	readBack, err := os.ReadFile(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("read back temp file: %w", err)
	}
	if !bytes.Equal(readBack, data) {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: %s", ErrWriteVerification, tmp)
	}

	// The rename is the sole atomicity boundary.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("remove old primary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("commit state file: %w", err)
	}

	if err := rotateBackups(path, data); err != nil {
		// The primary is already committed; a backup rotation failure
		// degrades redundancy but not correctness.
		slog.Warn("Backup rotation failed", logfields.Path(path), logfields.Error(err))
	}
	return env, nil
}
