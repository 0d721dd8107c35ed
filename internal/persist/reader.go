package persist

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// ReadResult reports where a successful read ultimately came from.
type ReadResult struct {
	Envelope *envelope.Envelope
	// Slot is 0 when the primary validated, otherwise the backup slot
	// number the payload was recovered from.
	Slot int
	// Healed is true when the primary was rewritten from a valid backup.
	Healed bool
}

// Read loads and validates the primary file at path. On any failure
// (missing file, decode error, structural error, checksum mismatch) it
// walks backup slots newest-first, validating each the same way. The first
// valid backup wins, and the primary is healed by copying the backup over
// it so the next read does not pay the fallback again.
//
// If nothing validates, ErrAllBackupsExhausted is returned (wrapped with
// the primary's failure); the caller is expected to run Recover rather
// than treat this as a hard fault.
func Read(path string) (ReadResult, error) {
	env, primaryErr := readAndValidate(path)
	if primaryErr == nil {
		return ReadResult{Envelope: env}, nil
	}
	if !errors.Is(primaryErr, ErrNotFound) {
		slog.Warn("Primary state file invalid, trying backups",
			logfields.Path(path), logfields.Error(primaryErr))
	}

	for slot := 1; slot <= BackupSlots; slot++ {
		bak := BackupPath(path, slot)
		env, err := readAndValidate(bak)
		if err != nil {
			continue
		}
		res := ReadResult{Envelope: env, Slot: slot}
		if healErr := healPrimary(path, bak); healErr != nil {
			slog.Warn("Failed to heal primary from backup",
				logfields.Path(path), logfields.Error(healErr))
		} else {
			res.Healed = true
		}
		return res, nil
	}

	return ReadResult{}, fmt.Errorf("%w: %s (primary: %v)", ErrAllBackupsExhausted, path, primaryErr)
}

// readAndValidate opens one candidate file, decodes the envelope, enforces
// structural presence of payload and checksum, and recomputes the checksum
// over the re-serialized payload.
func readAndValidate(path string) (*envelope.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeserialization, path, err)
	}
	if err := env.Verify(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

// Validate checks a single file without fallback. Used by verify reports.
func Validate(path string) error {
	_, err := readAndValidate(path)
	return err
}

// healPrimary restores a consistent primary by copying the valid backup
// over it, using the same temp-then-rename commit as a normal write.
func healPrimary(path, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	tmp := TempPath(path)
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(tmp)
		return fmt.Errorf("remove invalid primary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit healed primary: %w", err)
	}
	return nil
}
