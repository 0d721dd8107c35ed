package persist

import (
	"fmt"
	"os"
)

// BackupSlots is the number of rotating prior snapshots kept per component
// file, numbered 1 (most recent) through BackupSlots (oldest).
const BackupSlots = 3

// BackupPath returns the file path of backup slot n for the given primary.
func BackupPath(path string, slot int) string {
	return fmt.Sprintf("%s.bak%d", path, slot)
}

// rotateBackups shifts each slot one generation older, then writes the
// just-committed envelope bytes into slot 1. Slot k is only ever
// overwritten by what was previously slot k-1.
func rotateBackups(path string, data []byte) error {
	for slot := BackupSlots; slot >= 2; slot-- {
		prev := BackupPath(path, slot-1)
		prevData, err := os.ReadFile(prev)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read backup slot %d: %w", slot-1, err)
		}
		if err := os.WriteFile(BackupPath(path, slot), prevData, 0600); err != nil {
			return fmt.Errorf("shift backup slot %d: %w", slot, err)
		}
	}
	if err := os.WriteFile(BackupPath(path, 1), data, 0600); err != nil {
		return fmt.Errorf("write backup slot 1: %w", err)
	}
	return nil
}

// SlotStatus describes one file in a component's backup set.
type SlotStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size"`
}

// BackupStatus reports existence and size of the primary file and each
// backup slot, for diagnostics.
type BackupStatus struct {
	Primary SlotStatus   `json:"primary"`
	Slots   []SlotStatus `json:"slots"`
}

// Status inspects the primary and every backup slot of path.
func Status(path string) BackupStatus {
	st := BackupStatus{Primary: statFile(path)}
	for slot := 1; slot <= BackupSlots; slot++ {
		st.Slots = append(st.Slots, statFile(BackupPath(path, slot)))
	}
	return st
}

func statFile(path string) SlotStatus {
	s := SlotStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return s
	}
	s.Exists = true
	s.Size = info.Size()
	return s
}
