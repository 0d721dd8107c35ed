package persist

import (
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
)

func testPayload() envelope.Payload {
	return envelope.Payload{"x": 10, "y": 64, "z": -3}
}

func TestAtomicWriteCreatesValidPrimary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.state")

	env, err := AtomicWrite(path, testPayload())
	if err != nil {
		t.Fatalf("atomic write: %v", err)
	}
	if env.WriteID == "" {
		t.Error("expected write id on committed envelope")
	}
	if err := Validate(path); err != nil {
		t.Fatalf("freshly written primary failed validation: %v", err)
	}
	if _, err := os.Stat(TempPath(path)); !os.IsNotExist(err) {
		t.Error("temp file persisted outside an in-progress write")
	}
}

func TestAtomicWritePopulatesBackupSlotOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.state")

	if _, err := AtomicWrite(path, testPayload()); err != nil {
		t.Fatalf("atomic write: %v", err)
	}

	primary, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	bak1, err := os.ReadFile(BackupPath(path, 1))
	if err != nil {
		t.Fatalf("read backup slot 1: %v", err)
	}
	if string(primary) != string(bak1) {
		t.Error("backup slot 1 does not match the committed primary")
	}
}

// A leftover temp file from an interrupted write must not disturb the
// committed primary, and the next write must still succeed.
func TestAtomicWriteInterruptionLeavesPrimaryIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.state")

	if _, err := AtomicWrite(path, testPayload()); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}

	// Simulate a crash after the temp file was written but before the
	// rename: a stale temp file sits beside a valid primary.
	if err := os.WriteFile(TempPath(path), []byte("half-written"), 0600); err != nil {
		t.Fatalf("plant stale temp: %v", err)
	}

	if err := Validate(path); err != nil {
		t.Fatalf("primary invalid after simulated interruption: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("re-read primary: %v", err)
	}
	if string(before) != string(after) {
		t.Error("primary changed by interrupted write")
	}

	if _, err := AtomicWrite(path, envelope.Payload{"x": 11}); err != nil {
		t.Fatalf("write after interruption: %v", err)
	}
	if err := Validate(path); err != nil {
		t.Fatalf("primary invalid after retry: %v", err)
	}
}

func TestAtomicWriteRejectsUnserializablePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.state")

	_, err := AtomicWrite(path, envelope.Payload{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected serialization error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("primary created despite serialization failure")
	}
}
