package persist

import "errors"

// Error taxonomy for the write and read paths. Read-path errors never
// escape the store as fatal; they drive the backup-then-recovery chain.
var (
	// ErrNotFound indicates the file does not exist.
	ErrNotFound = errors.New("state file not found")

	// ErrDeserialization indicates bytes could not be decoded into an
	// envelope.
	ErrDeserialization = errors.New("state file could not be decoded")

	// ErrWriteVerification indicates the temp file read back during an
	// atomic write did not match what was written.
	ErrWriteVerification = errors.New("write verification failed")

	// ErrAllBackupsExhausted indicates neither the primary file nor any
	// backup slot validated.
	ErrAllBackupsExhausted = errors.New("all backups exhausted")
)
