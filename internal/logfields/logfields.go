package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyComponent  = "component"
	KeyPath       = "path"
	KeySlot       = "backup_slot"
	KeySource     = "source"
	KeyWriteID    = "write_id"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Slot(n int) slog.Attr            { return slog.Int(KeySlot, n) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func WriteID(id string) slog.Attr     { return slog.String(KeyWriteID, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
