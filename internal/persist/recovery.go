package persist

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// RecoverySource describes how a recovered payload was produced.
type RecoverySource string

const (
	RecoveryBracket    RecoverySource = "bracket_extraction"
	RecoveryTruncation RecoverySource = "truncation_repair"
	RecoveryDefaults   RecoverySource = "defaults"
)

// Recover is the last resort after Read has exhausted primary and backups.
// It never fails: each candidate file (primary first, then backups
// newest-first) is run through the heuristic pipeline, and if nothing
// yields a parseable payload the component-specific defaults are returned.
//
// The returned version is the salvaged schema_version when the heuristics
// could read one, the zero version when they could not (so the caller's
// migration chain replays from the beginning), and the current schema for
// defaults. The caller is responsible for migrating and re-persisting
// whatever comes back so subsequent reads do not repeat the recovery.
func Recover(path string, defaults func() envelope.Payload) (envelope.Payload, envelope.Version, RecoverySource) {
	candidates := []string{path}
	for slot := 1; slot <= BackupSlots; slot++ {
		candidates = append(candidates, BackupPath(path, slot))
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil || len(data) == 0 {
			continue
		}
		if payload, from, ok := extractBracketSlice(data); ok {
			slog.Info("Recovered payload by bracket extraction",
				logfields.Path(candidate))
			return payload, from, RecoveryBracket
		}
		if payload, from, ok := repairTruncated(data); ok {
			slog.Info("Recovered payload by truncation repair",
				logfields.Path(candidate))
			return payload, from, RecoveryTruncation
		}
	}

	slog.Warn("Recovery heuristics exhausted, falling back to defaults",
		logfields.Path(path))
	return defaults(), envelope.CurrentSchema, RecoveryDefaults
}

// extractBracketSlice locates the first opening brace and the last closing
// brace, slices between them, and attempts to parse the slice as a map.
// Handles files with leading or trailing garbage around an intact object.
func extractBracketSlice(data []byte) (envelope.Payload, envelope.Version, bool) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end <= start {
		return nil, envelope.Version{}, false
	}
	return decodeRecovered(data[start : end+1])
}

// repairTruncated handles files cut off mid-write: any trailing
// unterminated string literal is trimmed, then every unclosed brace and
// bracket is closed in nesting order.
func repairTruncated(data []byte) (envelope.Payload, envelope.Version, bool) {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil, envelope.Version{}, false
	}
	b := data[start:]

	var stack []byte
	inString, escaped := false, false
	lastStringStart := -1
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			lastStringStart = i
		case '{':
			stack = append(stack, '}')
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '}' {
				stack = stack[:len(stack)-1]
			}
		case '[':
			stack = append(stack, ']')
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == ']' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString && lastStringStart >= 0 {
		b = b[:lastStringStart]
	}
	repaired := trimDanglingMember(b)
	for i := len(stack) - 1; i >= 0; i-- {
		repaired = append(repaired, stack[i])
	}
	return decodeRecovered(repaired)
}

// trimDanglingMember removes an incomplete trailing object member, such as
// the `"key":` left behind once an unterminated value string is trimmed.
func trimDanglingMember(b []byte) []byte {
	b = bytes.TrimRight(b, " \t\r\n,")
	if len(b) == 0 || b[len(b)-1] != ':' {
		return b
	}
	b = bytes.TrimRight(b[:len(b)-1], " \t\r\n")
	if len(b) > 0 && b[len(b)-1] == '"' {
		if open := bytes.LastIndexByte(b[:len(b)-1], '"'); open >= 0 {
			b = b[:open]
		}
	}
	return bytes.TrimRight(b, " \t\r\n,")
}

// decodeRecovered parses recovered bytes as a map. When the map looks like
// a full envelope its payload subtree is returned, along with any parseable
// schema_version; otherwise the map itself is treated as the payload at the
// zero version.
func decodeRecovered(data []byte) (envelope.Payload, envelope.Version, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, envelope.Version{}, false
	}
	if inner, ok := m["payload"].(map[string]any); ok {
		var from envelope.Version
		if s, ok := m["schema_version"].(string); ok {
			if v, err := envelope.ParseVersion(s); err == nil {
				from = v
			}
		}
		return inner, from, true
	}
	if len(m) == 0 {
		return nil, envelope.Version{}, false
	}
	return m, envelope.Version{}, true
}
