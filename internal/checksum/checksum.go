// Package checksum provides the integrity code computed over serialized
// component payloads. CRC-32 with the reflected polynomial 0xEDB88320
// (the IEEE polynomial), standard 0xFFFFFFFF initial and final XOR.
package checksum

import "hash/crc32"

// table is the 256-entry lookup table, built once at init and reused for
// every checksum computation.
var table = crc32.MakeTable(crc32.IEEE)

// Sum computes the CRC-32 of data. Deterministic, no side effects.
// The empty input yields 0, the algorithm's defined value for
// zero-length data.
func Sum(data []byte) uint32 {
	return crc32.Checksum(data, table)
}
