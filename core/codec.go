package core

import (
	"encoding/binary"
	"math"
)

// EncodeDouble writes v as 8 little-endian bytes, the wire format used by
// every word-sized slot in main memory and in cache line data.
func EncodeDouble(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// DecodeDouble reads 8 little-endian bytes back into a float64.
func DecodeDouble(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
