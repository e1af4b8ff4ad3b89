// Package vector provides the fixed-length embedding encoding and the
// distance operator used by the progress store. Embeddings are stored
// as little-endian float32 BLOBs; similarity queries order candidates
// by Euclidean (L2) distance, ascending.
package vector

import (
	"encoding/binary"
	"math"
)

// Pack packs float32 values into a byte slice
func Pack(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Unpack unpacks a byte slice into float32 values
func Unpack(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// L2Distance computes the Euclidean distance between two vectors.
// Returns +Inf for mismatched lengths so bad candidates never rank.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
