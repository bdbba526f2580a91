package confound

import (
	"encoding/binary"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/spaolacci/murmur3"
)

// Fingerprint hashes the shape and the bit pattern of every element.
// Bitwise-identical matrices, and only those (up to collisions), share a
// fingerprint.
func Fingerprint(m *mat64.Dense) uint64 {
	rows, cols := m.Dims()
	h := murmur3.New64()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(rows))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(cols))
	h.Write(buf[:])

	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}

	return h.Sum64()
}
