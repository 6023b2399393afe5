package dataset

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes column names and values in order. Two datasets with the
// same fingerprint hold byte-identical output.
func (d *Dataset) Fingerprint() uint64 {
	h := xxh3.New()
	var buf [8]byte
	for _, n := range d.names {
		_, _ = h.WriteString(n)
		_, _ = h.Write([]byte{0xff})
		for _, v := range d.cols[n] {
			_, _ = h.Write([]byte{byte(v.kind)})
			switch v.kind {
			case KindNumber:
				bits := math.Float64bits(v.num)
				if math.IsNaN(v.num) {
					bits = math.Float64bits(math.NaN())
				}
				binary.LittleEndian.PutUint64(buf[:], bits)
				_, _ = h.Write(buf[:])
			case KindString:
				binary.LittleEndian.PutUint64(buf[:], uint64(len(v.str)))
				_, _ = h.Write(buf[:])
				_, _ = h.WriteString(v.str)
			case KindBool:
				if v.b {
					_, _ = h.Write([]byte{1})
				} else {
					_, _ = h.Write([]byte{0})
				}
			}
		}
	}
	return h.Sum64()
}
