// Package ber decodes SMPTE ST 379-2 BER length fields, the length encoding
// used throughout MXF KLV triplets and partition packs.
package ber

import (
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
)

// MaxLongFormBytes is the largest number of subsequent length bytes ST 379-2
// permits in long form.
const MaxLongFormBytes = 8

// Length is a decoded BER length: its value and the total number of bytes
// its encoding occupied (1 for short form, 1+N for long form).
type Length struct {
	Value    uint64
	Encoded int
}

// Decode reads a BER length starting at offset in r. It returns an error for
// a long-form encoding with N == 0 or N > MaxLongFormBytes, or for a length
// field that runs past the end of r — both treated as a malformed/truncated
// KLV triplet by callers.
func Decode(r *bitreader.Reader, offset int64) (Length, error) {
	first, ok := r.ReadU8(offset)
	if !ok {
		return Length{}, fmt.Errorf("ber: length field at offset %d out of bounds", offset)
	}

	if first&0x80 == 0 {
		// Short form: the byte itself is the length.
		return Length{Value: uint64(first), Encoded: 1}, nil
	}

	n := int(first &^ 0x80)
	if n == 0 || n > MaxLongFormBytes {
		return Length{}, fmt.Errorf("ber: invalid long-form length count %d at offset %d", n, offset)
	}

	b := r.Slice(offset+1, int64(n))
	if b == nil {
		return Length{}, fmt.Errorf("ber: long-form length bytes at offset %d out of bounds", offset+1)
	}

	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return Length{Value: v, Encoded: 1 + n}, nil
}
