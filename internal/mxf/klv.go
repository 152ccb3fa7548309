// Package mxf implements a bounds-checked parser for the Material eXchange
// Format (MXF), OP1a/OPAtom: SMPTE KLV triplet walking, partition pack and
// Random Index Pack decoding, and the cross-validating report builder.
package mxf

import (
	"github.com/rendiffdev/containerintegrity/internal/ber"
	"github.com/rendiffdev/containerintegrity/internal/bitreader"
)

// KeySize is the fixed width of an MXF Universal Label key.
const KeySize = 16

// Key is a 16-byte SMPTE Universal Label.
type Key [KeySize]byte

// KLV is one decoded Key-Length-Value triplet: its key, the value's bounds,
// and the total byte span the triplet occupies (key + BER length + value).
type KLV struct {
	Key        Key
	ValueStart int64
	ValueEnd   int64
	TotalEnd   int64
}

// ReadKLV decodes one KLV triplet at offset within [0, end). It fails
// (ok=false) if the key, length field, or declared value run past end.
func ReadKLV(r *bitreader.Reader, offset, end int64) (KLV, bool) {
	if offset+KeySize > end {
		return KLV{}, false
	}
	keyBytes := r.Slice(offset, KeySize)
	if keyBytes == nil {
		return KLV{}, false
	}
	var key Key
	copy(key[:], keyBytes)

	length, err := ber.Decode(r, offset+KeySize)
	if err != nil {
		return KLV{}, false
	}

	valueStart := offset + KeySize + int64(length.Encoded)
	valueEnd := valueStart + int64(length.Value)
	if valueEnd > end || valueEnd < valueStart {
		return KLV{}, false
	}

	return KLV{Key: key, ValueStart: valueStart, ValueEnd: valueEnd, TotalEnd: valueEnd}, true
}

// WalkKLVs decodes consecutive KLV triplets in [start, end), stopping (and
// returning what it found so far) at the first triplet it cannot decode —
// per the spec, traversal of a malformed area halts rather than aborting
// the whole inspection.
func WalkKLVs(r *bitreader.Reader, start, end int64) ([]KLV, bool) {
	var out []KLV
	offset := start
	for offset < end {
		klv, ok := ReadKLV(r, offset, end)
		if !ok {
			return out, false
		}
		out = append(out, klv)
		offset = klv.TotalEnd
	}
	return out, true
}
