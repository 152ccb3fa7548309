package mxf

import (
	"github.com/rendiffdev/containerintegrity/internal/ber"
	"github.com/rendiffdev/containerintegrity/internal/bitreader"
)

// RIPKey is the fixed 16-byte Random Index Pack Universal Label.
var RIPKey = Key{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x11, 0x01, 0x00}

// minRIPTotalLength is the smallest plausible total RIP length: a 16-byte
// key, a 1-byte short-form BER length, one 12-byte entry, and the trailing
// 4-byte total-length field. The spec treats anything smaller as
// impossibly small to be a real RIP.
const minRIPTotalLength = 33

// RIPEntry is one partition index entry: which body stream it belongs to
// and its absolute byte offset.
type RIPEntry struct {
	BodySID    uint32
	ByteOffset uint64
}

// RIP is the decoded Random Index Pack.
type RIP struct {
	Offset  int64
	Entries []RIPEntry
}

// ParseRIP locates and decodes the Random Index Pack from the file tail. It
// returns ok=false (with no diagnostic of its own — the validator decides
// what a missing/malformed RIP means) when the trailing length field is
// absent, implausibly small, or points outside the file.
func ParseRIP(r *bitreader.Reader, fileSize int64) (RIP, bool) {
	if fileSize < 4 {
		return RIP{}, false
	}
	totalLen, ok := r.ReadU32BE(fileSize - 4)
	if !ok {
		return RIP{}, false
	}
	ripTotalLength := int64(totalLen)
	if ripTotalLength < minRIPTotalLength || ripTotalLength > fileSize {
		return RIP{}, false
	}

	ripOffset := fileSize - ripTotalLength
	klv, ok := ReadKLV(r, ripOffset, fileSize-4)
	if !ok || klv.Key != RIPKey {
		return RIP{}, false
	}

	length, err := ber.Decode(r, ripOffset+KeySize)
	if err != nil || length.Value < 4 {
		return RIP{}, false
	}
	entryCount := (length.Value - 4) / 12
	if entryCount > maxRIPEntries {
		entryCount = maxRIPEntries
	}

	out := RIP{Offset: ripOffset}
	offset := klv.ValueStart
	for i := uint64(0); i < entryCount; i++ {
		bodySID, ok1 := r.ReadU32BE(offset)
		byteOffset, ok2 := r.ReadU64BE(offset + 4)
		if !ok1 || !ok2 {
			break
		}
		out.Entries = append(out.Entries, RIPEntry{BodySID: bodySID, ByteOffset: byteOffset})
		offset += 12
	}
	return out, true
}

// maxRIPEntries caps RIP entry decoding against a corrupt BER length.
const maxRIPEntries = 5_000_000
