package mxf

import (
	"bytes"
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
)

// partitionPrefix is the fixed 13-byte SMPTE prefix shared by every
// partition pack key; byte 13 distinguishes kind, byte 14 status.
var partitionPrefix = [13]byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01}

// PartitionKind classifies a partition pack.
type PartitionKind string

const (
	PartitionHeader  PartitionKind = "Header"
	PartitionBody    PartitionKind = "Body"
	PartitionFooter  PartitionKind = "Footer"
	PartitionUnknown PartitionKind = "Unknown"
)

// PartitionStatus records whether a partition's metadata is open/closed and
// complete/incomplete.
type PartitionStatus string

const (
	StatusOpenIncomplete   PartitionStatus = "OpenIncomplete"
	StatusClosedIncomplete PartitionStatus = "ClosedIncomplete"
	StatusOpenComplete     PartitionStatus = "OpenComplete"
	StatusClosedComplete   PartitionStatus = "ClosedComplete"
	StatusUnknown          PartitionStatus = "Unknown"
)

func kindFromByte(b byte) PartitionKind {
	switch b {
	case 0x02:
		return PartitionHeader
	case 0x03:
		return PartitionBody
	case 0x04:
		return PartitionFooter
	default:
		return PartitionUnknown
	}
}

func statusFromByte(b byte) PartitionStatus {
	switch b {
	case 0x01:
		return StatusOpenIncomplete
	case 0x02:
		return StatusClosedIncomplete
	case 0x03:
		return StatusOpenComplete
	case 0x04:
		return StatusClosedComplete
	default:
		return StatusUnknown
	}
}

// IsPartitionPackKey reports whether k matches the fixed 13-byte partition
// prefix (kind/status bytes are not constrained here; callers decode them
// separately).
func IsPartitionPackKey(k Key) bool {
	return bytes.Equal(k[:13], partitionPrefix[:])
}

// Partition is a fully decoded partition pack.
type Partition struct {
	Kind                PartitionKind
	Status              PartitionStatus
	FileOffset          int64
	ThisPartition       uint64
	PreviousPartition   uint64
	FooterPartition     uint64
	HeaderByteCount      uint64
	IndexByteCount      uint64
	IndexSID            uint32
	BodySID             uint32
	KAGSize             uint32
	OperationalPattern  Key
	EssenceContainerULs []Key
	// KLVValueEnd is the absolute offset where this partition pack's value
	// ends, i.e. where the partition's metadata/essence content begins.
	KLVValueEnd int64
}

// unknownOperationalPatternName is the sentinel OperationalPatternName
// returns when UL bytes 12-13 don't match any recognized item/package code.
const unknownOperationalPatternName = "Unknown Operational Pattern"

// OperationalPatternName derives a human-readable OP name from UL bytes 12
// and 13 (item, package).
func OperationalPatternName(ul Key) string {
	item := ul[12]
	pkg := ul[13]

	var itemName string
	switch item {
	case 0x01:
		itemName = "OP1"
	case 0x02:
		itemName = "OP2"
	case 0x03:
		itemName = "OP3"
	case 0x10:
		itemName = "OPAtom"
	default:
		return unknownOperationalPatternName
	}

	if item == 0x10 {
		return itemName
	}

	var suffix string
	switch pkg {
	case 0x01:
		suffix = "a"
	case 0x02:
		suffix = "b"
	case 0x03:
		suffix = "c"
	default:
		return unknownOperationalPatternName
	}
	return itemName + suffix
}

// partition pack value field offsets, relative to the value's start.
const (
	offsetKAGSize             = 4
	offsetThisPartition       = 8
	offsetPreviousPartition   = 16
	offsetFooterPartition     = 24
	offsetHeaderByteCount     = 32
	offsetIndexByteCount      = 40
	offsetIndexSID            = 48
	offsetBodySID             = 60
	offsetOperationalPattern  = 64
	offsetBatch               = 80
	minPartitionValueSize     = offsetBatch + 8 // count(4) + item length(4)
)

// ParsePartitionPack decodes the partition pack KLV whose key begins at
// offset, given the value's [start, end) range from a prior ReadKLV. Returns
// ok=false if the value is too short for the fixed fields it needs.
func ParsePartitionPack(r *bitreader.Reader, klv KLV, fileOffset int64) (Partition, bool) {
	valueSize := klv.ValueEnd - klv.ValueStart
	if valueSize < minPartitionValueSize {
		return Partition{}, false
	}

	kagSize, ok := r.ReadU32BE(klv.ValueStart + offsetKAGSize)
	if !ok {
		return Partition{}, false
	}
	thisPartition, _ := r.ReadU64BE(klv.ValueStart + offsetThisPartition)
	previousPartition, ok2 := r.ReadU64BE(klv.ValueStart + offsetPreviousPartition)
	footerPartition, ok3 := r.ReadU64BE(klv.ValueStart + offsetFooterPartition)
	headerByteCount, ok4 := r.ReadU64BE(klv.ValueStart + offsetHeaderByteCount)
	indexByteCount, ok5 := r.ReadU64BE(klv.ValueStart + offsetIndexByteCount)
	indexSID, ok6 := r.ReadU32BE(klv.ValueStart + offsetIndexSID)
	bodySID, ok7 := r.ReadU32BE(klv.ValueStart + offsetBodySID)
	opBytes := r.Slice(klv.ValueStart+offsetOperationalPattern, KeySize)
	if !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || opBytes == nil {
		return Partition{}, false
	}
	var op Key
	copy(op[:], opBytes)

	batchCount, ok8 := r.ReadU32BE(klv.ValueStart + offsetBatch)
	itemLength, ok9 := r.ReadU32BE(klv.ValueStart + offsetBatch + 4)
	var uls []Key
	if ok8 && ok9 && itemLength == KeySize {
		entryStart := klv.ValueStart + offsetBatch + 8
		for i := uint32(0); i < batchCount; i++ {
			o := entryStart + int64(i)*KeySize
			if o+KeySize > klv.ValueEnd {
				break
			}
			b := r.Slice(o, KeySize)
			if b == nil {
				break
			}
			var ul Key
			copy(ul[:], b)
			uls = append(uls, ul)
		}
	}

	keyByte13 := klv.Key[13]
	keyByte14 := klv.Key[14]

	return Partition{
		Kind:                kindFromByte(keyByte13),
		Status:              statusFromByte(keyByte14),
		FileOffset:          fileOffset,
		ThisPartition:       thisPartition,
		PreviousPartition:   previousPartition,
		FooterPartition:     footerPartition,
		HeaderByteCount:     headerByteCount,
		IndexByteCount:      indexByteCount,
		IndexSID:            indexSID,
		BodySID:             bodySID,
		KAGSize:             kagSize,
		OperationalPattern:  op,
		EssenceContainerULs: uls,
		KLVValueEnd:         klv.ValueEnd,
	}, true
}

// HexKey formats a Key as a hyphen-free uppercase hex string, for set
// comparisons and diagnostic text.
func HexKey(k Key) string {
	return fmt.Sprintf("%X", k[:])
}
