package mxf_test

import "encoding/binary"

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64be(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func concatBytes(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// partitionKey builds a 16-byte partition pack key for the given kind and
// status bytes.
func partitionKey(kind, status byte) []byte {
	return []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, kind, status, 0x00}
}

// op1aUL is a representative OP1a operational-pattern UL.
var op1aUL = []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x01, 0x01, 0x00}

type partitionFields struct {
	kagSize           uint32
	thisPartition     uint64
	previousPartition uint64
	footerPartition   uint64
	headerByteCount   uint64
	indexByteCount    uint64
	indexSID          uint32
	bodySID           uint32
	operationalPattern []byte
	essenceULs        [][]byte
}

// partitionPackValue lays out a partition pack value per the fixed field
// offsets this package's parser reads.
func partitionPackValue(f partitionFields) []byte {
	value := make([]byte, 88)
	binary.BigEndian.PutUint32(value[4:8], f.kagSize)
	binary.BigEndian.PutUint64(value[8:16], f.thisPartition)
	binary.BigEndian.PutUint64(value[16:24], f.previousPartition)
	binary.BigEndian.PutUint64(value[24:32], f.footerPartition)
	binary.BigEndian.PutUint64(value[32:40], f.headerByteCount)
	binary.BigEndian.PutUint64(value[40:48], f.indexByteCount)
	binary.BigEndian.PutUint32(value[48:52], f.indexSID)
	binary.BigEndian.PutUint32(value[60:64], f.bodySID)
	op := f.operationalPattern
	if op == nil {
		op = op1aUL
	}
	copy(value[64:80], op)
	binary.BigEndian.PutUint32(value[80:84], uint32(len(f.essenceULs)))
	binary.BigEndian.PutUint32(value[84:88], 16)
	for _, ul := range f.essenceULs {
		value = append(value, ul...)
	}
	return value
}

// berLength encodes a short-form BER length (values < 0x80 only, sufficient
// for these fixtures).
func berLength(n int) []byte {
	return []byte{byte(n)}
}

func partitionPackKLV(kind, status byte, f partitionFields) []byte {
	value := partitionPackValue(f)
	return concatBytes(partitionKey(kind, status), berLength(len(value)), value)
}

func ripKLV(entries [][2]uint64) []byte {
	// entries: {bodySID, byteOffset}
	key := []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x11, 0x01, 0x00}
	value := []byte{}
	for _, e := range entries {
		value = concatBytes(value, u32be(uint32(e[0])), u64be(e[1]))
	}
	value = concatBytes(value, u32be(0)) // 4 trailing value bytes; ParseRIP leaves them out of the entry count
	body := concatBytes(key, berLength(len(value)), value)
	total := len(body) + 4
	return concatBytes(body, u32be(uint32(total)))
}
