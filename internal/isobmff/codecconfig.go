package isobmff

import "github.com/rendiffdev/containerintegrity/internal/bitreader"

// CodecType identifies which decoder configuration record was found.
type CodecType string

const (
	CodecH264  CodecType = "H264"
	CodecH265  CodecType = "H265"
	CodecOther CodecType = "Other"
)

// videoSampleEntryPreambleSize is the 8-byte box header plus the 70 bytes of
// fixed VisualSampleEntry fields preceding any codec-specific child boxes.
const videoSampleEntryPreambleSize = 8 + 70

// CodecConfig is the decoded result of locating and parsing an avcC or hvcC
// box: its type and the NAL length-prefix size every sample uses.
type CodecConfig struct {
	CodecType     CodecType
	NalLengthSize int
	HasSPS        bool
	HasPPS        bool
	HasVPS        bool // hvcC only
	Truncated     bool
}

// deriveNalLengthSize maps lengthSizeMinusOne's low 2 bits to {1,2,4}. Value
// 3 (4-byte length) is the standard case; the high 6 bits are reserved and
// ignored per the source behavior this mirrors.
func deriveNalLengthSize(lengthSizeMinusOne uint8) int {
	switch lengthSizeMinusOne & 0x03 {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

// sampleEntryChildren returns the children of the given stsd box's first
// sample entry, skipping the fixed video-sample-entry preamble.
func sampleEntryChildren(r *bitreader.Reader, stsd Box) []Box {
	// stsd: version(1)+flags(3)+entry_count(4), then sample entries.
	const stsdPrologue = fullBoxPrologueSize + 4
	if stsd.PayloadSize < stsdPrologue+8 {
		return nil
	}
	entryOffset := stsd.PayloadOffset + stsdPrologue
	size32, ok := r.ReadU32BE(entryOffset)
	if !ok {
		return nil
	}
	entryEnd := entryOffset + int64(size32)
	if entryEnd > stsd.End() || int64(size32) < videoSampleEntryPreambleSize {
		return nil
	}
	childStart := entryOffset + videoSampleEntryPreambleSize
	return WalkBoxes(r, childStart, entryEnd, MaxDepth)
}

// ParseCodecConfig locates avcC/hvcC among a stsd box's first sample entry's
// children and decodes it.
func ParseCodecConfig(r *bitreader.Reader, stsd Box) (CodecConfig, bool) {
	children := sampleEntryChildren(r, stsd)
	if children == nil {
		return CodecConfig{}, false
	}
	if avcC := FindChild(children, TypeAvcC); avcC != nil {
		return parseAvcC(r, *avcC)
	}
	if hvcC := FindChild(children, TypeHvcC); hvcC != nil {
		return parseHvcC(r, *hvcC)
	}
	return CodecConfig{}, false
}

// parseAvcC decodes an avcC box: configurationVersion(1), profile(1),
// compatibility(1), level(1), lengthSizeMinusOne(1, low 2 bits), then
// numSPS(1, low 5 bits) and that many 16-bit-length-prefixed SPS NALs,
// followed by numPPS(1) and that many PPS NALs.
func parseAvcC(r *bitreader.Reader, box Box) (CodecConfig, bool) {
	cfg := CodecConfig{CodecType: CodecH264}
	if box.PayloadSize < 6 {
		cfg.Truncated = true
		return cfg, true
	}
	lengthSizeByte, ok := r.ReadU8(box.PayloadOffset + 4)
	if !ok {
		cfg.Truncated = true
		return cfg, true
	}
	cfg.NalLengthSize = deriveNalLengthSize(lengthSizeByte)

	numSPSByte, ok := r.ReadU8(box.PayloadOffset + 5)
	if !ok {
		cfg.Truncated = true
		return cfg, true
	}
	numSPS := int(numSPSByte & 0x1F)

	offset := box.PayloadOffset + 6
	for i := 0; i < numSPS; i++ {
		length, ok := r.ReadU16BE(offset)
		if !ok {
			cfg.Truncated = true
			return cfg, true
		}
		offset += 2 + int64(length)
		if offset > box.End() {
			cfg.Truncated = true
			return cfg, true
		}
		cfg.HasSPS = true
	}

	numPPSByte, ok := r.ReadU8(offset)
	if !ok {
		cfg.Truncated = true
		return cfg, true
	}
	numPPS := int(numPPSByte)
	offset++
	for i := 0; i < numPPS; i++ {
		length, ok := r.ReadU16BE(offset)
		if !ok {
			cfg.Truncated = true
			return cfg, true
		}
		offset += 2 + int64(length)
		if offset > box.End() {
			cfg.Truncated = true
			return cfg, true
		}
		cfg.HasPPS = true
	}

	return cfg, true
}

// hvcC NAL unit array type values required for conformance.
const (
	hevcNalVPS = 32
	hevcNalSPS = 33
	hevcNalPPS = 34
)

// parseHvcC decodes an hvcC box: a 22-byte fixed header, numOfArrays(1),
// then that many arrays of {nalType(1, low 6 bits), numNALUs(2), entries of
// 16-bit-length-prefixed NALUs}.
func parseHvcC(r *bitreader.Reader, box Box) (CodecConfig, bool) {
	cfg := CodecConfig{CodecType: CodecH265, NalLengthSize: 4}
	const fixedHeaderSize = 22
	if box.PayloadSize < fixedHeaderSize+1 {
		cfg.Truncated = true
		return cfg, true
	}
	lengthSizeByte, ok := r.ReadU8(box.PayloadOffset + 21)
	if !ok {
		cfg.Truncated = true
		return cfg, true
	}
	cfg.NalLengthSize = deriveNalLengthSize(lengthSizeByte)

	numArraysByte, ok := r.ReadU8(box.PayloadOffset + fixedHeaderSize)
	if !ok {
		cfg.Truncated = true
		return cfg, true
	}
	numArrays := int(numArraysByte)

	offset := box.PayloadOffset + fixedHeaderSize + 1
	for a := 0; a < numArrays; a++ {
		nalTypeByte, ok := r.ReadU8(offset)
		if !ok {
			cfg.Truncated = true
			return cfg, true
		}
		nalType := nalTypeByte & 0x3F
		numNALUs, ok := r.ReadU16BE(offset + 1)
		if !ok {
			cfg.Truncated = true
			return cfg, true
		}
		offset += 3
		for i := 0; i < int(numNALUs); i++ {
			length, ok := r.ReadU16BE(offset)
			if !ok {
				cfg.Truncated = true
				return cfg, true
			}
			offset += 2 + int64(length)
			if offset > box.End() {
				cfg.Truncated = true
				return cfg, true
			}
		}
		switch nalType {
		case hevcNalVPS:
			cfg.HasVPS = true
		case hevcNalSPS:
			cfg.HasSPS = true
		case hevcNalPPS:
			cfg.HasPPS = true
		}
	}

	return cfg, true
}
