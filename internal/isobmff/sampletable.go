package isobmff

import "github.com/rendiffdev/containerintegrity/internal/bitreader"

// maxTableEntries caps every entry-count-driven allocation so a malicious or
// corrupt entry_count field cannot exhaust memory. Chosen within the
// documented [1e6, 1e7] safety range.
const maxTableEntries = 5_000_000

// fullBoxPrologueSize is the version(1)+flags(3) prologue common to every
// ISOBMFF "full box".
const fullBoxPrologueSize = 4

// SttsEntry is one (sampleCount, sampleDelta) pair from a stts box.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// SttsTable is the parsed time-to-sample table, plus whether entry_count was
// clamped by the safety ceiling.
type SttsTable struct {
	Entries []SttsEntry
	Capped  bool
}

// TotalSamples sums SampleCount across all entries.
func (t SttsTable) TotalSamples() uint64 {
	var total uint64
	for _, e := range t.Entries {
		total += uint64(e.SampleCount)
	}
	return total
}

// ParseStts decodes a stts box payload. Returns ok=false if the box is too
// short to contain its prologue.
func ParseStts(r *bitreader.Reader, box Box) (SttsTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return SttsTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return SttsTable{}, false
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := SttsTable{Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	for i := 0; i < n; i++ {
		sc, ok1 := r.ReadU32BE(offset)
		sd, ok2 := r.ReadU32BE(offset + 4)
		if !ok1 || !ok2 {
			break
		}
		out.Entries = append(out.Entries, SttsEntry{SampleCount: sc, SampleDelta: sd})
		offset += 8
	}
	return out, true
}

// CttsEntry is one (sampleCount, sampleOffset) pair from a ctts box. The
// offset is read as signed so version-1 negative composition offsets are
// preserved.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset int32
}

// CttsTable is the parsed composition-time-to-sample table.
type CttsTable struct {
	Entries []CttsEntry
	Capped  bool
}

// TotalSamples sums SampleCount across all entries.
func (t CttsTable) TotalSamples() uint64 {
	var total uint64
	for _, e := range t.Entries {
		total += uint64(e.SampleCount)
	}
	return total
}

// ParseCtts decodes a ctts box payload.
func ParseCtts(r *bitreader.Reader, box Box) (CttsTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return CttsTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return CttsTable{}, false
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := CttsTable{Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	for i := 0; i < n; i++ {
		sc, ok1 := r.ReadU32BE(offset)
		so, ok2 := r.ReadI32BE(offset + 4)
		if !ok1 || !ok2 {
			break
		}
		out.Entries = append(out.Entries, CttsEntry{SampleCount: sc, SampleOffset: so})
		offset += 8
	}
	return out, true
}

// StssTable is the parsed sync-sample (keyframe index) table. Indices are
// 1-based per the ISOBMFF spec.
type StssTable struct {
	SampleNumbers []uint32
	Capped        bool
}

// IsKeyframe reports whether the 1-based sample number is present.
func (t StssTable) IsKeyframe(sampleNumber uint32) bool {
	for _, n := range t.SampleNumbers {
		if n == sampleNumber {
			return true
		}
	}
	return false
}

// ParseStss decodes an stss box payload.
func ParseStss(r *bitreader.Reader, box Box) (StssTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return StssTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return StssTable{}, false
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := StssTable{Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	for i := 0; i < n; i++ {
		v, ok := r.ReadU32BE(offset)
		if !ok {
			break
		}
		out.SampleNumbers = append(out.SampleNumbers, v)
		offset += 4
	}
	return out, true
}

// ChunkOffsetTable is the parsed stco (32-bit) or co64 (64-bit) chunk offset
// table, normalized to 64-bit values.
type ChunkOffsetTable struct {
	Offsets  []uint64
	Is64Bit  bool
	Capped   bool
}

// ParseChunkOffsets decodes an stco or co64 box payload.
func ParseChunkOffsets(r *bitreader.Reader, box Box) (ChunkOffsetTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return ChunkOffsetTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return ChunkOffsetTable{}, false
	}
	is64 := box.Type == TypeCo64
	entrySize := int64(4)
	if is64 {
		entrySize = 8
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := ChunkOffsetTable{Is64Bit: is64, Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	for i := 0; i < n; i++ {
		if is64 {
			v, ok := r.ReadU64BE(offset)
			if !ok {
				break
			}
			out.Offsets = append(out.Offsets, v)
		} else {
			v, ok := r.ReadU32BE(offset)
			if !ok {
				break
			}
			out.Offsets = append(out.Offsets, uint64(v))
		}
		offset += entrySize
	}
	return out, true
}

// StscEntry is one sample-to-chunk descriptor.
type StscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescIndex uint32
}

// StscTable is the parsed sample-to-chunk table.
type StscTable struct {
	Entries []StscEntry
	Capped  bool
}

// ParseStsc decodes an stsc box payload.
func ParseStsc(r *bitreader.Reader, box Box) (StscTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return StscTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return StscTable{}, false
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := StscTable{Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	for i := 0; i < n; i++ {
		fc, ok1 := r.ReadU32BE(offset)
		spc, ok2 := r.ReadU32BE(offset + 4)
		sdi, ok3 := r.ReadU32BE(offset + 8)
		if !ok1 || !ok2 || !ok3 {
			break
		}
		out.Entries = append(out.Entries, StscEntry{FirstChunk: fc, SamplesPerChunk: spc, SampleDescIndex: sdi})
		offset += 12
	}
	return out, true
}

// entryForChunk returns the stsc entry that governs the 1-based chunk index:
// the entry with the largest FirstChunk <= chunk, or false if none. The
// per-sample lookup is built by the frame map in framemap.go.
func (t StscTable) entryForChunk(chunk uint32) (StscEntry, bool) {
	var best StscEntry
	found := false
	for _, e := range t.Entries {
		if e.FirstChunk <= chunk {
			if !found || e.FirstChunk > best.FirstChunk {
				best = e
				found = true
			}
		}
	}
	return best, found
}

// StszTable is the parsed sample-size table: either a uniform size applied
// to every sample, or a per-sample size list.
type StszTable struct {
	UniformSize uint32
	SampleCount uint32
	Sizes       []uint32 // empty when UniformSize != 0
	Capped      bool
}

// IsUniform reports whether every sample shares UniformSize.
func (t StszTable) IsUniform() bool {
	return t.UniformSize != 0
}

// Size returns the size of the 1-based sampleIndex-th sample.
func (t StszTable) Size(sampleIndex int) (uint32, bool) {
	if t.IsUniform() {
		if sampleIndex < 1 || sampleIndex > int(t.SampleCount) {
			return 0, false
		}
		return t.UniformSize, true
	}
	if sampleIndex < 1 || sampleIndex > len(t.Sizes) {
		return 0, false
	}
	return t.Sizes[sampleIndex-1], true
}

// ParseStsz decodes an stsz box payload.
func ParseStsz(r *bitreader.Reader, box Box) (StszTable, bool) {
	if box.PayloadSize < fullBoxPrologueSize+8 {
		return StszTable{}, false
	}
	uniform, ok1 := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	count, ok2 := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize + 4)
	if !ok1 || !ok2 {
		return StszTable{}, false
	}
	out := StszTable{UniformSize: uniform, SampleCount: count}
	if uniform != 0 {
		return out, true
	}
	n := int(count)
	if n > maxTableEntries {
		n = maxTableEntries
		out.Capped = true
	}
	offset := box.PayloadOffset + fullBoxPrologueSize + 8
	for i := 0; i < n; i++ {
		v, ok := r.ReadU32BE(offset)
		if !ok {
			break
		}
		out.Sizes = append(out.Sizes, v)
		offset += 4
	}
	return out, true
}

// MdhdInfo is the fields of an mdhd box this inspector needs.
type MdhdInfo struct {
	Timescale uint32
	Duration  uint64
}

// ParseMdhd decodes an mdhd box payload, handling both version 0 (32-bit
// times) and version 1 (64-bit times).
func ParseMdhd(r *bitreader.Reader, box Box) (MdhdInfo, bool) {
	if box.PayloadSize < 1 {
		return MdhdInfo{}, false
	}
	version, ok := r.ReadU8(box.PayloadOffset)
	if !ok {
		return MdhdInfo{}, false
	}
	if version == 1 {
		// version(1) + flags(3) + creation(8) + modification(8) = 20
		if box.PayloadSize < 20+4+8 {
			return MdhdInfo{}, false
		}
		timescale, ok1 := r.ReadU32BE(box.PayloadOffset + 20)
		duration, ok2 := r.ReadU64BE(box.PayloadOffset + 24)
		if !ok1 || !ok2 {
			return MdhdInfo{}, false
		}
		return MdhdInfo{Timescale: timescale, Duration: duration}, true
	}
	// version(1) + flags(3) + creation(4) + modification(4) = 12
	if box.PayloadSize < 12+4+4 {
		return MdhdInfo{}, false
	}
	timescale, ok1 := r.ReadU32BE(box.PayloadOffset + 12)
	duration, ok2 := r.ReadU32BE(box.PayloadOffset + 16)
	if !ok1 || !ok2 {
		return MdhdInfo{}, false
	}
	return MdhdInfo{Timescale: timescale, Duration: uint64(duration)}, true
}

// ParseHdlr returns the 4-character handler_type field of an hdlr box
// (e.g. "vide", "soun").
func ParseHdlr(r *bitreader.Reader, box Box) (string, bool) {
	// version(1)+flags(3)+pre_defined(4)+handler_type(4)
	const handlerTypeOffset = 8
	if box.PayloadSize < handlerTypeOffset+4 {
		return "", false
	}
	b := r.Slice(box.PayloadOffset+handlerTypeOffset, 4)
	if b == nil {
		return "", false
	}
	return string(b), true
}

// ElstEntry is one signed edit-list entry. MediaTime == -1 marks an empty
// edit.
type ElstEntry struct {
	SegmentDuration int64
	MediaTime       int64
	RateInteger     int16
	RateFraction    int16
}

// ElstTable is the parsed edit list.
type ElstTable struct {
	Entries []ElstEntry
	Capped  bool
}

// ParseElst decodes an elst box payload, handling version 0 (32-bit fields)
// and version 1 (64-bit duration/media_time).
func ParseElst(r *bitreader.Reader, box Box) (ElstTable, bool) {
	if box.PayloadSize < 1 {
		return ElstTable{}, false
	}
	version, ok := r.ReadU8(box.PayloadOffset)
	if !ok {
		return ElstTable{}, false
	}
	if box.PayloadSize < fullBoxPrologueSize+4 {
		return ElstTable{}, false
	}
	count, ok := r.ReadU32BE(box.PayloadOffset + fullBoxPrologueSize)
	if !ok {
		return ElstTable{}, false
	}
	n := int(count)
	capped := false
	if n > maxTableEntries {
		n = maxTableEntries
		capped = true
	}
	out := ElstTable{Capped: capped}
	offset := box.PayloadOffset + fullBoxPrologueSize + 4
	entrySize := int64(12)
	if version == 1 {
		entrySize = 20
	}
	for i := 0; i < n; i++ {
		var dur, mt int64
		var ok1, ok2 bool
		if version == 1 {
			d, o1 := r.ReadI64BE(offset)
			m, o2 := r.ReadI64BE(offset + 8)
			dur, mt, ok1, ok2 = d, m, o1, o2
		} else {
			d, o1 := r.ReadI32BE(offset)
			m, o2 := r.ReadI32BE(offset + 4)
			dur, mt, ok1, ok2 = int64(d), int64(m), o1, o2
		}
		if !ok1 || !ok2 {
			break
		}
		rateOffset := offset + entrySize - 4
		ri, ok3 := r.ReadI16BE(rateOffset)
		rf, ok4 := r.ReadI16BE(rateOffset + 2)
		if !ok3 || !ok4 {
			break
		}
		out.Entries = append(out.Entries, ElstEntry{
			SegmentDuration: dur,
			MediaTime:       mt,
			RateInteger:     ri,
			RateFraction:    rf,
		})
		offset += entrySize
	}
	return out, true
}
