package isobmff

import (
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
)

const fourGiB = int64(4) * 1024 * 1024 * 1024

// Inspect walks and cross-validates an ISOBMFF byte range, returning a full
// container report. It never panics or returns an error: every defect it
// finds becomes a diagnostic, and every missing prerequisite silently skips
// the checks that depend on it.
func Inspect(r *bitreader.Reader, depth diag.Depth) diag.ContainerReport {
	fileSize := r.Size()
	boxes := WalkBoxes(r, 0, fileSize, 0)

	var list diag.List
	checkTopLevelOrder(boxes, &list)
	checkRequiredBoxes(boxes, &list)
	checkTruncation(boxes, fileSize, &list)
	checkStructuralIntegrity(boxes, fileSize, &list)
	checkStreamingLayout(boxes, &list)

	moov := FindChild(boxes, TypeMoov)
	mdat := FindChild(boxes, TypeMdat)

	var tracks []diag.TrackSummary
	if moov != nil {
		for _, trak := range FindChildren(moov.Children, TypeTrak) {
			summary := validateTrack(r, trak, mdat, fileSize, depth, &list)
			if summary != nil {
				tracks = append(tracks, *summary)
			}
		}
	}

	return diag.ContainerReport{
		ContainerType: diag.ContainerISOBMFF,
		Diagnostics:   list.Items(),
		Metadata: diag.ContainerMetadata{
			BoxTree: summarizeBoxes(boxes),
			Tracks:  tracks,
		},
	}
}

func summarizeBoxes(boxes []Box) []diag.BoxSummary {
	out := make([]diag.BoxSummary, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, diag.BoxSummary{
			Type:     string(b.Type),
			Offset:   b.Offset,
			Size:     b.Size,
			Children: summarizeBoxes(b.Children),
		})
	}
	return out
}

func checkTopLevelOrder(boxes []Box, list *diag.List) {
	if len(boxes) == 0 || boxes[0].Type != TypeFtyp {
		list.Add(diag.New(diag.CategoryBoxStructure, diag.SeverityInfo,
			"Missing Leading ftyp",
			"the file does not begin with an ftyp box",
			diag.RemediationNone))
	}
}

func checkRequiredBoxes(boxes []Box, list *diag.List) {
	moov := FindChild(boxes, TypeMoov)
	mdat := FindChild(boxes, TypeMdat)
	if moov == nil {
		list.Add(diag.New(diag.CategoryMissingAtom, diag.SeverityError,
			"Missing moov",
			"no moov box was found at the top level",
			diag.RemediationReencode))
		return
	}
	if mdat == nil {
		list.Add(diag.New(diag.CategoryMissingAtom, diag.SeverityWarning,
			"Missing mdat",
			"moov is present but no mdat box was found; the file may be fragmented",
			diag.RemediationNone))
	}
}

func checkTruncation(boxes []Box, fileSize int64, list *diag.List) {
	var sum int64
	for _, b := range boxes {
		sum += b.Size
	}
	if sum > fileSize {
		list.Add(diag.New(diag.CategoryTruncatedAtom, diag.SeverityError,
			"Truncated File",
			fmt.Sprintf("top-level boxes declare %d bytes but the file is %d bytes", sum, fileSize),
			diag.RemediationReencode))
	}
}

// checkStructuralIntegrity recursively flags malformed/truncated boxes and
// overlapping siblings at every level of the tree.
func checkStructuralIntegrity(boxes []Box, fileSize int64, list *diag.List) {
	for i, b := range boxes {
		if b.Malformed {
			list.Add(diag.New(diag.CategoryBoxStructure, diag.SeverityError,
				"Invalid Box Size",
				fmt.Sprintf("box %q at offset %d declares size %d, below the minimum legal header size", b.Type, b.Offset, b.Size),
				diag.RemediationReencode).AtOffset(b.Offset))
		}
		if b.Truncated {
			list.Add(diag.New(diag.CategoryTruncatedAtom, diag.SeverityError,
				"Truncated Box",
				fmt.Sprintf("box %q at offset %d declares an end beyond its enclosing range", b.Type, b.Offset),
				diag.RemediationReencode).AtOffset(b.Offset))
		}
		if b.End() > fileSize {
			list.Add(diag.New(diag.CategoryBoxStructure, diag.SeverityError,
				"Box Exceeds File",
				fmt.Sprintf("box %q at offset %d declares an end past the file size", b.Type, b.Offset),
				diag.RemediationReencode).AtOffset(b.Offset))
		}
		if i+1 < len(boxes) && b.End() > boxes[i+1].Offset {
			list.Add(diag.New(diag.CategoryBoxStructure, diag.SeverityError,
				"Overlapping Boxes",
				fmt.Sprintf("box %q at offset %d overlaps the next sibling at offset %d", b.Type, b.Offset, boxes[i+1].Offset),
				diag.RemediationReencode).AtOffset(b.Offset))
		}
		if len(b.Children) > 0 {
			checkStructuralIntegrity(b.Children, fileSize, list)
		}
	}
}

func checkStreamingLayout(boxes []Box, list *diag.List) {
	moov := FindChild(boxes, TypeMoov)
	mdat := FindChild(boxes, TypeMdat)
	if moov == nil || mdat == nil {
		return
	}
	if moov.Offset > mdat.Offset {
		list.Add(diag.New(diag.CategoryBoxStructure, diag.SeverityInfo,
			"moov After mdat",
			"moov follows mdat; the file is not optimized for progressive streaming",
			diag.RemediationRemux))
	}
}

// validateTrack runs the full per-track cross-validation sequence for one
// trak box and returns its metadata summary, or nil if the track lacks the
// structure needed to summarize.
func validateTrack(r *bitreader.Reader, trak Box, mdat *Box, fileSize int64, depth diag.Depth, list *diag.List) *diag.TrackSummary {
	mdia := FindChild(trak.Children, TypeMdia)
	if mdia == nil {
		return nil
	}
	handlerType := ""
	if hdlr := FindChild(mdia.Children, TypeHdlr); hdlr != nil {
		if ht, ok := ParseHdlr(r, *hdlr); ok {
			handlerType = ht
		}
	}

	var timescale uint32
	if mdhdBox := FindChild(mdia.Children, TypeMdhd); mdhdBox != nil {
		if info, ok := ParseMdhd(r, *mdhdBox); ok {
			timescale = info.Timescale
		}
	}

	minf := FindChild(mdia.Children, TypeMinf)
	if minf == nil {
		return &diag.TrackSummary{HandlerType: handlerType}
	}
	stbl := FindChild(minf.Children, TypeStbl)
	if stbl == nil {
		return &diag.TrackSummary{HandlerType: handlerType}
	}

	sttsTable, hasStts := parseStblStts(r, *stbl)
	stszTable, hasStsz := parseStblStsz(r, *stbl)
	cttsTable, hasCtts := parseStblCtts(r, *stbl)
	stssTable, hasStss := parseStblStss(r, *stbl)
	chunkTable, hasChunks := parseStblChunks(r, *stbl)
	stscTable, hasStsc := parseStblStsc(r, *stbl)

	isVideo := handlerType == "vide"

	if isVideo {
		checkChunkOffsetWidth(chunkTable, hasChunks, fileSize, list)
		if mdat != nil {
			checkChunkOffsetsWithinMdat(chunkTable, hasChunks, *mdat, list)
		}
		if hasStss && hasStsz {
			checkSyncSampleIndices(stssTable, sampleCount(stszTable, hasStsz), list)
		}
		if mdat != nil && hasStsz {
			checkDeclaredSampleBytes(stszTable, *mdat, list)
		}
		if hasStss {
			checkFirstSampleSync(stssTable, list)
		}
		if hasStsz {
			checkZeroSizeSamples(stszTable, list)
		}
		if hasChunks {
			checkMonotonicChunks(chunkTable, list)
		}
		if hasStts {
			checkTimingTable(sttsTable, timescale, list)
		}
		if hasStts && hasStsz {
			checkSampleCountCrossCheck(sttsTable, stszTable, list)
		}
		if hasStts && hasCtts {
			checkCompositionTimeTable(sttsTable, cttsTable, timescale, list)
		}
	}

	var editSummaries []diag.EditListEntrySummary
	if edts := FindChild(trak.Children, TypeEdts); edts != nil {
		if elst := FindChild(edts.Children, TypeElst); elst != nil {
			if elstTable, ok := ParseElst(r, *elst); ok {
				for _, e := range elstTable.Entries {
					editSummaries = append(editSummaries, diag.EditListEntrySummary{
						SegmentDuration: e.SegmentDuration,
						MediaTime:       e.MediaTime,
						RateInteger:     e.RateInteger,
						RateFraction:    e.RateFraction,
					})
				}
				if isVideo && hasStts && hasStss {
					checkEditList(elstTable, sttsTable, stssTable, list)
				}
			}
		}
	}

	if isVideo && depth != diag.DepthQuick && hasChunks && hasStsc && hasStsz {
		stsd := findStsd(minf)
		if stsd != nil {
			if cfg, ok := ParseCodecConfig(r, *stsd); ok {
				checkCodecConfig(cfg, list)
				if !cfg.Truncated {
					frames := BuildFrameMap(chunkTable, stscTable, stszTable)
					selected := SelectFrames(frames, stssTable, depth)
					list.Merge(WalkNALs(r, selected, cfg.NalLengthSize, cfg.CodecType, stssTable))
				}
			}
		}
	}

	return &diag.TrackSummary{
		HandlerType:   handlerType,
		KeyframeCount: len(stssTable.SampleNumbers),
		SampleCount:   int(sampleCount(stszTable, hasStsz)),
		EditList:      editSummaries,
	}
}

func findStsd(minf *Box) *Box {
	stbl := FindChild(minf.Children, TypeStbl)
	if stbl == nil {
		return nil
	}
	return FindChild(stbl.Children, TypeStsd)
}

func parseStblStts(r *bitreader.Reader, stbl Box) (SttsTable, bool) {
	b := FindChild(stbl.Children, TypeStts)
	if b == nil {
		return SttsTable{}, false
	}
	t, ok := ParseStts(r, *b)
	return t, ok
}

func parseStblCtts(r *bitreader.Reader, stbl Box) (CttsTable, bool) {
	b := FindChild(stbl.Children, TypeCtts)
	if b == nil {
		return CttsTable{}, false
	}
	t, ok := ParseCtts(r, *b)
	return t, ok
}

func parseStblStss(r *bitreader.Reader, stbl Box) (StssTable, bool) {
	b := FindChild(stbl.Children, TypeStss)
	if b == nil {
		return StssTable{}, false
	}
	t, ok := ParseStss(r, *b)
	return t, ok
}

func parseStblChunks(r *bitreader.Reader, stbl Box) (ChunkOffsetTable, bool) {
	if b := FindChild(stbl.Children, TypeCo64); b != nil {
		t, ok := ParseChunkOffsets(r, *b)
		return t, ok
	}
	if b := FindChild(stbl.Children, TypeStco); b != nil {
		t, ok := ParseChunkOffsets(r, *b)
		return t, ok
	}
	return ChunkOffsetTable{}, false
}

func parseStblStsc(r *bitreader.Reader, stbl Box) (StscTable, bool) {
	b := FindChild(stbl.Children, TypeStsc)
	if b == nil {
		return StscTable{}, false
	}
	t, ok := ParseStsc(r, *b)
	return t, ok
}

func parseStblStsz(r *bitreader.Reader, stbl Box) (StszTable, bool) {
	b := FindChild(stbl.Children, TypeStsz)
	if b == nil {
		return StszTable{}, false
	}
	t, ok := ParseStsz(r, *b)
	return t, ok
}

func sampleCount(t StszTable, ok bool) uint32 {
	if !ok {
		return 0
	}
	return t.SampleCount
}

func checkChunkOffsetWidth(chunks ChunkOffsetTable, ok bool, fileSize int64, list *diag.List) {
	if !ok || chunks.Is64Bit {
		return
	}
	if fileSize > fourGiB {
		list.Add(diag.New(diag.CategorySampleTable, diag.SeverityError,
			"32-bit Chunk Offsets on >4GB File",
			"the track uses stco (32-bit) chunk offsets in a file larger than 4 GiB",
			diag.RemediationRemux))
	}
}

func checkChunkOffsetsWithinMdat(chunks ChunkOffsetTable, ok bool, mdat Box, list *diag.List) {
	if !ok {
		return
	}
	payloadStart := mdat.PayloadOffset
	payloadEnd := mdat.End()
	nearEnd := payloadEnd - (mdat.PayloadSize / 100)
	for _, off := range chunks.Offsets {
		o := int64(off)
		if o < payloadStart || o >= payloadEnd {
			list.Add(diag.New(diag.CategorySampleTable, diag.SeverityError,
				"Chunk Offset Outside mdat",
				fmt.Sprintf("chunk offset %d lies outside the mdat payload [%d, %d)", o, payloadStart, payloadEnd),
				diag.RemediationReencode).AtOffset(o))
			continue
		}
		if o >= nearEnd {
			list.Add(diag.New(diag.CategorySampleTable, diag.SeverityWarning,
				"Chunk Offset Near mdat End",
				fmt.Sprintf("chunk offset %d lies within the last 1%% of mdat", o),
				diag.RemediationNone).AtOffset(o))
		}
	}
}

func checkSyncSampleIndices(stss StssTable, totalSamples uint32, list *diag.List) {
	for _, n := range stss.SampleNumbers {
		if n < 1 || n > totalSamples {
			list.Add(diag.New(diag.CategorySyncSampleTable, diag.SeverityError,
				"Sync Sample Index Out Of Range",
				fmt.Sprintf("sync sample index %d is outside [1, %d]", n, totalSamples),
				diag.RemediationReencode))
		}
	}
}

func checkDeclaredSampleBytes(stsz StszTable, mdat Box, list *diag.List) {
	var total uint64
	if stsz.IsUniform() {
		total = uint64(stsz.UniformSize) * uint64(stsz.SampleCount)
	} else {
		for _, s := range stsz.Sizes {
			total += uint64(s)
		}
	}
	if total > uint64(mdat.PayloadSize) {
		list.Add(diag.New(diag.CategorySampleTable, diag.SeverityError,
			"Declared Sample Bytes Exceed mdat",
			fmt.Sprintf("declared sample bytes (%d) exceed the mdat payload size (%d)", total, mdat.PayloadSize),
			diag.RemediationReencode))
	}
}

func checkFirstSampleSync(stss StssTable, list *diag.List) {
	if !stss.IsKeyframe(1) {
		list.Add(diag.New(diag.CategorySyncSampleTable, diag.SeverityWarning,
			"First Sample Not Sync",
			"sample 1 is not present in the sync sample table",
			diag.RemediationNone))
	}
}

func checkZeroSizeSamples(stsz StszTable, list *diag.List) {
	if stsz.IsUniform() {
		return
	}
	for i, s := range stsz.Sizes {
		if s == 0 {
			list.Add(diag.New(diag.CategorySampleTable, diag.SeverityWarning,
				"Zero-Size Sample",
				fmt.Sprintf("sample %d has a declared size of 0", i+1),
				diag.RemediationNone))
		}
	}
}

func checkMonotonicChunks(chunks ChunkOffsetTable, list *diag.List) {
	for i := 1; i < len(chunks.Offsets); i++ {
		if chunks.Offsets[i] <= chunks.Offsets[i-1] {
			list.Add(diag.New(diag.CategorySampleTable, diag.SeverityWarning,
				"Non-Monotonic Chunk Offsets",
				fmt.Sprintf("chunk %d offset %d does not exceed chunk %d offset %d", i+1, chunks.Offsets[i], i, chunks.Offsets[i-1]),
				diag.RemediationNone))
		}
	}
}

func checkTimingTable(stts SttsTable, timescale uint32, list *diag.List) {
	for _, e := range stts.Entries {
		if e.SampleDelta == 0 && e.SampleCount > 0 {
			list.Add(diag.New(diag.CategoryCompositionTime, diag.SeverityWarning,
				"Zero-Duration Samples",
				fmt.Sprintf("%d sample(s) declare a zero delta", e.SampleCount),
				diag.RemediationNone))
		}
		if timescale > 0 && uint64(e.SampleDelta) > 10*uint64(timescale) {
			list.Add(diag.New(diag.CategoryCompositionTime, diag.SeverityWarning,
				"Abnormal Sample Duration",
				fmt.Sprintf("a run of %d sample(s) declares a delta of %d, over 10x the timescale", e.SampleCount, e.SampleDelta),
				diag.RemediationNone))
		}
	}
}

func checkSampleCountCrossCheck(stts SttsTable, stsz StszTable, list *diag.List) {
	sttsTotal := stts.TotalSamples()
	stszTotal := uint64(stsz.SampleCount)
	if sttsTotal != stszTotal {
		list.Add(diag.New(diag.CategorySampleTable, diag.SeverityError,
			"Sample Count Mismatch (stts vs stsz)",
			fmt.Sprintf("stts declares %d total samples but stsz declares %d", sttsTotal, stszTotal),
			diag.RemediationReencode))
	}
}

func checkCompositionTimeTable(stts SttsTable, ctts CttsTable, timescale uint32, list *diag.List) {
	sttsTotal := stts.TotalSamples()
	cttsTotal := ctts.TotalSamples()
	if sttsTotal != cttsTotal {
		list.Add(diag.New(diag.CategoryCompositionTime, diag.SeverityWarning,
			"Composition Time Count Mismatch",
			fmt.Sprintf("stts declares %d total samples but ctts declares %d", sttsTotal, cttsTotal),
			diag.RemediationNone))
	}
	if timescale == 0 {
		return
	}
	for _, e := range ctts.Entries {
		magnitude := e.SampleOffset
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if uint64(magnitude) > 5*uint64(timescale) {
			list.Add(diag.New(diag.CategoryCompositionTime, diag.SeverityWarning,
				"Abnormal Composition Offset",
				fmt.Sprintf("a run of %d sample(s) declares a composition offset of %d, over 5x the timescale", e.SampleCount, e.SampleOffset),
				diag.RemediationNone))
		}
	}
}

// checkEditList computes keyframe DTS timestamps by walking stts and
// collecting positions at 1-based stss indices, then validates each
// non-empty edit-list entry's media_time against them.
func checkEditList(elst ElstTable, stts SttsTable, stss StssTable, list *diag.List) {
	keyframeDTS := keyframeTimestamps(stts, stss)
	trackDuration := trackDuration(stts)

	for _, e := range elst.Entries {
		if e.MediaTime < 0 {
			continue // empty edit
		}
		if e.MediaTime > trackDuration {
			list.Add(diag.New(diag.CategoryEditList, diag.SeverityError,
				"Edit List Exceeds Track Duration",
				fmt.Sprintf("edit list media_time %d exceeds computed track duration %d", e.MediaTime, trackDuration),
				diag.RemediationRemux))
			continue
		}
		best := int64(-1)
		exact := false
		for _, dts := range keyframeDTS {
			if dts <= e.MediaTime && dts > best {
				best = dts
			}
			if dts == e.MediaTime {
				exact = true
			}
		}
		if best < 0 {
			list.Add(diag.New(diag.CategoryEditList, diag.SeverityError,
				"Edit List References Missing Keyframe",
				fmt.Sprintf("edit list media_time %d has no keyframe at or before it", e.MediaTime),
				diag.RemediationRemux))
			continue
		}
		if !exact {
			list.Add(diag.New(diag.CategoryEditList, diag.SeverityWarning,
				"Edit List Not Keyframe-Aligned",
				fmt.Sprintf("edit list media_time %d does not exactly match a keyframe DTS (nearest is %d)", e.MediaTime, best),
				diag.RemediationNone))
		}
	}
}

func keyframeTimestamps(stts SttsTable, stss StssTable) []int64 {
	var out []int64
	var dts int64
	sampleIndex := uint32(1)
	for _, e := range stts.Entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			if stss.IsKeyframe(sampleIndex) {
				out = append(out, dts)
			}
			dts += int64(e.SampleDelta)
			sampleIndex++
		}
	}
	return out
}

func trackDuration(stts SttsTable) int64 {
	var total int64
	for _, e := range stts.Entries {
		total += int64(e.SampleCount) * int64(e.SampleDelta)
	}
	return total
}

func checkCodecConfig(cfg CodecConfig, list *diag.List) {
	if cfg.Truncated {
		title, boxName := "Truncated avcC", "avcC"
		if cfg.CodecType == CodecH265 {
			title, boxName = "Truncated hvcC", "hvcC"
		}
		list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityError,
			title,
			fmt.Sprintf("the %s decoder configuration record ends before its declared parameter sets", boxName),
			diag.RemediationReencode))
		return
	}
	switch cfg.CodecType {
	case CodecH264:
		if !cfg.HasSPS {
			list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityError,
				"Missing SPS",
				"avcC declares no sequence parameter sets",
				diag.RemediationReencode))
		}
		if !cfg.HasPPS {
			list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityError,
				"Missing PPS",
				"avcC declares no picture parameter sets",
				diag.RemediationReencode))
		}
	case CodecH265:
		if !cfg.HasVPS || !cfg.HasSPS || !cfg.HasPPS {
			list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityError,
				"Missing HEVC Parameter Set",
				"hvcC must declare VPS, SPS, and PPS arrays",
				diag.RemediationReencode))
		}
	}
}
