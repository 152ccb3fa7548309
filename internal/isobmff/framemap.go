package isobmff

import "github.com/rendiffdev/containerintegrity/internal/diag"

// Frame is one sample's resolved location within the file.
type Frame struct {
	// Index is the 1-based sample number, matching stss/stsz conventions.
	Index  int
	Offset int64
	Size   uint32
}

// BuildFrameMap zips chunk offsets, the sample-to-chunk table, and the
// sample-size table into a per-sample (offset, size) list. For each chunk it
// resolves the applicable stsc entry by walking firstChunk descriptors in
// reverse (last entry whose firstChunk <= current chunk), then lays out that
// chunk's samples consecutively from the chunk's base offset.
func BuildFrameMap(chunks ChunkOffsetTable, stsc StscTable, stsz StszTable) []Frame {
	if len(chunks.Offsets) == 0 || len(stsc.Entries) == 0 {
		return nil
	}

	var frames []Frame
	sampleIndex := 1

	for chunkIdx, chunkOffset := range chunks.Offsets {
		chunkNumber := uint32(chunkIdx + 1)
		entry, ok := stsc.entryForChunk(chunkNumber)
		if !ok {
			break
		}
		offset := int64(chunkOffset)
		for s := uint32(0); s < entry.SamplesPerChunk; s++ {
			size, ok := stsz.Size(sampleIndex)
			if !ok {
				return frames
			}
			if len(frames) >= maxTableEntries {
				return frames
			}
			frames = append(frames, Frame{Index: sampleIndex, Offset: offset, Size: size})
			offset += int64(size)
			sampleIndex++
		}
	}
	return frames
}

// SelectFrames applies the depth-dependent frame-selection policy: Quick
// selects nothing, Standard selects the first 5 frames, the first 50
// keyframes, and ~50 evenly-spaced frames (overall capped at 200), Thorough
// selects every keyframe plus every 10th frame.
func SelectFrames(frames []Frame, keyframes StssTable, depth diag.Depth) []Frame {
	switch depth {
	case diag.DepthQuick:
		return nil
	case diag.DepthThorough:
		return selectThorough(frames, keyframes)
	default:
		return selectStandard(frames, keyframes)
	}
}

const standardCap = 200

func selectStandard(frames []Frame, keyframes StssTable) []Frame {
	if len(frames) == 0 {
		return nil
	}
	picked := make(map[int]bool)
	var out []Frame
	add := func(f Frame) {
		if !picked[f.Index] {
			picked[f.Index] = true
			out = append(out, f)
		}
	}

	for i := 0; i < len(frames) && i < 5; i++ {
		add(frames[i])
	}

	keyCount := 0
	for _, f := range frames {
		if keyframes.IsKeyframe(uint32(f.Index)) {
			add(f)
			keyCount++
			if keyCount >= 50 {
				break
			}
		}
	}

	const evenlySpacedTarget = 50
	step := len(frames) / evenlySpacedTarget
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(frames); i += step {
		add(frames[i])
	}

	if len(out) > standardCap {
		out = out[:standardCap]
	}
	return out
}

func selectThorough(frames []Frame, keyframes StssTable) []Frame {
	picked := make(map[int]bool)
	var out []Frame
	add := func(f Frame) {
		if !picked[f.Index] {
			picked[f.Index] = true
			out = append(out, f)
		}
	}
	for i, f := range frames {
		if keyframes.IsKeyframe(uint32(f.Index)) || i%10 == 0 {
			add(f)
		}
	}
	return out
}
