package isobmff

import (
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
)

const (
	h264NalIDR = 5
)

func isHEVCIDR(nalUnitType uint8) bool {
	return nalUnitType >= 16 && nalUnitType <= 21
}

// nalFrameResult accumulates what WalkNALs found in one frame.
type nalFrameResult struct {
	hasIDR        bool
	overflowAt    *int64
	residualBytes int64
}

// WalkNALs validates NAL length-prefix structure for the given selected
// frames and returns the diagnostics it produces. Overflow is reported once
// across all frames, counting the affected frames and localized at the first
// overflow, to avoid spam; per-frame warnings (size mismatch, missing IDR on
// a keyframe) are still emitted per frame.
func WalkNALs(r *bitreader.Reader, frames []Frame, nalLengthSize int, codec CodecType, keyframes StssTable) []diag.Diagnostic {
	var out []diag.Diagnostic
	overflowCount := 0
	var firstOverflowOffset *int64

	for i, f := range frames {
		res := walkFrame(r, f, nalLengthSize, codec)

		if res.overflowAt != nil {
			overflowCount++
			if firstOverflowOffset == nil {
				firstOverflowOffset = res.overflowAt
			}
		}

		if res.residualBytes >= 4 {
			d := diag.New(diag.CategoryNALStructure, diag.SeverityWarning,
				"Frame Size Mismatch",
				fmt.Sprintf("sample %d has %d residual bytes after its last NAL unit", f.Index, res.residualBytes),
				diag.RemediationNone).AtOffset(f.Offset)
			out = append(out, d)
		}

		isKeyframe := keyframes.IsKeyframe(uint32(f.Index))
		if isKeyframe && !res.hasIDR {
			d := diag.New(diag.CategoryNALStructure, diag.SeverityWarning,
				"Missing IDR In Keyframe",
				fmt.Sprintf("sample %d is marked a sync sample but contains no IDR NAL unit", f.Index),
				diag.RemediationReencode).AtOffset(f.Offset)
			out = append(out, d)
		}

		if i == 0 && !res.hasIDR {
			d := diag.New(diag.CategoryNALStructure, diag.SeverityWarning,
				"First Frame Not IDR",
				"the first sampled frame does not contain an IDR NAL unit",
				diag.RemediationReencode).AtOffset(f.Offset)
			out = append(out, d)
		}
	}

	if overflowCount > 0 {
		d := diag.New(diag.CategoryNALStructure, diag.SeverityError,
			"NAL Length Overflow",
			fmt.Sprintf("%d sampled frame(s) contained a NAL unit whose declared length ran past its frame boundary", overflowCount),
			diag.RemediationReencode).AtOffset(*firstOverflowOffset)
		out = append(out, d)
	}

	return out
}

func walkFrame(r *bitreader.Reader, f Frame, nalLengthSize int, codec CodecType) nalFrameResult {
	var res nalFrameResult
	frameEnd := f.Offset + int64(f.Size)
	offset := f.Offset

	for offset < frameEnd {
		lengthFieldEnd := offset + int64(nalLengthSize)
		if lengthFieldEnd > frameEnd {
			res.residualBytes = frameEnd - offset
			return res
		}

		var nalLength int64
		switch nalLengthSize {
		case 1:
			v, ok := r.ReadU8(offset)
			if !ok {
				return res
			}
			nalLength = int64(v)
		case 2:
			v, ok := r.ReadU16BE(offset)
			if !ok {
				return res
			}
			nalLength = int64(v)
		default:
			v, ok := r.ReadU32BE(offset)
			if !ok {
				return res
			}
			nalLength = int64(v)
		}

		nalStart := lengthFieldEnd
		nalEnd := nalStart + nalLength

		if nalLength == 0 || nalEnd > frameEnd {
			off := nalStart
			res.overflowAt = &off
			return res
		}

		header, ok := r.ReadU8(nalStart)
		if !ok {
			return res
		}

		switch codec {
		case CodecH264:
			if header&0x1F == h264NalIDR {
				res.hasIDR = true
			}
		case CodecH265:
			nalUnitType := (header >> 1) & 0x3F
			if isHEVCIDR(nalUnitType) {
				res.hasIDR = true
			}
		}

		offset = nalEnd
	}

	res.residualBytes = offset - frameEnd
	if res.residualBytes < 0 {
		res.residualBytes = 0
	}
	return res
}
