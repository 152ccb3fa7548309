package isobmff_test

import (
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/isobmff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWellFormedMP4 constructs a minimal single-video-track MP4 with one
// keyframe sample whose avcC declares an SPS and a PPS, mirroring testable
// property scenario 1.
func buildWellFormedMP4() []byte {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	sampleEntry := videoSampleEntry(avcCBox(sps, pps))
	stsd := stsdBox(sampleEntry)

	sample := nalSample(0x65, []byte{0x11, 0x22}) // IDR

	ftyp := ftypBox()

	buildMoov := func(chunkOffset uint32) []byte {
		spec := trackSpec{
			handlerType: "vide",
			timescale:   90000,
			stts:        [][2]uint32{{1, 3000}},
			stss:        []uint32{1},
			stsc:        [][3]uint32{{1, 1, 1}},
			stsz:        stszPerSample([]uint32{uint32(len(sample))}),
			stco:        []uint32{chunkOffset},
			stsd:        stsd,
		}
		return moovBox(trakBox(spec))
	}

	moovSizingPass := buildMoov(0)
	dataStart := uint32(len(ftyp) + len(moovSizingPass) + 8)
	moov := buildMoov(dataStart)

	mdat := box("mdat", sample)
	return concat(ftyp, moov, mdat)
}

func TestWellFormedMP4HasNoErrors(t *testing.T) {
	fileBytes := buildWellFormedMP4()
	r := bitreader.FromBytes(fileBytes)
	report := isobmff.Inspect(r, diag.DepthStandard)

	for _, d := range report.Diagnostics {
		assert.NotEqual(t, diag.SeverityError, d.Severity, "unexpected error: %s: %s", d.Title, d.Detail)
	}
}

func TestTruncatedFileYieldsStructuralDiagnostic(t *testing.T) {
	fileBytes := buildWellFormedMP4()
	truncated := fileBytes[:len(fileBytes)-1]
	r := bitreader.FromBytes(truncated)
	report := isobmff.Inspect(r, diag.DepthStandard)

	found := false
	for _, d := range report.Diagnostics {
		if d.Category == diag.CategoryTruncatedAtom || d.Category == diag.CategoryBoxStructure {
			found = true
		}
	}
	assert.True(t, found, "expected a structural diagnostic for the truncated file")
}

func TestInvalidBoxSizeYieldsError(t *testing.T) {
	fileBytes := buildWellFormedMP4()
	ftypLen := len(ftypBox())
	// Rewrite moov's size field (right after ftyp) to an invalid value (< 8, > 0).
	fileBytes[ftypLen] = 0
	fileBytes[ftypLen+1] = 0
	fileBytes[ftypLen+2] = 0
	fileBytes[ftypLen+3] = 4

	r := bitreader.FromBytes(fileBytes)
	report := isobmff.Inspect(r, diag.DepthStandard)

	found := false
	for _, d := range report.Diagnostics {
		if d.Category == diag.CategoryBoxStructure && d.Title == "Invalid Box Size" {
			found = true
			require.NotNil(t, d.Offset)
			assert.Equal(t, int64(ftypLen), *d.Offset)
		}
	}
	assert.True(t, found, "expected an Invalid Box Size diagnostic")
}

func TestSampleCountMismatchBetweenSttsAndStsz(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	stsd := stsdBox(videoSampleEntry(avcCBox(sps, pps)))

	spec := trackSpec{
		handlerType: "vide",
		timescale:   90000,
		stts:        [][2]uint32{{1000, 1}},
		stsc:        [][3]uint32{{1, 1, 1}},
		stsz:        stszPerSample(make([]uint32, 999)),
		stco:        []uint32{0},
		stsd:        stsd,
	}
	fileBytes := concat(ftypBox(), moovBox(trakBox(spec)), box("mdat", nil))
	r := bitreader.FromBytes(fileBytes)
	report := isobmff.Inspect(r, diag.DepthStandard)

	found := false
	for _, d := range report.Diagnostics {
		if d.Title == "Sample Count Mismatch (stts vs stsz)" {
			found = true
			assert.Equal(t, diag.SeverityError, d.Severity)
			assert.Equal(t, diag.RemediationReencode, d.Remediation)
		}
	}
	assert.True(t, found)
}

func TestEditListReferencesMissingKeyframe(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	stsd := stsdBox(videoSampleEntry(avcCBox(sps, pps)))

	// Two samples, deltas of 1000 each (timescale-independent), keyframe only at sample 2.
	spec := trackSpec{
		handlerType: "vide",
		timescale:   1000,
		stts:        [][2]uint32{{2, 1000}},
		stss:        []uint32{2},
		stsc:        [][3]uint32{{1, 2, 1}},
		stsz:        stszPerSample([]uint32{4, 4}),
		stco:        []uint32{0},
		stsd:        stsd,
		elst:        elstBoxV0([][4]int32{{2000, 500, 1, 0}}),
	}
	fileBytes := concat(ftypBox(), moovBox(trakBox(spec)), box("mdat", make([]byte, 8)))
	r := bitreader.FromBytes(fileBytes)
	report := isobmff.Inspect(r, diag.DepthStandard)

	found := false
	for _, d := range report.Diagnostics {
		if d.Title == "Edit List References Missing Keyframe" {
			found = true
			assert.Equal(t, diag.SeverityError, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestQuickDepthProducesNoNALDiagnostics(t *testing.T) {
	fileBytes := buildWellFormedMP4()
	r := bitreader.FromBytes(fileBytes)
	report := isobmff.Inspect(r, diag.DepthQuick)

	for _, d := range report.Diagnostics {
		assert.NotEqual(t, diag.CategoryNALStructure, d.Category)
	}
}
