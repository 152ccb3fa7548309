package mxf_test

import (
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/mxf"
	"github.com/stretchr/testify/assert"
)

func TestWellFormedOP1aHasNoErrors(t *testing.T) {
	header := partitionPackKLV(0x02, 0x04, partitionFields{
		kagSize:         1,
		footerPartition: 0, // filled below
	})

	footerOffset := uint64(len(header))
	// Rebuild header now that we know the footer's offset.
	header = partitionPackKLV(0x02, 0x04, partitionFields{
		kagSize:         1,
		footerPartition: footerOffset,
	})
	footerOffset = uint64(len(header))

	footer := partitionPackKLV(0x04, 0x04, partitionFields{
		kagSize:           1,
		previousPartition: 0,
		footerPartition:   footerOffset,
	})

	fileBytes := concatBytes(header, footer)
	r := bitreader.FromBytes(fileBytes)
	report := mxf.Inspect(r)

	for _, d := range report.Diagnostics {
		assert.NotEqual(t, diag.SeverityError, d.Severity, "unexpected error: %s: %s", d.Title, d.Detail)
	}
}

func TestMissingFooterOnClosedCompleteHeaderIsError(t *testing.T) {
	header := partitionPackKLV(0x02, 0x04, partitionFields{kagSize: 1})
	fileBytes := header
	r := bitreader.FromBytes(fileBytes)
	report := mxf.Inspect(r)

	found := false
	for _, d := range report.Diagnostics {
		if d.Title == "Missing Footer Partition" {
			found = true
			assert.Equal(t, diag.SeverityError, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestRIPEntryBeyondEOFIsError(t *testing.T) {
	header := partitionPackKLV(0x02, 0x04, partitionFields{kagSize: 1})
	rip := ripKLV([][2]uint64{{1, 20 * 1024 * 1024}})
	fileBytes := concatBytes(header, rip)
	r := bitreader.FromBytes(fileBytes)
	report := mxf.Inspect(r)

	found := false
	for _, d := range report.Diagnostics {
		if d.Title == "RIP Entry Beyond EOF" {
			found = true
			assert.Equal(t, diag.SeverityError, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestUnknownOperationalPatternIsWarning(t *testing.T) {
	unknownUL := []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0xFE, 0xFE, 0x00}
	header := partitionPackKLV(0x02, 0x04, partitionFields{kagSize: 1, operationalPattern: unknownUL})
	footerOffset := uint64(len(header))
	header = partitionPackKLV(0x02, 0x04, partitionFields{kagSize: 1, operationalPattern: unknownUL, footerPartition: footerOffset})
	footer := partitionPackKLV(0x04, 0x04, partitionFields{kagSize: 1, footerPartition: uint64(len(header))})

	fileBytes := concatBytes(header, footer)
	r := bitreader.FromBytes(fileBytes)
	report := mxf.Inspect(r)

	found := false
	for _, d := range report.Diagnostics {
		if d.Title == "Unknown Operational Pattern" {
			found = true
			assert.Equal(t, diag.SeverityWarning, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestOperationalPatternNameOPAtom(t *testing.T) {
	var ul mxf.Key
	copy(ul[:], []byte{0x06, 0x0E, 0x2B, 0x34, 0x04, 0x01, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x10, 0x00, 0x00, 0x00})
	assert.Equal(t, "OPAtom", mxf.OperationalPatternName(ul))
}

func TestOperationalPatternNameOP1a(t *testing.T) {
	var ul mxf.Key
	copy(ul[:], op1aUL)
	assert.Equal(t, "OP1a", mxf.OperationalPatternName(ul))
}
