package inspector

import (
	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/isobmff"
)

// isobmffTopLevelMagic lists the 4CCs a well-formed ISOBMFF file may begin
// with, used for the magic-byte probe.
var isobmffTopLevelMagic = map[string]bool{
	"ftyp": true, "moov": true, "mdat": true, "free": true, "wide": true, "skip": true, "pnot": true,
}

// ISOBMFFInspector handles MP4/MOV/M4V/3GP containers.
type ISOBMFFInspector struct{}

// NewISOBMFFInspector builds the ISOBMFF inspector.
func NewISOBMFFInspector() *ISOBMFFInspector {
	return &ISOBMFFInspector{}
}

// SupportedExtensions implements Inspector.
func (i *ISOBMFFInspector) SupportedExtensions() []string {
	return []string{"mp4", "mov", "m4v", "3gp"}
}

// CanInspect implements Inspector: it reads at most 8 bytes and checks
// whether the box type at bytes 4-7 is a recognized top-level ISOBMFF box.
func (i *ISOBMFFInspector) CanInspect(url string) bool {
	r, closer, err := bitreader.OpenMapped(url)
	if err != nil {
		return false
	}
	defer closer()
	typeBytes := r.Slice(4, 4)
	if typeBytes == nil {
		return false
	}
	return isobmffTopLevelMagic[string(typeBytes)]
}

// Inspect implements Inspector.
func (i *ISOBMFFInspector) Inspect(url string, depth diag.Depth) (diag.ContainerReport, error) {
	r, closer, err := bitreader.OpenMapped(url)
	if err != nil {
		return diag.ContainerReport{}, err
	}
	defer closer()
	return isobmff.Inspect(r, depth), nil
}
