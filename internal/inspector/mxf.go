package inspector

import (
	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/mxf"
)

// MXFInspector handles Material eXchange Format OP1a/OPAtom containers.
type MXFInspector struct{}

// NewMXFInspector builds the MXF inspector.
func NewMXFInspector() *MXFInspector {
	return &MXFInspector{}
}

// SupportedExtensions implements Inspector.
func (m *MXFInspector) SupportedExtensions() []string {
	return []string{"mxf"}
}

// CanInspect implements Inspector: it reads the first 16 bytes and checks
// them against the partition pack key prefix.
func (m *MXFInspector) CanInspect(url string) bool {
	r, closer, err := bitreader.OpenMapped(url)
	if err != nil {
		return false
	}
	defer closer()
	keyBytes := r.Slice(0, mxf.KeySize)
	if keyBytes == nil {
		return false
	}
	var key mxf.Key
	copy(key[:], keyBytes)
	return mxf.IsPartitionPackKey(key)
}

// Inspect implements Inspector.
func (m *MXFInspector) Inspect(url string, depth diag.Depth) (diag.ContainerReport, error) {
	r, closer, err := bitreader.OpenMapped(url)
	if err != nil {
		return diag.ContainerReport{}, err
	}
	defer closer()
	return mxf.Inspect(r), nil
}
