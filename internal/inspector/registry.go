package inspector

import (
	"path/filepath"
	"strings"

	"github.com/rendiffdev/containerintegrity/internal/diag"
)

// Registry holds an immutable list of inspectors, initialized once and never
// mutated during inspection. Routing tries each inspector's extension match
// first, then falls back to its magic-byte probe.
type Registry struct {
	inspectors []Inspector
}

// NewRegistry builds a registry over the given inspectors, in priority
// order.
func NewRegistry(inspectors ...Inspector) *Registry {
	return &Registry{inspectors: inspectors}
}

// NewDefaultRegistry builds the registry shipped with this module: ISOBMFF
// then MXF.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewISOBMFFInspector(), NewMXFInspector())
}

// Inspect routes url to the first matching inspector and runs it. It
// returns (report, true, nil) on a match, (zero, false, nil) when no
// inspector claims the file, and (zero, false, err) on an I/O failure
// opening the file.
func (r *Registry) Inspect(url string, depth diag.Depth) (diag.ContainerReport, bool, error) {
	insp := r.route(url)
	if insp == nil {
		return diag.ContainerReport{}, false, nil
	}
	report, err := insp.Inspect(url, depth)
	if err != nil {
		return diag.ContainerReport{}, false, err
	}
	return report, true, nil
}

func (r *Registry) route(url string) Inspector {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(url), "."))
	for _, insp := range r.inspectors {
		for _, e := range insp.SupportedExtensions() {
			if e == ext {
				return insp
			}
		}
	}
	for _, insp := range r.inspectors {
		if insp.CanInspect(url) {
			return insp
		}
	}
	return nil
}
