// Package inspector provides the format-inspector registry: extension-then-
// magic-byte routing to the ISOBMFF and MXF inspectors, and the shared
// Inspector contract new formats implement to register themselves.
package inspector

import "github.com/rendiffdev/containerintegrity/internal/diag"

// Inspector is the capability set a format implementation must provide:
// advertised extensions, a cheap magic-byte probe, and the full inspection
// call.
type Inspector interface {
	// SupportedExtensions returns the lowercased extensions (without a
	// leading dot) this inspector claims by name.
	SupportedExtensions() []string
	// CanInspect is a cheap probe that may read at most 16 bytes of url to
	// decide whether this inspector can handle it.
	CanInspect(url string) bool
	// Inspect runs the full inspection and returns a report.
	Inspect(url string, depth diag.Depth) (diag.ContainerReport, error)
}
