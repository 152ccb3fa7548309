// Package isobmff implements a format-aware, bounds-checked parser for the
// ISO Base Media File Format (MP4/MOV/M4V/3GP): a box tree walker, sample
// table decoders, AVC/HEVC decoder configuration record parsers, a frame map
// builder, a sampling NAL walker, and the cross-validating report builder
// that ties them together.
package isobmff

import (
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
)

// BoxType is a 4-character-code box identifier, kept as a string for easy
// comparison and map keys.
type BoxType string

const (
	TypeFtyp BoxType = "ftyp"
	TypeMoov BoxType = "moov"
	TypeMdat BoxType = "mdat"
	TypeTrak BoxType = "trak"
	TypeMdia BoxType = "mdia"
	TypeMinf BoxType = "minf"
	TypeStbl BoxType = "stbl"
	TypeUdta BoxType = "udta"
	TypeMeta BoxType = "meta"
	TypeEdts BoxType = "edts"
	TypeDinf BoxType = "dinf"
	TypeSinf BoxType = "sinf"
	TypeMvex BoxType = "mvex"
	TypeMoof BoxType = "moof"
	TypeTraf BoxType = "traf"
	TypeSchi BoxType = "schi"

	TypeMdhd BoxType = "mdhd"
	TypeHdlr BoxType = "hdlr"
	TypeElst BoxType = "elst"
	TypeStsd BoxType = "stsd"
	TypeStts BoxType = "stts"
	TypeCtts BoxType = "ctts"
	TypeStss BoxType = "stss"
	TypeStco BoxType = "stco"
	TypeCo64 BoxType = "co64"
	TypeStsc BoxType = "stsc"
	TypeStsz BoxType = "stsz"
	TypeAvcC BoxType = "avcC"
	TypeHvcC BoxType = "hvcC"
)

// containerBoxes is the fixed allowlist of 4CCs that may be recursed into.
// Anything not on this list is treated as a leaf, regardless of its actual
// contents.
var containerBoxes = map[BoxType]bool{
	TypeMoov: true,
	TypeTrak: true,
	TypeMdia: true,
	TypeMinf: true,
	TypeStbl: true,
	TypeUdta: true,
	TypeMeta: true,
	TypeEdts: true,
	TypeDinf: true,
	TypeSinf: true,
	TypeMvex: true,
	TypeMoof: true,
	TypeTraf: true,
	TypeSchi: true,
}

// IsContainerBox reports whether t is on the fixed recursable allowlist.
func IsContainerBox(t BoxType) bool {
	return containerBoxes[t]
}

// MaxDepth is the hard recursion bound for box-tree traversal regardless of
// what the allowlist implies about nesting.
const MaxDepth = 6

// minBoxHeaderSize is the smallest legal box size: an 8-byte header with no
// 64-bit extension.
const minBoxHeaderSize = 8

// minExtendedBoxHeaderSize is the smallest legal size once a 64-bit
// extension is present.
const minExtendedBoxHeaderSize = 16

// Box is one node of the parsed box tree: its type, the absolute file
// offset and total size (header + payload), and any recursed children.
//
// PayloadOffset/PayloadSize describe the box body after its header, which is
// what sample-table and codec-config decoders operate on.
type Box struct {
	Type          BoxType
	Offset        int64
	Size          int64
	HeaderSize    int64
	PayloadOffset int64
	PayloadSize   int64
	Children      []Box
	// Truncated marks a box whose declared end exceeds the enclosing range;
	// such boxes are recorded but never recursed into.
	Truncated bool
	// Malformed marks a box whose declared size is in (0, minBoxHeaderSize),
	// too small to contain even a valid header.
	Malformed bool
}

// End returns the box's absolute end offset (offset + size).
func (b Box) End() int64 {
	return b.Offset + b.Size
}

// ParseError describes a structural box-tree problem encountered while
// walking, for diagnostics that need more context than a Box field conveys.
type ParseError struct {
	Offset int64
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("isobmff: %s at offset %d", e.Msg, e.Offset)
}

// WalkBoxes parses consecutive length-prefixed boxes in [start, end) of r,
// recursing into allowlisted container boxes up to MaxDepth. It never
// returns an error for malformed input; malformed/truncated boxes are
// represented in the returned slice with their Malformed/Truncated flags set
// so validators can turn them into diagnostics.
func WalkBoxes(r *bitreader.Reader, start, end int64, depth int) []Box {
	var boxes []Box
	offset := start

	for offset+minBoxHeaderSize <= end {
		size32, ok := r.ReadU32BE(offset)
		if !ok {
			break
		}
		typeBytes := r.Slice(offset+4, 4)
		if typeBytes == nil {
			break
		}
		boxType := BoxType(typeBytes)

		headerSize := int64(minBoxHeaderSize)
		var size int64

		switch size32 {
		case 0:
			// Extends to the enclosing range's end.
			size = end - offset
		case 1:
			if offset+minExtendedBoxHeaderSize > end {
				// Not enough room for the 64-bit extension: truncated.
				boxes = append(boxes, Box{
					Type:      boxType,
					Offset:    offset,
					Size:      end - offset,
					Truncated: true,
				})
				return boxes
			}
			size64, ok := r.ReadU64BE(offset + 8)
			if !ok {
				break
			}
			headerSize = minExtendedBoxHeaderSize
			size = int64(size64)
		default:
			size = int64(size32)
		}

		if size > 0 && size < minBoxHeaderSize {
			boxes = append(boxes, Box{
				Type:      boxType,
				Offset:    offset,
				Size:      size,
				Malformed: true,
			})
			// A malformed size makes the rest of the range unnavigable;
			// stop walking this sibling list here.
			break
		}

		declaredEnd := offset + size
		if declaredEnd > end || declaredEnd < offset {
			boxes = append(boxes, Box{
				Type:       boxType,
				Offset:     offset,
				Size:       end - offset,
				HeaderSize: headerSize,
				Truncated:  true,
			})
			break
		}

		box := Box{
			Type:          boxType,
			Offset:        offset,
			Size:          size,
			HeaderSize:    headerSize,
			PayloadOffset: offset + headerSize,
			PayloadSize:   size - headerSize,
		}

		if IsContainerBox(boxType) && depth < MaxDepth {
			box.Children = WalkBoxes(r, box.PayloadOffset, box.End(), depth+1)
		}

		boxes = append(boxes, box)
		offset = declaredEnd
	}

	return boxes
}

// FindChild returns the first direct child of the given type, or nil.
func FindChild(children []Box, t BoxType) *Box {
	for i := range children {
		if children[i].Type == t {
			return &children[i]
		}
	}
	return nil
}

// FindChildren returns all direct children of the given type.
func FindChildren(children []Box, t BoxType) []Box {
	var out []Box
	for _, c := range children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// FindDescendant performs a depth-first search for the first box of type t
// anywhere under children.
func FindDescendant(children []Box, t BoxType) *Box {
	for i := range children {
		if children[i].Type == t {
			return &children[i]
		}
		if found := FindDescendant(children[i].Children, t); found != nil {
			return found
		}
	}
	return nil
}
