package understory

import (
	"math"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// Range is a half-open [Start, End) span of document-global byte offsets.
// Layer ranges and injection ranges are always document-global, never
// relative to the layer that owns them.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) empty() bool {
	return r.End <= r.Start
}

func (r Range) contains(b uint32) bool {
	return r.Start <= b && b < r.End
}

// containsRange reports whether other lies entirely inside r.
func (r Range) containsRange(other Range) bool {
	return r.Start <= other.Start && other.End <= r.End
}

func (r Range) overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// Edit describes a single text change: the byte span it replaced and the
// byte span that replaced it, with the matching row/column points.
type Edit struct {
	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  sitter.Point
	OldEndPoint sitter.Point
	NewEndPoint sitter.Point
}

// Offset is the signed size change of the edit. Document sizes fit in 31
// bits (see maxDocumentSize) so the conversion cannot overflow.
func (e Edit) Offset() int32 {
	return int32(e.NewEndByte) - int32(e.OldEndByte)
}

func (e Edit) input() sitter.EditInput {
	return sitter.EditInput{
		StartIndex:  e.StartByte,
		OldEndIndex: e.OldEndByte,
		NewEndIndex: e.NewEndByte,
		StartPoint:  e.StartPoint,
		OldEndPoint: e.OldEndPoint,
		NewEndPoint: e.NewEndPoint,
	}
}

// validateRanges checks that ranges are sorted ascending and pairwise
// non-overlapping. SetIncludedRanges does not report this itself.
func validateRanges(ranges []Range) error {
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start < ranges[i-1].End {
			return ErrInvalidRanges
		}
	}
	return nil
}

// lineIndex converts byte offsets to row/column points. It is rebuilt from
// the source once per Update and used only when handing included ranges to
// the parser; everything else in the engine works on byte offsets.
type lineIndex struct {
	// starts[i] is the byte offset of the first byte of line i.
	starts []uint32
	size   uint32
}

func newLineIndex(src []byte) lineIndex {
	starts := make([]uint32, 1, len(src)/32+1)
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, uint32(i)+1)
		}
	}
	return lineIndex{starts: starts, size: uint32(len(src))}
}

func (ix lineIndex) point(b uint32) sitter.Point {
	if b >= ix.size {
		// Offsets past the end (notably the math.MaxUint32 sentinel of the
		// root range) saturate, matching what tree-sitter expects for an
		// unbounded included range.
		if b == math.MaxUint32 {
			return sitter.Point{Row: math.MaxUint32, Column: math.MaxUint32}
		}
		b = ix.size
	}
	row := uint32(sort.Search(len(ix.starts), func(i int) bool {
		return ix.starts[i] > b
	}) - 1)
	return sitter.Point{Row: row, Column: b - ix.starts[row]}
}

func (ix lineIndex) sitterRange(r Range) sitter.Range {
	return sitter.Range{
		StartByte:  r.Start,
		EndByte:    r.End,
		StartPoint: ix.point(r.Start),
		EndPoint:   ix.point(r.End),
	}
}
