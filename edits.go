package understory

// editSweep remaps a sorted sequence of byte ranges through a sorted
// batch of edits in a single forward pass. Each range is visited once and
// each edit is consumed once, so remapping a whole layer is O(ranges+edits).
type editSweep struct {
	edits  []Edit
	next   int
	offset int32
}

func newEditSweep(edits []Edit) editSweep {
	return editSweep{edits: edits}
}

// mapRange rewrites r in place with mapped coordinates. Ranges must be
// presented in ascending start order. The moved result reports that the
// range shifted position, modified that its content changed. An edit that
// starts before the range and ends past it dissolves the range: both ends
// collapse to the edit's new end so that a later discovery pass treats the
// span as gone.
func (s *editSweep) mapRange(r *Range) (moved, modified bool) {
	for s.next < len(s.edits) && s.edits[s.next].OldEndByte < r.Start {
		s.offset += s.edits[s.next].Offset()
		s.next++
	}
	moved = s.offset != 0
	start := uint32(int32(r.Start) + s.offset)
	end := uint32(int32(r.End) + s.offset)

	if s.next < len(s.edits) && s.edits[s.next].OldEndByte <= r.End {
		edit := s.edits[s.next]
		if edit.StartByte < r.Start {
			// The edit crosses the start boundary: the surviving content
			// begins at the edit's new end.
			moved = true
			start = uint32(int32(edit.NewEndByte) + s.offset)
		} else {
			modified = true
		}
		s.offset += edit.Offset()
		s.next++
		for s.next < len(s.edits) && s.edits[s.next].OldEndByte <= r.End {
			modified = true
			s.offset += s.edits[s.next].Offset()
			s.next++
		}
		end = uint32(int32(r.End) + s.offset)
	}

	if s.next < len(s.edits) && s.edits[s.next].StartByte <= r.End {
		edit := s.edits[s.next]
		if edit.StartByte < r.Start {
			// Swallowed whole: dissolve.
			start = uint32(int32(edit.NewEndByte) + s.offset)
			end = start
			moved = true
		} else {
			modified = true
		}
	}

	r.Start, r.End = start, end
	return moved, modified
}

// applyEdits remaps a layer's included ranges and folds the per-range
// movement into the layer's flags.
func (d *layerData) applyEdits(edits []Edit) {
	sweep := newEditSweep(edits)
	for i := range d.ranges {
		moved, modified := sweep.mapRange(&d.ranges[i])
		d.flags.moved = d.flags.moved || moved
		d.flags.modified = d.flags.modified || modified
	}
}

// mapInjections remaps a layer's injection bookkeeping. Child layer flags
// are updated from the mapped content ranges so that an untouched child
// still knows whether the text it covers shifted or changed.
func (s *Syntax) mapInjections(d *layerData, edits []Edit) {
	rangeSweep := newEditSweep(edits)
	nodeSweep := newEditSweep(edits)
	for i := range d.injections {
		inj := &d.injections[i]
		moved, modified := rangeSweep.mapRange(&inj.Range)
		nodeSweep.mapRange(&inj.MatchedNode)
		if child := s.layers.get(inj.Layer); child != nil {
			child.flags.moved = child.flags.moved || moved
			child.flags.modified = child.flags.modified || modified
		}
	}
}
