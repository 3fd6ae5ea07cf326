package understory

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// injectionCandidate is one content node of one accepted injection match.
type injectionCandidate struct {
	pattern  uint32
	matchID  uint32
	node     Range
	sitNode  *sitter.Node
	props    matchProperties
	segments []Range
}

// claimSet tracks byte ranges already claimed by accepted injections, kept
// sorted and non-overlapping.
type claimSet struct {
	ranges []Range
}

// subtract returns the pieces of r not yet claimed, in ascending order.
func (c *claimSet) subtract(r Range) []Range {
	var out []Range
	i := sort.Search(len(c.ranges), func(i int) bool {
		return c.ranges[i].End > r.Start
	})
	start := r.Start
	for ; i < len(c.ranges) && c.ranges[i].Start < r.End; i++ {
		if start < c.ranges[i].Start {
			out = append(out, Range{Start: start, End: c.ranges[i].Start})
		}
		if c.ranges[i].End > start {
			start = c.ranges[i].End
		}
	}
	if start < r.End {
		out = append(out, Range{Start: start, End: r.End})
	}
	return out
}

func (c *claimSet) add(r Range) {
	i := sort.Search(len(c.ranges), func(i int) bool {
		return c.ranges[i].Start >= r.Start
	})
	c.ranges = append(c.ranges, Range{})
	copy(c.ranges[i+1:], c.ranges[i:])
	c.ranges[i] = r
}

// builderKey groups candidates into child layers. Combined patterns pool
// every match of the same pattern and grammar into one layer; ordinary
// patterns pool only the content nodes of a single match.
type builderKey struct {
	combined bool
	pattern  uint32
	matchID  uint32
	grammar  *sitter.Language
}

type injectionBuilder struct {
	props     matchProperties
	ranges    []Range
	child     Layer
	haveChild bool
	patch     []int
}

// runInjectionQuery rebuilds a layer's injections from its fresh parse
// tree, reusing child layers from the previous pass where the grammar and
// position still line up. It returns the child layers to descend into.
func (s *Syntax) runInjectionQuery(id Layer, layer *layerData, source []byte) []Layer {
	iq := layer.config.Injections
	if iq == nil || iq.query == nil || !iq.hasContent {
		layer.injections = nil
		return nil
	}

	candidates := s.collectInjectionCandidates(iq, layer, source)

	// Resolve contested bytes: later-declared patterns claim first, and
	// each claim is clipped against what is already taken. A candidate
	// left with nothing is dropped entirely.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].pattern != candidates[j].pattern {
			return candidates[i].pattern > candidates[j].pattern
		}
		return candidates[i].node.Start < candidates[j].node.Start
	})
	var claimed claimSet
	accepted := candidates[:0]
	for _, cand := range candidates {
		segments := intersectRanges(layer.ranges, cand.sitNode, cand.props.includeChildren)
		var clipped []Range
		for _, seg := range segments {
			clipped = append(clipped, claimed.subtract(seg)...)
		}
		if len(clipped) == 0 {
			continue
		}
		for _, seg := range clipped {
			claimed.add(seg)
		}
		cand.segments = clipped
		accepted = append(accepted, cand)
	}

	// Assemble child layers in document order so that old injections can
	// be matched for reuse in a single ascending sweep.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].node.Start < accepted[j].node.Start
	})
	oldInjections := layer.injections
	reuseCursor := 0
	builders := make(map[builderKey]*injectionBuilder)
	var order []*injectionBuilder
	var injections []Injection
	for _, cand := range accepted {
		key := builderKey{
			combined: cand.props.combined,
			pattern:  cand.pattern,
			grammar:  cand.props.config.Grammar,
		}
		if !cand.props.combined {
			key.matchID = cand.matchID
		}
		builder := builders[key]
		if builder == nil {
			builder = &injectionBuilder{props: cand.props}
			builders[key] = builder
			order = append(order, builder)
		}
		if !builder.haveChild {
			if child, ok := s.reuseInjection(cand.props.config.Grammar, cand.node, oldInjections, &reuseCursor); ok {
				builder.child = child
				builder.haveChild = true
			}
		}
		builder.ranges = append(builder.ranges, cand.segments...)
		for _, seg := range cand.segments {
			builder.patch = append(builder.patch, len(injections))
			injections = append(injections, Injection{Range: seg, MatchedNode: cand.node})
		}
	}

	children := make([]Layer, 0, len(order))
	for _, builder := range order {
		sort.Slice(builder.ranges, func(i, j int) bool {
			return builder.ranges[i].Start < builder.ranges[j].Start
		})
		var child Layer
		if builder.haveChild {
			child = builder.child
			data := s.layers.get(child)
			data.parent, data.hasParent = id, true
			if !rangesEqual(data.ranges, builder.ranges) {
				data.ranges = builder.ranges
				data.flags.modified = true
			}
		} else {
			child = s.layers.insert(&layerData{
				language:  builder.props.language,
				config:    builder.props.config,
				ranges:    builder.ranges,
				parent:    id,
				hasParent: true,
			})
		}
		for _, idx := range builder.patch {
			injections[idx].Layer = child
		}
		children = append(children, child)
	}

	sort.Slice(injections, func(i, j int) bool {
		return injections[i].Range.Start < injections[j].Range.Start
	})
	layer.injections = injections
	return children
}

// collectInjectionCandidates runs the injection query and yields one
// candidate per non-empty content node whose match resolves to a loadable
// language. Byte-identical nodes from different patterns collapse to the
// later pattern unless the later one widens child inclusion, in which case
// both are kept.
func (s *Syntax) collectInjectionCandidates(iq *InjectionsQuery, layer *layerData, source []byte) []injectionCandidate {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(iq.query, layer.tree.RootNode())

	type resolved struct {
		props matchProperties
		ok    bool
	}
	propsCache := make(map[uint32]resolved)
	var candidates []injectionCandidate
	for {
		match, index, ok := cursor.NextCapture()
		if !ok {
			break
		}
		capture := match.Captures[index]
		if capture.Index != iq.contentCapture {
			continue
		}
		if filtered := cursor.FilterPredicates(match, source); len(filtered.Captures) == 0 {
			continue
		}
		cached, seen := propsCache[match.ID]
		if !seen {
			cached.props, cached.ok = iq.propertiesForMatch(match, source, s.loader)
			propsCache[match.ID] = cached
		}
		if !cached.ok {
			continue
		}
		node := Range{Start: capture.Node.StartByte(), End: capture.Node.EndByte()}
		if node.empty() {
			continue
		}
		cand := injectionCandidate{
			pattern: uint32(match.PatternIndex),
			matchID: match.ID,
			node:    node,
			sitNode: capture.Node,
			props:   cached.props,
		}
		if n := len(candidates); n > 0 && candidates[n-1].node == node &&
			cand.props.includeChildren == includeChildrenNone {
			candidates[n-1] = cand
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

// reuseInjection finds the old injection overlapping newRange whose child
// layer has the wanted grammar and has not been adopted yet. Old injections
// are consumed in ascending order; a non-matching overlap blocks reuse for
// this candidate but stays available for later ones.
func (s *Syntax) reuseInjection(grammar *sitter.Language, newRange Range, old []Injection, cursor *int) (Layer, bool) {
	for *cursor < len(old) && old[*cursor].Range.End <= newRange.Start {
		*cursor++
	}
	if *cursor >= len(old) {
		return Layer{}, false
	}
	inj := old[*cursor]
	if inj.Range.Start >= newRange.End {
		return Layer{}, false
	}
	child := s.layers.get(inj.Layer)
	if child == nil || child.flags.reused || child.config.Grammar != grammar {
		return Layer{}, false
	}
	child.flags.reused = true
	*cursor++
	return inj.Layer, true
}

// intersectRanges computes the spans a content node contributes to an
// injected document: the node's extent minus excluded children, clipped to
// the parent layer's own coverage.
func intersectRanges(parentRanges []Range, node *sitter.Node, policy includedChildren) []Range {
	if len(parentRanges) == 0 {
		return nil
	}
	var out []Range
	pi := 0
	parent := parentRanges[0]

	emit := func(r Range) bool {
		for {
			if parent.Start >= r.End {
				return true
			}
			if parent.End > r.Start {
				piece := r
				if piece.Start < parent.Start {
					piece.Start = parent.Start
				}
				if parent.End < piece.End {
					piece.End = parent.End
				} else {
					if !piece.empty() {
						out = append(out, piece)
					}
					return true
				}
				if !piece.empty() {
					out = append(out, piece)
				}
				r.Start = parent.End
			}
			pi++
			if pi >= len(parentRanges) {
				return false
			}
			parent = parentRanges[pi]
		}
	}

	cursor := node.StartByte()
	exclude := func(excluded Range) bool {
		gap := Range{Start: cursor, End: excluded.Start}
		cursor = excluded.End
		if gap.empty() {
			return true
		}
		return emit(gap)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch policy {
		case includeChildrenAll:
			continue
		case includeChildrenUnnamed:
			if !child.IsNamed() {
				continue
			}
		}
		if !exclude(Range{Start: child.StartByte(), End: child.EndByte()}) {
			return out
		}
	}
	exclude(Range{Start: node.EndByte(), End: maxRangeEnd})
	return out
}

func rangesEqual(a, b []Range) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
