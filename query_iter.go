package understory

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// QueryLoader selects the query QueryIter runs over each layer. Returning
// nil skips that layer's matches; its injections are still surfaced so
// nested layers keep working.
type QueryLoader func(lang Language, config *LanguageConfig) *sitter.Query

// MatchedNode is one captured node delivered by QueryIter.
type MatchedNode struct {
	MatchID uint32
	Pattern uint32
	// Capture is the capture index within the layer's query.
	Capture uint32
	Node    *sitter.Node
	// Scope is the innermost locals scope containing the node's start.
	Scope ScopeID
}

// QueryEventKind discriminates QueryEvent.
type QueryEventKind uint8

const (
	// EventMatch delivers a captured node of the current layer.
	EventMatch QueryEventKind = iota
	// EventEnterInjection announces that following matches come from the
	// injected child layer.
	EventEnterInjection
	// EventExitInjection closes the innermost open injection.
	EventExitInjection
)

// QueryEvent is one element of the byte-ordered stream produced by
// QueryIter: matches of the current layer interleaved with entries into
// and exits out of injected layers.
type QueryEvent struct {
	Kind      QueryEventKind
	Layer     Layer
	Language  Language
	Match     MatchedNode
	Injection Injection
	// Finished is set on an exit after the injected layer's last event.
	// A combined injection's layer is entered once per claimed range and
	// finishes only on the last one.
	Finished bool
}

type iterFrame struct {
	iter      *layerIter
	injection Injection
	isRoot    bool
}

// QueryIter runs one query per language over every layer intersecting a
// byte window and merges the results into a single stream ordered by start
// byte. Nested injections nest in the stream: all events between an enter
// and its matching exit belong to the injected layer or its descendants.
type QueryIter struct {
	syntax *Syntax
	source []byte
	loader QueryLoader
	start  uint32
	end    uint32

	frames []iterFrame
	// iters caches per-layer state so that re-entering a combined
	// injection's layer resumes where it left off.
	iters map[Layer]*layerIter
}

// NewQueryIter prepares iteration over [start, end). The loader is called
// once per distinct layer.
func NewQueryIter(syntax *Syntax, source []byte, loader QueryLoader, start, end uint32) *QueryIter {
	qi := &QueryIter{
		syntax: syntax,
		source: source,
		loader: loader,
		start:  start,
		end:    end,
		iters:  make(map[Layer]*layerIter),
	}
	qi.frames = append(qi.frames, iterFrame{
		iter:   qi.layerIterFor(syntax.Root()),
		isRoot: true,
	})
	return qi
}

// Next returns the next event, or false when iteration is complete.
func (qi *QueryIter) Next() (QueryEvent, bool) {
	for {
		if len(qi.frames) == 0 {
			return QueryEvent{}, false
		}
		top := &qi.frames[len(qi.frames)-1]
		limit := qi.end
		if !top.isRoot && top.injection.Range.End < limit {
			limit = top.injection.Range.End
		}

		match, haveMatch := top.iter.peekMatch()
		if haveMatch && match.Node.StartByte() >= limit {
			haveMatch = false
		}
		injection, haveInjection := top.iter.peekInjection(limit)

		switch {
		case haveMatch && (!haveInjection || match.Node.StartByte() <= injection.Range.Start):
			top.iter.popMatch()
			match.Scope = top.iter.scopeAt(match.Node.StartByte())
			return QueryEvent{
				Kind:     EventMatch,
				Layer:    top.iter.layer,
				Language: top.iter.data.language,
				Match:    match,
			}, true

		case haveMatch && match.Node.EndByte() <= injection.Range.End:
			// The match lies strictly inside the injection: the injected
			// layer owns those bytes.
			top.iter.popMatch()

		case haveInjection:
			top.iter.popInjection()
			child := qi.syntax.layers.get(injection.Layer)
			if child == nil || child.tree == nil {
				continue
			}
			qi.frames = append(qi.frames, iterFrame{
				iter:      qi.layerIterFor(injection.Layer),
				injection: injection,
			})
			return QueryEvent{
				Kind:      EventEnterInjection,
				Layer:     injection.Layer,
				Language:  child.language,
				Injection: injection,
			}, true

		default:
			qi.frames = qi.frames[:len(qi.frames)-1]
			if top.isRoot {
				return QueryEvent{}, false
			}
			finished := qi.layerFinished(top.injection)
			return QueryEvent{
				Kind:      EventExitInjection,
				Layer:     top.injection.Layer,
				Language:  top.iter.data.language,
				Injection: top.injection,
				Finished:  finished,
			}, true
		}
	}
}

// layerFinished reports whether no enclosing frame will enter the
// injection's layer again.
func (qi *QueryIter) layerFinished(injection Injection) bool {
	for _, frame := range qi.frames {
		data := frame.iter.data
		for i := frame.iter.injectionIdx; i < len(data.injections); i++ {
			if data.injections[i].Range.Start >= qi.end {
				break
			}
			if data.injections[i].Layer == injection.Layer {
				return false
			}
		}
	}
	return true
}

func (qi *QueryIter) layerIterFor(layer Layer) *layerIter {
	if it, ok := qi.iters[layer]; ok {
		return it
	}
	data := qi.syntax.layers.get(layer)
	it := &layerIter{
		layer:  layer,
		data:   data,
		source: qi.source,
		start:  qi.start,
		end:    qi.end,
	}
	it.injectionIdx = sort.Search(len(data.injections), func(i int) bool {
		return data.injections[i].Range.End > qi.start
	})
	if query := qi.loader(data.language, data.config); query != nil && data.tree != nil {
		it.query = query
		it.cursor = sitter.NewQueryCursor()
		it.cursor.Exec(query, data.tree.RootNode())
	}
	if data.locals != nil {
		it.scopes = data.locals.ScopeCursorAt(qi.start)
	}
	qi.iters[layer] = it
	return it
}

// Close releases the native query cursors. The iterator is unusable
// afterwards.
func (qi *QueryIter) Close() {
	for _, it := range qi.iters {
		if it.cursor != nil {
			it.cursor.Close()
		}
	}
	qi.iters = nil
	qi.frames = nil
}

// layerIter is the per-layer cursor state: pending query captures, the
// next unconsumed injection, and a scope cursor for locals resolution. It
// persists across enter/exit cycles of combined injections.
type layerIter struct {
	layer  Layer
	data   *layerData
	source []byte
	start  uint32
	end    uint32

	query        *sitter.Query
	cursor       *sitter.QueryCursor
	scopes       *ScopeCursor
	injectionIdx int

	peeked  bool
	pending MatchedNode
	done    bool
}

func (it *layerIter) peekMatch() (MatchedNode, bool) {
	for !it.peeked && !it.done {
		if it.cursor == nil {
			it.done = true
			break
		}
		match, index, ok := it.cursor.NextCapture()
		if !ok {
			it.done = true
			break
		}
		capture := match.Captures[index]
		node := capture.Node
		if node.StartByte() >= it.end {
			it.done = true
			break
		}
		// Zero-width captures carry no text and would stall a consumer
		// that advances by byte offset.
		if node.EndByte() <= node.StartByte() || node.EndByte() <= it.start {
			continue
		}
		if filtered := it.cursor.FilterPredicates(match, it.source); len(filtered.Captures) == 0 {
			continue
		}
		it.pending = MatchedNode{
			MatchID: match.ID,
			Pattern: uint32(match.PatternIndex),
			Capture: capture.Index,
			Node:    node,
		}
		it.peeked = true
	}
	return it.pending, it.peeked
}

func (it *layerIter) popMatch() {
	it.peeked = false
}

func (it *layerIter) peekInjection(limit uint32) (Injection, bool) {
	if it.injectionIdx >= len(it.data.injections) {
		return Injection{}, false
	}
	injection := it.data.injections[it.injectionIdx]
	if injection.Range.Start >= limit {
		return Injection{}, false
	}
	return injection, true
}

func (it *layerIter) popInjection() {
	it.injectionIdx++
}

func (it *layerIter) scopeAt(pos uint32) ScopeID {
	if it.scopes == nil {
		return rootScope
	}
	return it.scopes.Advance(pos)
}
