package understory

import (
	"math"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// Highlight identifies one theme scope. Values are assigned by whatever
// resolver the loader passed to [LanguageConfig.Configure], so they are
// only meaningful to that resolver's owner.
type Highlight uint32

// HighlightNone marks a capture with no theme scope. The highlighter never
// emits it.
const HighlightNone = Highlight(math.MaxUint32)

// HighlightEvent says how the active highlight stack changed across an
// Advance call.
type HighlightEvent uint8

const (
	// HighlightEventRefresh: highlights were removed (and possibly added);
	// the returned slice is the complete new stack.
	HighlightEventRefresh HighlightEvent = iota
	// HighlightEventPush: the returned highlights were pushed on top of a
	// stack that is otherwise unchanged.
	HighlightEventPush
)

type highlightedNode struct {
	end       uint32
	highlight Highlight
}

type highlightFrame struct {
	layer Layer
	mark  int
}

// Highlighter folds the QueryIter event stream into a stack of active
// highlights. The stack holds highlights outermost first, ordered by
// descending end offset; consumers render the byte span up to
// NextEventOffset with ActiveHighlights, then call Advance, until the
// offset reaches math.MaxUint32.
type Highlighter struct {
	syntax *Syntax
	source []byte
	iter   *QueryIter

	event     QueryEvent
	haveEvent bool

	active []highlightedNode
	frames []highlightFrame
	// dormant holds highlights of a combined injection's layer between two
	// of its ranges: suspended at a non-final exit, resumed at the next
	// enter.
	dormant map[Layer][]highlightedNode

	added []Highlight
	batch []highlightedNode
}

// NewHighlighter prepares highlighting of [start, end). Each layer is
// driven by the highlight query of its language's configuration.
func NewHighlighter(syntax *Syntax, source []byte, start, end uint32) *Highlighter {
	iter := NewQueryIter(syntax, source, func(_ Language, config *LanguageConfig) *sitter.Query {
		if config == nil || config.Highlight == nil {
			return nil
		}
		return config.Highlight.query
	}, start, end)
	h := &Highlighter{
		syntax:  syntax,
		source:  source,
		iter:    iter,
		dormant: make(map[Layer][]highlightedNode),
	}
	h.event, h.haveEvent = iter.Next()
	return h
}

// Close releases the underlying query cursors.
func (h *Highlighter) Close() {
	h.iter.Close()
}

// NextEventOffset returns the byte offset at which the active highlights
// change next, or math.MaxUint32 when highlighting is complete.
func (h *Highlighter) NextEventOffset() uint32 {
	offset := h.pendingEventOffset()
	if n := len(h.active); n > 0 && h.active[n-1].end < offset {
		offset = h.active[n-1].end
	}
	return offset
}

// ActiveHighlights returns the current stack, outermost first.
func (h *Highlighter) ActiveHighlights() []Highlight {
	out := make([]Highlight, 0, len(h.active))
	for _, node := range h.active {
		out = append(out, node.highlight)
	}
	return out
}

// Advance moves past the next event offset. The returned slice is reused
// by the next Advance call; copy it to retain.
func (h *Highlighter) Advance() (HighlightEvent, []Highlight) {
	pos := h.NextEventOffset()
	if pos == math.MaxUint32 {
		return HighlightEventRefresh, nil
	}

	refresh := false
	h.added = h.added[:0]
	h.batch = h.batch[:0]

	for n := len(h.active); n > 0 && h.active[n-1].end <= pos; n = len(h.active) {
		h.active = h.active[:n-1]
		refresh = true
	}

	for h.haveEvent && h.pendingEventOffset() <= pos {
		event := h.event
		switch event.Kind {
		case EventMatch:
			if node, ok := h.matchHighlight(event); ok && node.end > pos {
				h.batch = append(h.batch, node)
			}

		case EventEnterInjection:
			h.flushBatch()
			h.frames = append(h.frames, highlightFrame{layer: event.Layer, mark: len(h.active)})
			for _, node := range h.dormant[event.Layer] {
				if node.end > pos {
					h.batch = append(h.batch, node)
				}
			}
			delete(h.dormant, event.Layer)

		case EventExitInjection:
			h.flushBatch()
			frame := h.frames[len(h.frames)-1]
			h.frames = h.frames[:len(h.frames)-1]
			if frame.mark < len(h.active) {
				suspended := h.active[frame.mark:]
				if !event.Finished {
					h.dormant[event.Layer] = append([]highlightedNode(nil), suspended...)
				}
				h.active = h.active[:frame.mark]
				refresh = true
			}
		}
		h.event, h.haveEvent = h.iter.Next()
	}
	h.flushBatch()

	if refresh {
		return HighlightEventRefresh, h.ActiveHighlights()
	}
	return HighlightEventPush, h.added
}

func (h *Highlighter) pendingEventOffset() uint32 {
	if !h.haveEvent {
		return math.MaxUint32
	}
	switch h.event.Kind {
	case EventMatch:
		return h.event.Match.Node.StartByte()
	case EventEnterInjection:
		return h.event.Injection.Range.Start
	default:
		return h.event.Injection.Range.End
	}
}

// flushBatch appends the highlights collected at the current position, kept
// nested: within the batch longer highlights go under shorter ones, and a
// highlight reaching past its enclosing one is clipped to it.
func (h *Highlighter) flushBatch() {
	if len(h.batch) == 0 {
		return
	}
	sort.SliceStable(h.batch, func(i, j int) bool {
		return h.batch[i].end > h.batch[j].end
	})
	for _, node := range h.batch {
		if n := len(h.active); n > 0 && node.end > h.active[n-1].end {
			node.end = h.active[n-1].end
		}
		h.active = append(h.active, node)
		h.added = append(h.added, node.highlight)
	}
	h.batch = h.batch[:0]
}

// matchHighlight resolves the highlight for one captured node, applying
// locals: a local.reference capture takes the highlight of the definition
// it binds to, and a pattern marked (#is-not? local) is dropped when the
// captured text is a bound local. References never bind to definitions
// that start later in the document.
func (h *Highlighter) matchHighlight(event QueryEvent) (highlightedNode, bool) {
	data := h.syntax.layers.get(event.Layer)
	if data == nil || data.config == nil || data.config.Highlight == nil {
		return highlightedNode{}, false
	}
	hq := data.config.Highlight
	node := event.Match.Node
	start, end := node.StartByte(), node.EndByte()

	if hq.hasLocalReference && event.Match.Capture == hq.localReferenceCapture && data.locals != nil {
		name := node.Content(h.source)
		if def, ok := data.locals.LookupReference(event.Match.Scope, name); ok && def.Range.End <= start {
			if data.config.Locals != nil {
				if hl := data.config.Locals.definitionHighlight(def.Capture); hl != HighlightNone {
					return highlightedNode{end: end, highlight: hl}, true
				}
			}
		}
	}

	if hq.nonLocalPatterns[event.Match.Pattern] && data.locals != nil {
		name := node.Content(h.source)
		if def, ok := data.locals.LookupReference(event.Match.Scope, name); ok && def.Range.End <= start {
			return highlightedNode{}, false
		}
	}

	hl := hq.highlightForCapture(event.Match.Capture)
	if hl == HighlightNone {
		return highlightedNode{}, false
	}
	return highlightedNode{end: end, highlight: hl}, true
}
