package understory

import (
	"math"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// LocalsQuery is the compiled form of a language's locals query: lexical
// scopes, definitions, and references used for local-variable-aware
// highlighting. Immutable after configure.
type LocalsQuery struct {
	query        *sitter.Query
	captureNames []string

	scopeCapture uint32
	hasScope     bool

	// definitionCaptures holds capture ids named local.definition.*; the
	// configured highlight for each is resolved from the trailing scope
	// name, so a reference bound to `@local.definition.variable.parameter`
	// is highlighted as `variable.parameter`.
	definitionCaptures   map[uint32]bool
	definitionHighlights map[uint32]Highlight

	// noInheritPatterns holds patterns carrying
	// `(#set! local.scope-inherits false)`.
	noInheritPatterns map[uint32]bool
}

func newLocalsQuery(grammar *sitter.Language, src string) (*LocalsQuery, error) {
	lq := &LocalsQuery{
		definitionCaptures:   make(map[uint32]bool),
		definitionHighlights: make(map[uint32]Highlight),
		noInheritPatterns:    make(map[uint32]bool),
	}
	if src == "" {
		return lq, nil
	}
	query, err := sitter.NewQuery([]byte(normalizeDirectives(src)), grammar)
	if err != nil {
		return nil, err
	}
	lq.query = query
	lq.captureNames = captureNames(query)
	for i, name := range lq.captureNames {
		switch {
		case name == "local.scope":
			lq.scopeCapture, lq.hasScope = uint32(i), true
		case strings.HasPrefix(name, "local.definition."):
			lq.definitionCaptures[uint32(i)] = true
		}
	}
	for pattern := uint32(0); pattern < query.PatternCount(); pattern++ {
		for _, pred := range patternPredicates(query, pattern) {
			if pred.name == "set!" && len(pred.args) == 2 &&
				pred.args[0].value == "local.scope-inherits" && pred.args[1].value == "false" {
				lq.noInheritPatterns[pattern] = true
			}
		}
	}
	return lq, nil
}

func (lq *LocalsQuery) configure(resolve func(name string) Highlight) {
	for capture := range lq.definitionCaptures {
		name := strings.TrimPrefix(lq.captureNames[capture], "local.definition.")
		lq.definitionHighlights[capture] = resolve(name)
	}
}

// definitionHighlight returns the configured highlight for a definition
// capture, or HighlightNone.
func (lq *LocalsQuery) definitionHighlight(capture uint32) Highlight {
	if hl, ok := lq.definitionHighlights[capture]; ok {
		return hl
	}
	return HighlightNone
}

// Definition is a name binding: the locals-query capture that produced it
// and the byte range of the defining node. A reference may only bind to a
// definition that ends at or before the reference starts.
type Definition struct {
	Capture uint32
	Range   Range
}

// ScopeID indexes a scope within one layer's Locals. The root scope of
// every layer is ScopeID 0.
type ScopeID uint32

const rootScope ScopeID = 0

type scopeData struct {
	defs     map[string]Definition
	rng      Range
	children []ScopeID
	inherits bool
	parent   int32
}

// Locals is one layer's lexical-binding structure: a tree of scopes, each
// with a definition table. It is rebuilt from scratch whenever the layer is
// reparsed and never mutated incrementally.
type Locals struct {
	scopes []scopeData
}

func newLocals() *Locals {
	return &Locals{scopes: []scopeData{{
		rng:      Range{Start: 0, End: math.MaxUint32},
		inherits: false,
		parent:   -1,
		defs:     make(map[string]Definition),
	}}}
}

// buildLocals runs the locals query over a layer's tree and constructs the
// scope tree and definition tables. Captures arrive in position order, so a
// single pass with a scope stack assigns every definition to its nearest
// enclosing scope.
func buildLocals(lq *LocalsQuery, root *sitter.Node, source []byte) *Locals {
	locals := newLocals()
	if lq == nil || lq.query == nil {
		return locals
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(lq.query, root)

	stack := []ScopeID{rootScope}
	for {
		match, index, ok := cursor.NextCapture()
		if !ok {
			break
		}
		if filtered := cursor.FilterPredicates(match, source); len(filtered.Captures) == 0 {
			continue
		}
		capture := match.Captures[index]
		rng := Range{Start: capture.Node.StartByte(), End: capture.Node.EndByte()}

		for len(stack) > 1 && locals.scopes[stack[len(stack)-1]].rng.End <= rng.Start {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]

		switch {
		case lq.hasScope && capture.Index == lq.scopeCapture:
			id := ScopeID(len(locals.scopes))
			locals.scopes = append(locals.scopes, scopeData{
				rng:      rng,
				inherits: !lq.noInheritPatterns[uint32(match.PatternIndex)],
				parent:   int32(parent),
				defs:     make(map[string]Definition),
			})
			locals.scopes[parent].children = append(locals.scopes[parent].children, id)
			stack = append(stack, id)
		case lq.definitionCaptures[capture.Index]:
			locals.scopes[parent].defs[capture.Node.Content(source)] = Definition{
				Capture: capture.Index,
				Range:   rng,
			}
		}
	}
	return locals
}

// LookupReference resolves name starting at scope and walking outward while
// scopes inherit from their parents. The position rule (no forward
// references) is the caller's to apply against the returned definition.
func (l *Locals) LookupReference(scope ScopeID, name string) (Definition, bool) {
	for {
		data := &l.scopes[scope]
		if def, ok := data.defs[name]; ok {
			return def, true
		}
		if !data.inherits || data.parent < 0 {
			return Definition{}, false
		}
		scope = ScopeID(data.parent)
	}
}

// ScopeCursor tracks the innermost scope containing a monotonically
// advancing byte position without re-walking from the root each time.
type ScopeCursor struct {
	locals *Locals
	stack  []scopeFrame
}

type scopeFrame struct {
	scope ScopeID
	child uint32
}

// ScopeCursorAt positions a cursor at pos.
func (l *Locals) ScopeCursorAt(pos uint32) *ScopeCursor {
	cursor := &ScopeCursor{locals: l, stack: make([]scopeFrame, 0, 8)}
	scope := rootScope
	for {
		data := &l.scopes[scope]
		child := uint32(len(data.children))
		for i, c := range data.children {
			if pos < l.scopes[c].rng.End {
				child = uint32(i)
				break
			}
		}
		cursor.stack = append(cursor.stack, scopeFrame{scope: scope, child: child})
		if int(child) >= len(data.children) || pos < l.scopes[data.children[child]].rng.Start {
			break
		}
		scope = data.children[child]
	}
	return cursor
}

// Scope returns the scope the cursor is currently inside.
func (c *ScopeCursor) Scope() ScopeID {
	return c.stack[len(c.stack)-1].scope
}

// Locals returns the layer's locals this cursor walks.
func (c *ScopeCursor) Locals() *Locals {
	return c.locals
}

// Advance moves the cursor forward to byte position to and returns the
// innermost scope containing it. Positions must be non-decreasing across
// calls.
func (c *ScopeCursor) Advance(to uint32) ScopeID {
	frame := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	for to >= c.locals.scopes[frame.scope].rng.End {
		frame = c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		frame.child++
	}
	for {
		data := &c.locals.scopes[frame.scope]
		descended := false
		for int(frame.child) < len(data.children) {
			child := data.children[frame.child]
			childRange := c.locals.scopes[child].rng
			if childRange.Start > to {
				break
			}
			if to < childRange.End {
				c.stack = append(c.stack, frame)
				frame = scopeFrame{scope: child}
				descended = true
				break
			}
			frame.child++
		}
		if !descended {
			break
		}
	}
	c.stack = append(c.stack, frame)
	return frame.scope
}
