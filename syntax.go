package understory

import (
	"context"
	"sort"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

// Layer is a stable handle to one parse layer: a single tree-sitter tree
// covering part of the document in one grammar. Handles survive insertion
// and pruning of other layers; a handle to a pruned layer simply stops
// resolving. The zero Layer is never valid.
type Layer struct {
	idx uint32
	gen uint32
}

func (l Layer) valid() bool {
	return l.gen != 0
}

// Injection is a child layer's claim on a byte range inside its parent
// layer.
type Injection struct {
	// Range is the span the child layer actually parses, after excluding
	// child nodes per the pattern's policy and clipping to the parent's
	// coverage.
	Range Range
	// MatchedNode is the full span of the node that produced the injection.
	// Edit remapping works on this span: an edit touching the node's
	// margins can change which children are excluded even when Range is
	// untouched.
	MatchedNode Range
	// Layer is the injected child layer. Several injections may share one
	// layer: a combined injection parses multiple disjoint ranges as a
	// single document.
	Layer Layer
}

// layerFlags track a layer's status across one Update pass.
type layerFlags struct {
	// modified: content covered by this layer changed; it must reparse.
	modified bool
	// moved: ranges shifted without content change; trees need edits
	// applied but not a reparse.
	moved bool
	// touched: some injection (or the root) referenced this layer during
	// the pass. Untouched layers are pruned afterwards.
	touched bool
	// reused: an injection already claimed this layer during discovery;
	// guards against two new injections adopting the same old child.
	reused bool
}

type layerData struct {
	language   Language
	config     *LanguageConfig
	tree       *sitter.Tree
	ranges     []Range
	injections []Injection
	locals     *Locals
	flags      layerFlags
	parent     Layer
	hasParent  bool
}

// injectionAtByte returns the injection within this layer containing idx.
// It does not descend into nested injections.
func (d *layerData) injectionAtByte(idx uint32) (Injection, bool) {
	i := sort.Search(len(d.injections), func(i int) bool {
		return d.injections[i].Range.End > idx
	})
	if i < len(d.injections) && d.injections[i].Range.Start <= idx {
		return d.injections[i], true
	}
	return Injection{}, false
}

// layerArena stores layers in generation-tagged slots so handles stay valid
// across insertions and pruning.
type layerArena struct {
	slots []layerSlot
	free  []uint32
}

type layerSlot struct {
	gen  uint32
	data *layerData
}

func (a *layerArena) insert(data *layerData) Layer {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].gen++
		a.slots[idx].data = data
		return Layer{idx: idx, gen: a.slots[idx].gen}
	}
	a.slots = append(a.slots, layerSlot{gen: 1, data: data})
	return Layer{idx: uint32(len(a.slots) - 1), gen: 1}
}

func (a *layerArena) get(layer Layer) *layerData {
	if !layer.valid() || int(layer.idx) >= len(a.slots) {
		return nil
	}
	slot := &a.slots[layer.idx]
	if slot.gen != layer.gen {
		return nil
	}
	return slot.data
}

func (a *layerArena) remove(layer Layer) {
	data := a.get(layer)
	if data == nil {
		return
	}
	if data.tree != nil {
		data.tree.Close()
	}
	a.slots[layer.idx].data = nil
	a.free = append(a.free, layer.idx)
}

// each visits every live layer. Removing the visited layer during the walk
// is allowed.
func (a *layerArena) each(visit func(Layer, *layerData)) {
	for idx := range a.slots {
		slot := &a.slots[idx]
		if slot.data != nil {
			visit(Layer{idx: uint32(idx), gen: slot.gen}, slot.data)
		}
	}
}

// Syntax is the layered syntax tree of a single document: the root layer
// plus every injected child layer, linked by injections. It is mutated in
// place by Update and must not be accessed concurrently with it.
type Syntax struct {
	layers  layerArena
	root    Layer
	loader  Loader
	timeout time.Duration
	parsers *ParserPool
}

// Option configures a Syntax.
type Option func(*Syntax)

// WithTimeout bounds each layer parse during Update. A layer that cannot be
// parsed within the budget fails the update with ErrTimeout. The default is
// 500ms, which is generous for interactive edits.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Syntax) {
		s.timeout = timeout
	}
}

// WithParserPool makes the Syntax draw parser objects from pool instead of
// owning its own, so several documents processed in turn on one goroutine
// share parsers.
func WithParserPool(pool *ParserPool) Option {
	return func(s *Syntax) {
		s.parsers = pool
	}
}

// NewSyntax parses source with the loader's configuration for rootLanguage
// and discovers all injected layers. It returns ErrNoRootConfig when the
// loader cannot resolve the root language.
func NewSyntax(ctx context.Context, source []byte, rootLanguage Language, loader Loader, opts ...Option) (*Syntax, error) {
	rootConfig := loader.GetConfig(rootLanguage)
	if rootConfig == nil {
		return nil, ErrNoRootConfig
	}

	s := &Syntax{
		loader:  loader,
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parsers == nil {
		s.parsers = NewParserPool()
	}

	s.root = s.layers.insert(&layerData{
		language: rootLanguage,
		config:   rootConfig,
		ranges:   []Range{{Start: 0, End: maxRangeEnd}},
	})
	if err := s.Update(ctx, source, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the root layer.
func (s *Syntax) Root() Layer {
	return s.root
}

// Tree returns the root layer's parse tree.
func (s *Syntax) Tree() *sitter.Tree {
	return s.layers.get(s.root).tree
}

// LayerLanguage returns the language of a layer.
func (s *Syntax) LayerLanguage(layer Layer) (Language, bool) {
	data := s.layers.get(layer)
	if data == nil {
		return 0, false
	}
	return data.language, true
}

// LayerForByteRange returns the most deeply nested layer whose coverage
// contains the half-open byte range [start, end).
func (s *Syntax) LayerForByteRange(start, end uint32) Layer {
	cursor := s.root
	for {
		data := s.layers.get(cursor)
		injection, ok := data.injectionAtByte(start)
		if !ok || end > injection.Range.End {
			break
		}
		cursor = injection.Layer
	}
	return cursor
}

// TreeForByteRange returns the parse tree of the most deeply nested layer
// covering [start, end].
func (s *Syntax) TreeForByteRange(start, end uint32) *sitter.Tree {
	_, tree := s.layerAndTreeForByteRange(start, end)
	return tree
}

func (s *Syntax) layerAndTreeForByteRange(start, end uint32) (Layer, *sitter.Tree) {
	layer := s.LayerForByteRange(start, end)
	for {
		data := s.layers.get(layer)
		if data.tree != nil {
			return layer, data.tree
		}
		// A layer can transiently lack a tree (e.g. its grammar failed to
		// load); fall back to the closest parsed ancestor.
		if !data.hasParent {
			return layer, nil
		}
		layer = data.parent
	}
}

// LanguageAt returns the language governing the byte at pos.
func (s *Syntax) LanguageAt(pos uint32) Language {
	layer := s.LayerForByteRange(pos, pos)
	return s.layers.get(layer).language
}

// DescendantForByteRange returns the smallest node spanning [start, end],
// descending into injected layers.
func (s *Syntax) DescendantForByteRange(start, end uint32) *sitter.Node {
	return s.descendantForByteRange(start, end, false)
}

// NamedDescendantForByteRange returns the smallest named node spanning
// [start, end], descending into injected layers.
func (s *Syntax) NamedDescendantForByteRange(start, end uint32) *sitter.Node {
	return s.descendantForByteRange(start, end, true)
}

func (s *Syntax) descendantForByteRange(start, end uint32, named bool) *sitter.Node {
	_, tree := s.layerAndTreeForByteRange(start, end)
	if tree == nil {
		return nil
	}
	node := tree.RootNode()
	if node.StartByte() > start || end > node.EndByte() {
		return nil
	}
	best := node
	for {
		descended := false
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.StartByte() > start {
				break
			}
			if child.StartByte() <= start && end <= child.EndByte() {
				node = child
				descended = true
				break
			}
		}
		if !descended {
			break
		}
		if !named || node.IsNamed() {
			best = node
		}
	}
	if named {
		return best
	}
	return node
}

// maxRangeEnd is the exclusive end of the root layer's range. Byte ranges
// are 32-bit because tree-sitter cannot address documents past 2 GiB.
const maxRangeEnd = ^uint32(0)
