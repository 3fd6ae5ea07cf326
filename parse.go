package understory

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Update reparses the document after it changed to source. Edits must be
// sorted ascending and non-overlapping, with StartByte and OldEndByte in
// pre-update coordinates; pass nil for a from-scratch parse. Layers whose
// content is untouched keep their trees; layers no longer referenced by any
// injection are destroyed.
//
// On error the Syntax is stale but internally consistent: call Update again
// with the full document (and no edits) to recover.
func (s *Syntax) Update(ctx context.Context, source []byte, edits []Edit) error {
	if uint64(len(source)) >= maxDocumentSize {
		return fmt.Errorf("update %d byte document: %w", len(source), ErrExceededMaximumSize)
	}
	lines := newLineIndex(source)

	if len(edits) > 0 {
		s.layers.each(func(_ Layer, layer *layerData) {
			if layer.hasParent {
				layer.applyEdits(edits)
			}
		})
		s.layers.each(func(_ Layer, layer *layerData) {
			s.mapInjections(layer, edits)
		})
	}

	parser := s.parsers.Get()
	defer s.parsers.Put(parser)

	root := s.layers.get(s.root)
	root.flags.modified = true

	// Depth-first over layers reachable from the root. Only reachable
	// layers are touched; everything else is pruned at the end.
	stack := []Layer{s.root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		layer := s.layers.get(id)
		layer.flags.touched = true

		if !layer.coversAnything() {
			// Dormant: an injection still references the layer but every
			// mapped range collapsed. Keep it for potential reuse but do
			// not parse or descend.
			continue
		}

		if layer.tree != nil && (layer.flags.modified || layer.flags.moved) {
			for i := len(edits) - 1; i >= 0; i-- {
				layer.tree.Edit(edits[i].input())
			}
		}

		reparsed := false
		if layer.tree == nil || layer.flags.modified {
			if err := s.parseLayer(ctx, parser, layer, source, lines); err != nil {
				return err
			}
			reparsed = true
		}
		if layer.tree == nil {
			// Grammar unavailable; the layer degrades to a hole in the
			// parent's coverage.
			continue
		}

		stack = append(stack, s.runInjectionQuery(id, layer, source)...)

		if reparsed || layer.locals == nil {
			layer.locals = buildLocals(layer.config.Locals, layer.tree.RootNode(), source)
		}
	}

	s.layers.each(func(id Layer, layer *layerData) {
		if !layer.flags.touched {
			s.layers.remove(id)
			return
		}
		layer.flags = layerFlags{}
	})
	return nil
}

// Edit applies a single edit; a convenience wrapper over Update.
func (s *Syntax) Edit(ctx context.Context, source []byte, edit Edit) error {
	return s.Update(ctx, source, []Edit{edit})
}

func (d *layerData) coversAnything() bool {
	for _, r := range d.ranges {
		if !r.empty() {
			return true
		}
	}
	return false
}

func (s *Syntax) parseLayer(ctx context.Context, parser *sitter.Parser, layer *layerData, source []byte, lines lineIndex) error {
	if layer.config == nil || layer.config.Grammar == nil {
		return nil
	}
	if err := validateRanges(layer.ranges); err != nil {
		return fmt.Errorf("parse %d ranges: %w", len(layer.ranges), err)
	}

	parser.SetLanguage(layer.config.Grammar)
	if len(layer.ranges) == 1 && layer.ranges[0].Start == 0 && layer.ranges[0].End == maxRangeEnd {
		// Whole-document layer. The binding requires at least one range, so
		// an explicit full range stands in for "unrestricted"; it also
		// clears any restriction left by a previous pooled use.
		parser.SetIncludedRanges([]sitter.Range{{
			EndPoint: sitter.Point{Row: maxRangeEnd, Column: maxRangeEnd},
			EndByte:  maxRangeEnd,
		}})
	} else {
		included := make([]sitter.Range, 0, len(layer.ranges))
		for _, r := range layer.ranges {
			if r.empty() {
				continue
			}
			included = append(included, lines.sitterRange(r))
		}
		parser.SetIncludedRanges(included)
	}

	parseCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tree, err := parser.ParseCtx(parseCtx, layer.tree, source)
	if err != nil {
		if parseCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("parse exceeded %v: %w", s.timeout, ErrTimeout)
		}
		return fmt.Errorf("parse layer: %w", err)
	}
	if layer.tree != nil {
		layer.tree.Close()
	}
	layer.tree = tree
	return nil
}
