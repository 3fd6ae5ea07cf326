package understory

import sitter "github.com/smacker/go-tree-sitter"

type cursorFrame struct {
	layer Layer
	node  *sitter.Node
}

// TreeCursor walks the document's nodes across layer boundaries: moving to
// the first child of a node that hosts an injection descends into the
// injected tree, and moving to the parent of an injected root ascends back
// to the hosting node.
type TreeCursor struct {
	syntax *Syntax
	frames []cursorFrame
	layer  Layer
	node   *sitter.Node
}

// Walk returns a cursor positioned at the root layer's root node.
func (s *Syntax) Walk() *TreeCursor {
	return &TreeCursor{
		syntax: s,
		layer:  s.root,
		node:   s.layers.get(s.root).tree.RootNode(),
	}
}

// Node returns the node the cursor is on.
func (c *TreeCursor) Node() *sitter.Node {
	return c.node
}

// Layer returns the layer owning the current node.
func (c *TreeCursor) Layer() Layer {
	return c.layer
}

// GoToParent moves to the parent node, ascending into the hosting layer
// when the cursor sits on an injected tree's root. It reports whether the
// cursor moved.
func (c *TreeCursor) GoToParent() bool {
	if parent := c.node.Parent(); parent != nil {
		c.node = parent
		return true
	}
	if n := len(c.frames); n > 0 {
		frame := c.frames[n-1]
		c.frames = c.frames[:n-1]
		c.layer = frame.layer
		c.node = frame.node
		return true
	}
	return false
}

// GoToFirstChild moves to the first child, entering an injected layer when
// the current node is exactly the matched node of an injection. It reports
// whether the cursor moved.
func (c *TreeCursor) GoToFirstChild() bool {
	data := c.syntax.layers.get(c.layer)
	if injection, ok := data.injectionAtByte(c.node.StartByte()); ok &&
		injection.MatchedNode.Start == c.node.StartByte() &&
		injection.MatchedNode.End == c.node.EndByte() {
		if child := c.syntax.layers.get(injection.Layer); child != nil && child.tree != nil {
			c.frames = append(c.frames, cursorFrame{layer: c.layer, node: c.node})
			c.layer = injection.Layer
			c.node = child.tree.RootNode()
			return true
		}
	}
	if c.node.ChildCount() == 0 {
		return false
	}
	c.node = c.node.Child(0)
	return true
}

// GoToNextSibling moves to the next sibling within the current layer. It
// reports whether the cursor moved.
func (c *TreeCursor) GoToNextSibling() bool {
	sibling := c.node.NextSibling()
	if sibling == nil {
		return false
	}
	c.node = sibling
	return true
}

// ResetToByteRange repositions the cursor on the smallest node spanning
// [start, end], in the most deeply nested layer covering it.
func (c *TreeCursor) ResetToByteRange(start, end uint32) {
	target := c.syntax.LayerForByteRange(start, end)

	// Rebuild the ancestor frames from the root down.
	var chain []Layer
	for layer := target; ; {
		data := c.syntax.layers.get(layer)
		if !data.hasParent {
			break
		}
		chain = append(chain, data.parent)
		layer = data.parent
	}
	c.frames = c.frames[:0]
	for i := len(chain) - 1; i >= 0; i-- {
		data := c.syntax.layers.get(chain[i])
		c.frames = append(c.frames, cursorFrame{
			layer: chain[i],
			node:  deepestNodeCovering(data.tree.RootNode(), start, end),
		})
	}

	c.layer = target
	data := c.syntax.layers.get(target)
	if data.tree == nil {
		// Unparsed layer: settle on the closest parsed ancestor.
		n := len(c.frames)
		frame := c.frames[n-1]
		c.frames = c.frames[:n-1]
		c.layer = frame.layer
		c.node = frame.node
		return
	}
	c.node = deepestNodeCovering(data.tree.RootNode(), start, end)
}

// deepestNodeCovering returns the smallest node under root spanning
// [start, end], or root itself.
func deepestNodeCovering(root *sitter.Node, start, end uint32) *sitter.Node {
	node := root
outer:
	for {
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.StartByte() > start {
				break
			}
			if child.StartByte() <= start && end <= child.EndByte() {
				node = child
				continue outer
			}
		}
		return node
	}
}
