package understory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCursorWalksIntoInjections(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)
	cursor := syntax.Walk()

	root := syntax.Root()
	require.Equal(t, root, cursor.Layer())
	require.Equal(t, "source_file", cursor.Node().Type())

	// Depth-first walk over the full tree, descending through injected
	// layers when a node's span is injected.
	layers := map[Layer]bool{cursor.Layer(): true}
	visited := 0
	for {
		if cursor.GoToFirstChild() {
			layers[cursor.Layer()] = true
			visited++
			continue
		}
		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				goto done
			}
		}
		layers[cursor.Layer()] = true
		visited++
	}
done:
	assert.Greater(t, visited, 10)
	assert.Equal(t, root, cursor.Layer(), "walk unwinds back to the root layer")
	assert.Len(t, layers, 3, "both comment layers are entered")
}

func TestTreeCursorParentCrossesLayerBoundary(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)

	s1, e1 := commentSpan(t, injectionSample, "// first note")
	cursor := syntax.Walk()
	cursor.ResetToByteRange(s1+3, e1)

	require.NotEqual(t, syntax.Root(), cursor.Layer())

	for cursor.GoToParent() {
	}
	assert.Equal(t, syntax.Root(), cursor.Layer())
	assert.Equal(t, "source_file", cursor.Node().Type())
}

func TestTreeCursorResetToByteRange(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)

	cursor := syntax.Walk()
	at := offsetOf(t, injectionSample, "func a", 0)
	cursor.ResetToByteRange(at, at+4)
	assert.Equal(t, syntax.Root(), cursor.Layer())
	node := cursor.Node()
	assert.LessOrEqual(t, node.StartByte(), at)
	assert.GreaterOrEqual(t, node.EndByte(), at+4)

	s2, e2 := commentSpan(t, injectionSample, "// second note")
	cursor.ResetToByteRange(s2+3, e2)
	assert.Equal(t, syntax.LayerForByteRange(s2, e2), cursor.Layer())
}
