package understory

import (
	"testing"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goTextObjects = `
(function_declaration body: (block) @function.inside)
(function_declaration) @function.around
(parameter_declaration) @parameter.inside
`

func TestTextObjectCaptureNodes(t *testing.T) {
	source := "package main\n\nfunc add(a int, b int) int {\n\treturn a + b\n}\n"
	syntax, _ := parseGo(t, source, "")

	q, err := NewTextObjectQuery(golang.GetLanguage(), goTextObjects)
	require.NoError(t, err)

	root := syntax.Tree().RootNode()
	groups := q.CaptureNodes("function.inside", root, []byte(source))
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 1)
	assert.Equal(t, "block", groups[0][0].Type())

	params := q.CaptureNodes("parameter.inside", root, []byte(source))
	require.Len(t, params, 2)
	assert.Equal(t, "a int", params[0][0].Content([]byte(source)))
	assert.Equal(t, "b int", params[1][0].Content([]byte(source)))
}

func TestTextObjectCaptureNodesAnyFallsBack(t *testing.T) {
	source := "package main\n\nfunc main() {}\n"
	syntax, _ := parseGo(t, source, "")

	q, err := NewTextObjectQuery(golang.GetLanguage(), goTextObjects)
	require.NoError(t, err)
	root := syntax.Tree().RootNode()

	groups := q.CaptureNodesAny(root, []byte(source), "function.movement", "function.around")
	require.Len(t, groups, 1)
	assert.Equal(t, "function_declaration", groups[0][0].Type())

	assert.Nil(t, q.CaptureNodesAny(root, []byte(source), "class.inside"))
}

func TestTextObjectBadQuery(t *testing.T) {
	_, err := NewTextObjectQuery(golang.GetLanguage(), "(nonexistent_node) @x")
	assert.Error(t, err)
}
