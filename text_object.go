package understory

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// TextObjectQuery runs textobject queries: captures like function.inside
// or parameter.around that editors use for structural selection.
type TextObjectQuery struct {
	query        *sitter.Query
	captureNames []string
}

// NewTextObjectQuery compiles a textobjects query for a grammar.
func NewTextObjectQuery(grammar *sitter.Language, src string) (*TextObjectQuery, error) {
	query, err := sitter.NewQuery([]byte(normalizeDirectives(src)), grammar)
	if err != nil {
		return nil, fmt.Errorf("compile textobjects query: %w", err)
	}
	return &TextObjectQuery{
		query:        query,
		captureNames: captureNames(query),
	}, nil
}

// CaptureNodes collects the nodes captured under name below node, one
// group per match. A quantified capture yields all its nodes in one group,
// so a multi-line parameter list selects as a unit.
func (q *TextObjectQuery) CaptureNodes(name string, node *sitter.Node, source []byte) [][]*sitter.Node {
	return q.CaptureNodesAny(node, source, name)
}

// CaptureNodesAny is CaptureNodes over several capture names, using the
// first name the query actually defines. Queries commonly define only one
// of function.inside / function.around.
func (q *TextObjectQuery) CaptureNodesAny(node *sitter.Node, source []byte, names ...string) [][]*sitter.Node {
	capture, ok := q.captureIndex(names)
	if !ok {
		return nil
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q.query, node)

	var groups [][]*sitter.Node
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, source)
		var group []*sitter.Node
		for _, c := range match.Captures {
			if c.Index == capture {
				group = append(group, c.Node)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func (q *TextObjectQuery) captureIndex(names []string) (uint32, bool) {
	for _, name := range names {
		for i, have := range q.captureNames {
			if have == name {
				return uint32(i), true
			}
		}
	}
	return 0, false
}
