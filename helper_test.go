package understory

import (
	"context"
	"math"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/stretchr/testify/require"
)

const (
	langGo Language = iota
	langJS
	langPython
)

// testScopeNames is the fixture theme: Highlight i is testScopeNames[i].
var testScopeNames = []string{
	"comment",
	"constant",
	"constant.numeric",
	"function",
	"keyword",
	"string",
	"variable",
	"variable.parameter",
}

func lookupTestScope(name string) (Highlight, bool) {
	for i, scope := range testScopeNames {
		if scope == name {
			return Highlight(i), true
		}
	}
	return 0, false
}

func testScopeName(h Highlight) string {
	if h == HighlightNone || int(h) >= len(testScopeNames) {
		return ""
	}
	return testScopeNames[h]
}

const goTestHighlights = `
((identifier) @variable (#is-not? local))
["func" "return" "var" "package" "import"] @keyword
(interpreted_string_literal) @string
(int_literal) @constant.numeric
(comment) @comment
(function_declaration name: (identifier) @function)
`

const goTestLocals = `
(function_declaration) @local.scope
(parameter_declaration (identifier) @local.definition.variable.parameter)
(short_var_declaration
  left: (expression_list (identifier) @local.definition.constant))
(identifier) @local.reference
`

const jsTestHighlights = `
(comment) @comment
(string) @string
(number) @constant.numeric
["function" "const" "return" "let" "var"] @keyword
(function_declaration name: (identifier) @function)
`

const pyTestHighlights = `
(comment) @comment
(string) @string
(integer) @constant.numeric
["def" "return" "import"] @keyword
(function_definition name: (identifier) @function)
`

// goCommentInjections parses every Go comment as javascript; // opens a
// line comment in both, so the injected layer always parses cleanly.
const goCommentInjections = `
((comment) @injection.content (#set! injection.language "javascript"))
`

const goCombinedCommentInjections = `
((comment) @injection.content
  (#set! injection.language "javascript")
  (#set! injection.combined))
`

type testLoader struct {
	configs map[Language]*LanguageConfig
	markers map[string]Language
}

func (l *testLoader) GetConfig(lang Language) *LanguageConfig {
	return l.configs[lang]
}

func (l *testLoader) LanguageForMarker(marker InjectionMarker) (Language, bool) {
	lang, ok := l.markers[strings.ToLower(strings.TrimSpace(marker.Value))]
	return lang, ok
}

// newTestLoader builds configs for Go, JavaScript, and Python with the
// fixture queries above. goInjections selects the Go injection query, ""
// for none.
func newTestLoader(t *testing.T, goInjections string) *testLoader {
	t.Helper()
	resolve := ResolveFallback(lookupTestScope)

	goCfg, err := NewLanguageConfig(golang.GetLanguage(), goTestHighlights, goInjections, goTestLocals)
	require.NoError(t, err)
	goCfg.Configure(resolve)

	jsCfg, err := NewLanguageConfig(javascript.GetLanguage(), jsTestHighlights, "", "")
	require.NoError(t, err)
	jsCfg.Configure(resolve)

	pyCfg, err := NewLanguageConfig(python.GetLanguage(), pyTestHighlights, "", "")
	require.NoError(t, err)
	pyCfg.Configure(resolve)

	return &testLoader{
		configs: map[Language]*LanguageConfig{
			langGo:     goCfg,
			langJS:     jsCfg,
			langPython: pyCfg,
		},
		markers: map[string]Language{
			"go":         langGo,
			"javascript": langJS,
			"js":         langJS,
			"node":       langJS,
			"python":     langPython,
			"python3":    langPython,
		},
	}
}

func parseGo(t *testing.T, source string, goInjections string) (*Syntax, *testLoader) {
	t.Helper()
	loader := newTestLoader(t, goInjections)
	syntax, err := NewSyntax(context.Background(), []byte(source), langGo, loader)
	require.NoError(t, err)
	return syntax, loader
}

// highlightSpan is one run of bytes with the full highlight stack active
// over it, outermost first.
type highlightSpan struct {
	start  uint32
	end    uint32
	scopes []string
}

func collectHighlightSpans(t *testing.T, syntax *Syntax, source string) []highlightSpan {
	t.Helper()
	h := NewHighlighter(syntax, []byte(source), 0, uint32(len(source)))
	defer h.Close()

	var spans []highlightSpan
	last := uint32(0)
	var current []string
	for {
		offset := h.NextEventOffset()
		if offset > last && len(current) > 0 {
			end := offset
			if end > uint32(len(source)) {
				end = uint32(len(source))
			}
			spans = append(spans, highlightSpan{start: last, end: end, scopes: current})
		}
		if offset == math.MaxUint32 {
			break
		}
		last = offset
		h.Advance()
		active := h.ActiveHighlights()
		current = make([]string, 0, len(active))
		for _, hl := range active {
			current = append(current, testScopeName(hl))
		}
	}
	return spans
}

// scopesAt returns the stack over the given byte offset, nil when nothing
// is highlighted there.
func scopesAt(spans []highlightSpan, offset uint32) []string {
	for _, s := range spans {
		if s.start <= offset && offset < s.end {
			return s.scopes
		}
	}
	return nil
}

// innermostAt returns the innermost scope at offset, "" when none.
func innermostAt(spans []highlightSpan, offset uint32) string {
	scopes := scopesAt(spans, offset)
	if len(scopes) == 0 {
		return ""
	}
	return scopes[len(scopes)-1]
}

// offsetOf locates the first occurrence of needle at or after from.
func offsetOf(t *testing.T, source, needle string, from uint32) uint32 {
	t.Helper()
	idx := strings.Index(source[from:], needle)
	require.GreaterOrEqual(t, idx, 0, "substring %q not found", needle)
	return from + uint32(idx)
}

func testPoint(src []byte, offset uint32) sitter.Point {
	return newLineIndex(src).point(offset)
}

// makeEdit replaces [start, oldEnd) of source with replacement, returning
// the new source and the matching Edit.
func makeEdit(source string, start, oldEnd uint32, replacement string) (string, Edit) {
	updated := source[:start] + replacement + source[oldEnd:]
	newEnd := start + uint32(len(replacement))
	return updated, Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  newEnd,
		StartPoint:  testPoint([]byte(source), start),
		OldEndPoint: testPoint([]byte(source), oldEnd),
		NewEndPoint: testPoint([]byte(updated), newEnd),
	}
}

func highlightLoader(_ Language, config *LanguageConfig) *sitter.Query {
	if config == nil || config.Highlight == nil {
		return nil
	}
	return config.Highlight.query
}

// collectEvents drains a QueryIter running each language's highlight query.
func collectEvents(t *testing.T, syntax *Syntax, source string) []QueryEvent {
	t.Helper()
	qi := NewQueryIter(syntax, []byte(source), highlightLoader, 0, uint32(len(source)))
	defer qi.Close()

	var events []QueryEvent
	for {
		event, ok := qi.Next()
		if !ok {
			return events
		}
		events = append(events, event)
		require.Less(t, len(events), 100000, "event stream does not terminate")
	}
}

func eventOffset(event QueryEvent) uint32 {
	switch event.Kind {
	case EventMatch:
		return event.Match.Node.StartByte()
	case EventEnterInjection:
		return event.Injection.Range.Start
	default:
		return event.Injection.Range.End
	}
}
