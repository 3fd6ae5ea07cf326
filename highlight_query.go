package understory

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// bareDirectiveRegex matches engine directives written without a value,
// like `(#set! injection.combined)` or `(#is-not? local)`.
var bareDirectiveRegex = regexp.MustCompile(`\(#(set!|is\?|is-not\?)\s+([A-Za-z_][\w.-]*)\s*\)`)

// normalizeDirectives pads bare directives to the two-argument shape the
// binding's compile-time predicate validation accepts. The padded value is
// never read: every directive consumer here keys on the property name and
// accepts either arity.
func normalizeDirectives(src string) string {
	return bareDirectiveRegex.ReplaceAllString(src, `(#$1 $2 "true")`)
}

// HighlightQuery is the compiled form of a language's highlight query,
// concatenated with its locals query so that both share one pattern set.
// It is immutable after configure and safe to share between goroutines.
type HighlightQuery struct {
	query        *sitter.Query
	captureNames []string

	// highlights[capture] is filled in by configure; HighlightNone for
	// captures that are not theme scopes (locals captures, predicates).
	highlights []Highlight

	// nonLocalPatterns holds patterns marked `(#is-not? local)`: they are
	// rejected when the captured text resolves to an in-scope definition.
	nonLocalPatterns map[uint32]bool

	localReferenceCapture uint32
	hasLocalReference     bool
}

func newHighlightQuery(grammar *sitter.Language, highlights, locals string) (*HighlightQuery, error) {
	src := normalizeDirectives(highlights + "\n" + locals)
	query, err := sitter.NewQuery([]byte(src), grammar)
	if err != nil {
		return nil, err
	}

	hq := &HighlightQuery{
		query:            query,
		captureNames:     captureNames(query),
		nonLocalPatterns: make(map[uint32]bool),
	}
	hq.highlights = make([]Highlight, len(hq.captureNames))
	for i := range hq.highlights {
		hq.highlights[i] = HighlightNone
	}
	for i, name := range hq.captureNames {
		if name == "local.reference" {
			hq.localReferenceCapture = uint32(i)
			hq.hasLocalReference = true
		}
	}
	for pattern := uint32(0); pattern < query.PatternCount(); pattern++ {
		for _, pred := range patternPredicates(query, pattern) {
			if pred.name == "is-not?" && len(pred.args) >= 1 && pred.args[0].value == "local" {
				hq.nonLocalPatterns[pattern] = true
			}
		}
	}
	return hq, nil
}

func (hq *HighlightQuery) configure(resolve func(name string) Highlight) {
	for i, name := range hq.captureNames {
		// Locals captures are bookkeeping, not theme scopes. References get
		// their highlight from the definition they resolve to.
		if strings.HasPrefix(name, "local.") {
			hq.highlights[i] = HighlightNone
			continue
		}
		hq.highlights[i] = resolve(name)
	}
}

// highlightForCapture returns the configured highlight for a capture id, or
// HighlightNone.
func (hq *HighlightQuery) highlightForCapture(capture uint32) Highlight {
	if int(capture) >= len(hq.highlights) {
		return HighlightNone
	}
	return hq.highlights[capture]
}

// captureNames collects a query's capture names indexed by capture id.
func captureNames(query *sitter.Query) []string {
	names := make([]string, query.CaptureCount())
	for i := range names {
		names[i] = query.CaptureNameForId(uint32(i))
	}
	return names
}

// queryPredicate is one decoded predicate or directive of a pattern, e.g.
// `(#set! injection.language "rust")` or `(#is-not? local)`.
type queryPredicate struct {
	name string
	args []predicateArg
}

type predicateArg struct {
	capture   uint32
	value     string
	isCapture bool
}

// patternPredicates decodes the raw predicate steps of a pattern. Standard
// text predicates (#eq?, #match?, …) are evaluated by the cursor's
// FilterPredicates; this decoded form serves the engine's own directives.
func patternPredicates(query *sitter.Query, pattern uint32) []queryPredicate {
	var preds []queryPredicate
	for _, steps := range query.PredicatesForPattern(pattern) {
		if len(steps) == 0 {
			continue
		}
		if steps[0].Type != sitter.QueryPredicateStepTypeString {
			continue
		}
		pred := queryPredicate{name: query.StringValueForId(steps[0].ValueId)}
		for _, step := range steps[1:] {
			switch step.Type {
			case sitter.QueryPredicateStepTypeCapture:
				pred.args = append(pred.args, predicateArg{capture: step.ValueId, isCapture: true})
			case sitter.QueryPredicateStepTypeString:
				pred.args = append(pred.args, predicateArg{value: query.StringValueForId(step.ValueId)})
			}
		}
		preds = append(preds, pred)
	}
	return preds
}
