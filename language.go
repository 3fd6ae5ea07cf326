package understory

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language identifies a language to the Loader. The engine treats the value
// as entirely opaque; loaders typically use a dense index into their own
// tables.
type Language uint32

// MarkerKind classifies how an injection site names its language.
type MarkerKind uint8

const (
	// MarkerName is an exact language name from a query property, e.g.
	// `(#set! injection.language "rust")`.
	MarkerName MarkerKind = iota
	// MarkerMatch is text captured from the document itself, e.g. the info
	// string of a fenced code block. Loaders may match it fuzzily.
	MarkerMatch
	// MarkerFilename is filename-like captured text; the loader resolves it
	// the way it would resolve a file on disk.
	MarkerFilename
	// MarkerShebang is an interpreter name extracted from a shebang line.
	MarkerShebang
)

// InjectionMarker names the language an injection site asks for.
type InjectionMarker struct {
	Kind  MarkerKind
	Value string
}

// Loader supplies language configurations to the engine. Implementations
// must be usable for the lifetime of every Syntax, QueryIter, and
// Highlighter they were handed to. GetConfig returns nil for languages the
// loader cannot provide; the affected layer then degrades to no highlights
// instead of failing the document.
type Loader interface {
	GetConfig(lang Language) *LanguageConfig
	LanguageForMarker(marker InjectionMarker) (Language, bool)
}

// LanguageConfig bundles everything the engine needs for one language: the
// grammar and the compiled highlight, injection, and locals queries. A
// config is immutable after Configure and may be shared across goroutines.
type LanguageConfig struct {
	Grammar    *sitter.Language
	Highlight  *HighlightQuery
	Injections *InjectionsQuery
	Locals     *LocalsQuery
}

// NewLanguageConfig compiles the three query sources against grammar. The
// injection and locals sources may be empty; the highlight query is compiled
// together with the locals source so that `(#is-not? local)` patterns and
// `@local.reference` captures resolve against the same pattern set.
func NewLanguageConfig(grammar *sitter.Language, highlights, injections, locals string) (*LanguageConfig, error) {
	if grammar == nil {
		return nil, ErrIncompatibleGrammar
	}
	hq, err := newHighlightQuery(grammar, highlights, locals)
	if err != nil {
		return nil, fmt.Errorf("compile highlight query: %w", err)
	}
	iq, err := newInjectionsQuery(grammar, injections)
	if err != nil {
		return nil, fmt.Errorf("compile injections query: %w", err)
	}
	lq, err := newLocalsQuery(grammar, locals)
	if err != nil {
		return nil, fmt.Errorf("compile locals query: %w", err)
	}
	return &LanguageConfig{
		Grammar:    grammar,
		Highlight:  hq,
		Injections: iq,
		Locals:     lq,
	}, nil
}

// Configure resolves capture names to highlight ids.
//
// Highlight queries name captures with dot-separated scopes like
// `punctuation.bracket` or `function.method.builtin`. The resolver should
// look up the full name first and, if the consumer's theme does not define
// it, retry with the last dot-separated segment removed until a highlight is
// found, returning HighlightNone when none is. [ResolveFallback] wraps a
// plain lookup with exactly that retry loop.
//
// Configure must be called before the config is used for highlighting and
// must not be called concurrently with highlighting.
func (c *LanguageConfig) Configure(resolve func(name string) Highlight) {
	c.Highlight.configure(resolve)
	c.Locals.configure(resolve)
}

// ResolveFallback adapts a single-shot theme lookup into the fallback
// resolution scheme Configure documents: `function.method.builtin` is tried,
// then `function.method`, then `function`.
func ResolveFallback(lookup func(name string) (Highlight, bool)) func(name string) Highlight {
	return func(name string) Highlight {
		for {
			if hl, ok := lookup(name); ok {
				return hl
			}
			dot := strings.LastIndexByte(name, '.')
			if dot < 0 {
				return HighlightNone
			}
			name = name[:dot]
		}
	}
}

// inheritsRegex matches `; inherits: lang1,lang2` query directives.
var inheritsRegex = regexp.MustCompile(`;+\s*inherits\s*:?\s*([a-z_,()-]+)\s*`)

// ReadQuery reads the query file filename for language via read and expands
// any `; inherits: a,b` directives by splicing in the same file of the named
// languages, recursively.
func ReadQuery(language, filename string, read func(language, filename string) string) string {
	query := read(language, filename)
	return inheritsRegex.ReplaceAllStringFunc(query, func(directive string) string {
		sub := inheritsRegex.FindStringSubmatch(directive)[1]
		var out strings.Builder
		for lang := range strings.SplitSeq(sub, ",") {
			out.WriteByte('\n')
			out.WriteString(ReadQuery(strings.TrimSpace(lang), filename, read))
			out.WriteByte('\n')
		}
		return out.String()
	})
}
