package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/registry"
)

func highlightFile(ctx context.Context, w io.Writer, reg *registry.Registry, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lang understory.Language
	var ok bool
	if flagLang != "" {
		lang, ok = reg.LanguageByName(flagLang)
		if !ok {
			return fmt.Errorf("unknown language %q", flagLang)
		}
	} else if lang, ok = reg.LanguageForFile(path); !ok {
		return fmt.Errorf("%s: cannot detect language (use --language)", path)
	}
	if err := reg.Preload(lang); err != nil {
		return err
	}

	syntax, err := understory.NewSyntax(ctx, source, lang, reg, understory.WithTimeout(flagTimeout))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	spans := collectSpans(syntax, source, reg)

	switch flagFormat {
	case "spans":
		writeSpans(w, spans)
		return nil
	default:
		return writeANSI(w, source, spans)
	}
}

// span is a run of bytes with one resolved scope ("" for plain text).
type span struct {
	start uint32
	end   uint32
	scope string
}

// collectSpans flattens the highlighter's stack stream into contiguous
// spans, taking the innermost active scope for each run.
func collectSpans(syntax *understory.Syntax, source []byte, reg *registry.Registry) []span {
	h := understory.NewHighlighter(syntax, source, 0, uint32(len(source)))
	defer h.Close()

	var spans []span
	last := uint32(0)
	scope := ""
	size := uint32(len(source))
	for {
		offset := h.NextEventOffset()
		if offset > size {
			offset = size
		}
		if offset > last {
			spans = append(spans, span{start: last, end: offset, scope: scope})
			last = offset
		}
		if h.NextEventOffset() == math.MaxUint32 {
			break
		}
		h.Advance()
		scope = ""
		if active := h.ActiveHighlights(); len(active) > 0 {
			scope = reg.ScopeName(active[len(active)-1])
		}
	}
	if last < size {
		spans = append(spans, span{start: last, end: size, scope: scope})
	}
	return spans
}

func writeSpans(w io.Writer, spans []span) {
	for _, s := range spans {
		if s.scope == "" {
			continue
		}
		fmt.Fprintf(w, "%d..%d\t%s\n", s.start, s.end, s.scope)
	}
}

func writeANSI(w io.Writer, source []byte, spans []span) error {
	style := styles.Get(flagStyle)
	tokens := make([]chroma.Token, 0, len(spans))
	for _, s := range spans {
		tokens = append(tokens, chroma.Token{
			Type:  tokenType(s.scope),
			Value: string(source[s.start:s.end]),
		})
	}
	return formatters.TTY256.Format(w, style, chroma.Literator(tokens...))
}

// tokenType maps a capture scope to the closest chroma token class, falling
// back through dot-separated prefixes the same way highlight resolution
// does.
func tokenType(scope string) chroma.TokenType {
	for scope != "" {
		if t, ok := scopeTokens[scope]; ok {
			return t
		}
		i := strings.LastIndexByte(scope, '.')
		if i < 0 {
			break
		}
		scope = scope[:i]
	}
	return chroma.Text
}

var scopeTokens = map[string]chroma.TokenType{
	"attribute":                 chroma.NameAttribute,
	"comment":                   chroma.Comment,
	"constant":                  chroma.NameConstant,
	"constant.builtin":          chroma.KeywordConstant,
	"constant.character.escape": chroma.LiteralStringEscape,
	"constant.numeric":          chroma.LiteralNumber,
	"function":                  chroma.NameFunction,
	"function.macro":            chroma.NameFunctionMagic,
	"function.method":           chroma.NameFunction,
	"keyword":                   chroma.Keyword,
	"label":                     chroma.NameLabel,
	"namespace":                 chroma.NameNamespace,
	"punctuation":               chroma.Punctuation,
	"string":                    chroma.LiteralString,
	"string.regexp":             chroma.LiteralStringRegex,
	"tag":                       chroma.NameTag,
	"type":                      chroma.NameClass,
	"type.builtin":              chroma.KeywordType,
	"variable":                  chroma.NameVariable,
	"variable.other.member":     chroma.NameProperty,
}
