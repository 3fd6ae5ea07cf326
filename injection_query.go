package understory

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// shebangRegex extracts the interpreter name from a shebang line, seeing
// through /usr/bin/env indirection and its flag arguments.
var shebangRegex = regexp.MustCompile(`#!\s*(?:\S*[/\\](?:env\s+(?:-\S+\s+)*)?)?([^\s.\d]+)`)

// includedChildren is the policy for a content node's children: excluded
// from the injected document (the default), fully included, or only named
// children excluded.
type includedChildren uint8

const (
	includeChildrenNone includedChildren = iota
	includeChildrenAll
	includeChildrenUnnamed
)

// injectionProperties are the per-pattern directives of an injection query.
type injectionProperties struct {
	language        string
	includeChildren includedChildren
	combined        bool
}

// InjectionsQuery is the compiled form of a language's injection query. It
// is immutable after construction and safe to share between goroutines.
type InjectionsQuery struct {
	query        *sitter.Query
	captureNames []string
	properties   map[uint32]injectionProperties

	contentCapture  uint32
	languageCapture uint32
	filenameCapture uint32
	shebangCapture  uint32
	hasContent      bool
	hasLanguage     bool
	hasFilename     bool
	hasShebang      bool
}

func newInjectionsQuery(grammar *sitter.Language, src string) (*InjectionsQuery, error) {
	if src == "" {
		return &InjectionsQuery{}, nil
	}
	query, err := sitter.NewQuery([]byte(normalizeDirectives(src)), grammar)
	if err != nil {
		return nil, err
	}
	iq := &InjectionsQuery{
		query:        query,
		captureNames: captureNames(query),
		properties:   make(map[uint32]injectionProperties),
	}
	for i, name := range iq.captureNames {
		switch name {
		case "injection.content":
			iq.contentCapture, iq.hasContent = uint32(i), true
		case "injection.language":
			iq.languageCapture, iq.hasLanguage = uint32(i), true
		case "injection.filename":
			iq.filenameCapture, iq.hasFilename = uint32(i), true
		case "injection.shebang":
			iq.shebangCapture, iq.hasShebang = uint32(i), true
		}
	}
	for pattern := uint32(0); pattern < query.PatternCount(); pattern++ {
		props := injectionProperties{}
		for _, pred := range patternPredicates(query, pattern) {
			if pred.name != "set!" || len(pred.args) == 0 || pred.args[0].isCapture {
				continue
			}
			switch pred.args[0].value {
			case "injection.language":
				if len(pred.args) > 1 {
					props.language = pred.args[1].value
				}
			case "injection.combined":
				props.combined = true
			case "injection.include-children":
				props.includeChildren = includeChildrenAll
			case "injection.include-unnamed-children":
				props.includeChildren = includeChildrenUnnamed
			}
		}
		if props != (injectionProperties{}) {
			iq.properties[pattern] = props
		}
	}
	return iq, nil
}

// matchProperties holds everything injection discovery needs from one query
// match beyond the content nodes themselves.
type matchProperties struct {
	language        Language
	config          *LanguageConfig
	includeChildren includedChildren
	combined        bool
}

// propertiesForMatch classifies a match: it finds the language marker
// (literal property, captured text, filename capture, or shebang line),
// resolves it through the loader, and reports the child-inclusion and
// combined flags of the pattern. The second return is false when the match
// names no resolvable language and should be dropped.
func (iq *InjectionsQuery) propertiesForMatch(match *sitter.QueryMatch, source []byte, loader Loader) (matchProperties, bool) {
	props := iq.properties[uint32(match.PatternIndex)]

	var marker InjectionMarker
	haveMarker := false
	for _, capture := range match.Captures {
		switch {
		case iq.hasLanguage && capture.Index == iq.languageCapture:
			marker = InjectionMarker{Kind: MarkerMatch, Value: capture.Node.Content(source)}
			haveMarker = true
		case iq.hasFilename && capture.Index == iq.filenameCapture:
			marker = InjectionMarker{Kind: MarkerFilename, Value: capture.Node.Content(source)}
			haveMarker = true
		case iq.hasShebang && capture.Index == iq.shebangCapture:
			if name, ok := shebangInterpreter(capture.Node.Content(source)); ok {
				marker = InjectionMarker{Kind: MarkerShebang, Value: name}
				haveMarker = true
			}
		}
	}
	if !haveMarker {
		if props.language == "" {
			return matchProperties{}, false
		}
		marker = InjectionMarker{Kind: MarkerName, Value: props.language}
	}

	lang, ok := loader.LanguageForMarker(marker)
	if !ok {
		return matchProperties{}, false
	}
	config := loader.GetConfig(lang)
	if config == nil {
		return matchProperties{}, false
	}
	return matchProperties{
		language:        lang,
		config:          config,
		includeChildren: props.includeChildren,
		combined:        props.combined,
	}, true
}

// shebangInterpreter extracts the interpreter name from the first one or
// two lines of text. Some languages allow blank space before the actual
// content, so the shebang may sit on the second line.
func shebangInterpreter(text string) (string, bool) {
	lines := text
	if i := strings.IndexByte(lines, '\n'); i >= 0 {
		if j := strings.IndexByte(lines[i+1:], '\n'); j >= 0 {
			lines = lines[:i+1+j]
		}
	}
	m := shebangRegex.FindStringSubmatch(lines)
	if m == nil {
		return "", false
	}
	return m[1], true
}
