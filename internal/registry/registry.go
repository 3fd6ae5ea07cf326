package registry

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/toml"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/jward/understory"
)

//go:embed queries
var defaultQueries embed.FS

// languageSpec is one built-in language: its canonical name, the markers
// that resolve to it, and the compiled-in grammar.
type languageSpec struct {
	name       string
	extensions []string
	aliases    []string
	shebangs   []string
	filenames  []string
	grammar    func() *sitter.Language
}

var builtins = []languageSpec{
	{name: "go", extensions: []string{".go"}, aliases: []string{"golang"}, grammar: golang.GetLanguage},
	{name: "javascript", extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, aliases: []string{"js", "jsx"}, shebangs: []string{"node"}, grammar: javascript.GetLanguage},
	{name: "typescript", extensions: []string{".ts", ".mts", ".cts"}, aliases: []string{"ts"}, grammar: ts.GetLanguage},
	{name: "tsx", extensions: []string{".tsx"}, grammar: tsx.GetLanguage},
	{name: "python", extensions: []string{".py", ".pyi"}, aliases: []string{"py"}, shebangs: []string{"python", "python3"}, grammar: python.GetLanguage},
	{name: "rust", extensions: []string{".rs"}, aliases: []string{"rs"}, grammar: rust.GetLanguage},
	{name: "c", extensions: []string{".c", ".h"}, grammar: c.GetLanguage},
	{name: "cpp", extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"}, aliases: []string{"c++"}, grammar: cpp.GetLanguage},
	{name: "java", extensions: []string{".java"}, grammar: java.GetLanguage},
	{name: "php", extensions: []string{".php"}, shebangs: []string{"php"}, grammar: php.GetLanguage},
	{name: "ruby", extensions: []string{".rb"}, aliases: []string{"rb"}, shebangs: []string{"ruby"}, filenames: []string{"Rakefile", "Gemfile"}, grammar: ruby.GetLanguage},
	{name: "bash", extensions: []string{".sh", ".bash"}, aliases: []string{"sh", "shell", "zsh"}, shebangs: []string{"sh", "bash", "zsh", "dash"}, filenames: []string{".bashrc", ".bash_profile"}, grammar: bash.GetLanguage},
	{name: "toml", extensions: []string{".toml"}, filenames: []string{"Cargo.lock"}, grammar: toml.GetLanguage},
	{name: "yaml", extensions: []string{".yaml", ".yml"}, aliases: []string{"yml"}, grammar: yaml.GetLanguage},
}

// Registry resolves languages, loads their query files, and hands compiled
// configurations to the engine. It implements understory.Loader.
//
// Query files are looked up per language as <dir>/<name>/highlights.scm,
// injections.scm and locals.scm, first in the configured queries directory,
// then in the embedded defaults. `; inherits: lang` directives are expanded
// through the same lookup.
type Registry struct {
	specs      []languageSpec
	queriesDir string

	byName     map[string]understory.Language
	byMarker   map[string]understory.Language
	byExt      map[string]understory.Language
	byFilename map[string]understory.Language

	mu         sync.Mutex
	configs    []*understory.LanguageConfig
	loadErrs   []error
	loaded     []bool
	scopeIDs   map[string]understory.Highlight
	scopeNames []string
}

// New builds a registry from the built-in language table, adjusted by cfg.
func New(cfg Config) (*Registry, error) {
	specs := append([]languageSpec(nil), builtins...)
	for _, def := range cfg.Languages {
		found := false
		for i := range specs {
			if specs[i].name == def.Name {
				specs[i].extensions = append(specs[i].extensions, def.Extensions...)
				specs[i].aliases = append(specs[i].aliases, def.Aliases...)
				specs[i].shebangs = append(specs[i].shebangs, def.Shebangs...)
				specs[i].filenames = append(specs[i].filenames, def.Filenames...)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("configure language %q: no built-in grammar", def.Name)
		}
	}

	r := &Registry{
		specs:      specs,
		queriesDir: cfg.QueriesDir,
		byName:     make(map[string]understory.Language),
		byMarker:   make(map[string]understory.Language),
		byExt:      make(map[string]understory.Language),
		byFilename: make(map[string]understory.Language),
		configs:    make([]*understory.LanguageConfig, len(specs)),
		loadErrs:   make([]error, len(specs)),
		loaded:     make([]bool, len(specs)),
		scopeIDs:   make(map[string]understory.Highlight),
	}
	for i, spec := range specs {
		lang := understory.Language(i)
		r.byName[spec.name] = lang
		r.byMarker[spec.name] = lang
		for _, alias := range spec.aliases {
			r.byMarker[alias] = lang
		}
		for _, shebang := range spec.shebangs {
			r.byMarker[shebang] = lang
		}
		for _, ext := range spec.extensions {
			r.byExt[ext] = lang
		}
		for _, name := range spec.filenames {
			r.byFilename[name] = lang
		}
	}
	return r, nil
}

// Names returns the canonical names of all registered languages, in
// Language id order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, spec := range r.specs {
		names[i] = spec.name
	}
	return names
}

// Extensions returns the file extensions registered for a language.
func (r *Registry) Extensions(lang understory.Language) []string {
	if int(lang) >= len(r.specs) {
		return nil
	}
	return r.specs[lang].extensions
}

// LanguageByName resolves a canonical name or alias.
func (r *Registry) LanguageByName(name string) (understory.Language, bool) {
	lang, ok := r.byMarker[strings.ToLower(name)]
	return lang, ok
}

// LanguageForFile resolves a path by exact filename, then extension.
func (r *Registry) LanguageForFile(path string) (understory.Language, bool) {
	base := filepath.Base(path)
	if lang, ok := r.byFilename[base]; ok {
		return lang, true
	}
	lang, ok := r.byExt[strings.ToLower(filepath.Ext(base))]
	return lang, ok
}

// LanguageForMarker implements understory.Loader.
func (r *Registry) LanguageForMarker(marker understory.InjectionMarker) (understory.Language, bool) {
	switch marker.Kind {
	case understory.MarkerFilename:
		return r.LanguageForFile(marker.Value)
	default:
		lang, ok := r.byMarker[strings.ToLower(strings.TrimSpace(marker.Value))]
		return lang, ok
	}
}

// GetConfig implements understory.Loader. Configurations are compiled on
// first use; a language whose queries fail to compile resolves to nil from
// then on (Preload surfaces the error).
func (r *Registry) GetConfig(lang understory.Language) *understory.LanguageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(lang) >= len(r.specs) {
		return nil
	}
	if !r.loaded[lang] {
		r.configs[lang], r.loadErrs[lang] = r.compile(lang)
		r.loaded[lang] = true
	}
	return r.configs[lang]
}

// Preload compiles a language's configuration eagerly and reports what
// GetConfig would swallow.
func (r *Registry) Preload(lang understory.Language) error {
	r.GetConfig(lang)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErrs[lang]
}

func (r *Registry) compile(lang understory.Language) (*understory.LanguageConfig, error) {
	spec := r.specs[lang]
	read := func(language, filename string) string {
		return r.readQueryFile(language, filename)
	}
	highlights := understory.ReadQuery(spec.name, "highlights.scm", read)
	injections := understory.ReadQuery(spec.name, "injections.scm", read)
	locals := understory.ReadQuery(spec.name, "locals.scm", read)

	config, err := understory.NewLanguageConfig(spec.grammar(), highlights, injections, locals)
	if err != nil {
		return nil, fmt.Errorf("compile %s queries: %w", spec.name, err)
	}
	config.Configure(r.internScope)
	return config, nil
}

// HasHighlights reports whether a highlights query exists for the language,
// either embedded or in the override directory.
func (r *Registry) HasHighlights(lang understory.Language) bool {
	if int(lang) >= len(r.specs) {
		return false
	}
	return r.readQueryFile(r.specs[lang].name, "highlights.scm") != ""
}

func (r *Registry) readQueryFile(language, filename string) string {
	if r.queriesDir != "" {
		if data, err := os.ReadFile(filepath.Join(r.queriesDir, language, filename)); err == nil {
			return string(data)
		}
	}
	if data, err := defaultQueries.ReadFile("queries/" + language + "/" + filename); err == nil {
		return string(data)
	}
	return ""
}

// internScope assigns a stable Highlight id to each capture name the
// loaded queries use. Ids are shared across languages, so a @keyword in Go
// and in Rust map to the same Highlight.
func (r *Registry) internScope(name string) understory.Highlight {
	// Called from compile, which already holds r.mu.
	if id, ok := r.scopeIDs[name]; ok {
		return id
	}
	id := understory.Highlight(len(r.scopeNames))
	r.scopeIDs[name] = id
	r.scopeNames = append(r.scopeNames, name)
	return id
}

// ScopeName returns the capture name behind a Highlight id.
func (r *Registry) ScopeName(h understory.Highlight) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == understory.HighlightNone || int(h) >= len(r.scopeNames) {
		return ""
	}
	return r.scopeNames[h]
}
