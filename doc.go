// Package understory maintains a forest of tree-sitter syntax trees over a
// single edited document and produces byte-ordered highlight and language
// region annotations from it.
//
// A document is not one syntax tree but a tree of layers. Each layer is an
// independent tree-sitter parse of part of the document in one grammar, and
// layers are linked by injections: a Markdown layer inside a Rust doc
// comment, a Rust layer inside a Markdown code fence, and so on. understory
// keeps that forest up to date across edits, reparsing only what changed,
// and exposes two state machines on top of it.
//
// # Layer tree
//
// [NewSyntax] parses a document with a root language and discovers injected
// layers by running each language's injection query. [Syntax.Update] applies
// a batch of edits: stored ranges are remapped through the edits in a single
// forward sweep, layers whose content changed are incrementally reparsed,
// injections are rediscovered and reconciled against the previous set so
// existing child layers are reused, and layers no longer referenced are
// pruned.
//
// Languages are supplied by a [Loader], which resolves a [Language] to its
// grammar and compiled queries and maps injection markers (literal names,
// matched text, filenames, shebang interpreters) to languages.
//
// # Query iteration
//
// [QueryIter] walks the layer tree and a per-language query in unison,
// producing one event stream in strictly non-decreasing byte order:
// EnterInjection, Match, and ExitInjection events. Content outside any
// injection, inside one, and straddling an injection gap are all visited in
// a single ordered pass.
//
// # Highlighting
//
// [Highlighter] consumes that stream specialized with each language's
// highlight query and maintains a properly nested stack of active
// highlights. Each [Highlighter.Advance] reports either Push (new highlights
// stack on the active ones) or Refresh (the active set was rebuilt).
// Highlight patterns can consult the locals query: references resolve
// through lexical scopes to definitions, and patterns marked
// `(#is-not? local)` are suppressed for in-scope names.
//
// Each Syntax instance is single-threaded; independent documents may be
// processed on separate goroutines. Compiled queries and configured
// highlight tables are immutable after [LanguageConfig.Configure] and safe
// to share.
package understory
