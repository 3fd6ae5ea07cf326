package understory

import (
	"testing"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localsSample = `package main

func first(alpha string) string {
	return alpha
}

func second(beta string) string {
	return beta
}
`

func buildGoLocals(t *testing.T, source, localsSrc string) (*Locals, *LanguageConfig) {
	t.Helper()
	cfg, err := NewLanguageConfig(golang.GetLanguage(), goTestHighlights, "", localsSrc)
	require.NoError(t, err)
	cfg.Configure(ResolveFallback(lookupTestScope))

	syntax, err := NewSyntax(t.Context(), []byte(source), langGo, &testLoader{
		configs: map[Language]*LanguageConfig{langGo: cfg},
	})
	require.NoError(t, err)
	return buildLocals(cfg.Locals, syntax.Tree().RootNode(), []byte(source)), cfg
}

func TestLocalsDefinitionLookup(t *testing.T) {
	locals, cfg := buildGoLocals(t, localsSample, goTestLocals)

	firstBody := offsetOf(t, localsSample, "return alpha", 0)
	scope := locals.ScopeCursorAt(firstBody).Scope()
	require.NotEqual(t, rootScope, scope)

	def, ok := locals.LookupReference(scope, "alpha")
	require.True(t, ok)
	assert.Equal(t, "variable.parameter", testScopeName(cfg.Locals.definitionHighlight(def.Capture)))
	alphaDef := offsetOf(t, localsSample, "alpha", 0)
	assert.Equal(t, Range{alphaDef, alphaDef + 5}, def.Range)
}

func TestLocalsScopeIsolation(t *testing.T) {
	locals, _ := buildGoLocals(t, localsSample, goTestLocals)

	secondBody := offsetOf(t, localsSample, "return beta", 0)
	scope := locals.ScopeCursorAt(secondBody).Scope()
	require.NotEqual(t, rootScope, scope)

	_, ok := locals.LookupReference(scope, "alpha")
	assert.False(t, ok, "alpha must not leak into second's scope")
	_, ok = locals.LookupReference(scope, "beta")
	assert.True(t, ok)

	_, ok = locals.LookupReference(rootScope, "beta")
	assert.False(t, ok, "parameters are not visible at the root scope")
}

func TestScopeCursorAdvanceAcrossSiblings(t *testing.T) {
	locals, _ := buildGoLocals(t, localsSample, goTestLocals)

	firstBody := offsetOf(t, localsSample, "return alpha", 0)
	secondBody := offsetOf(t, localsSample, "return beta", 0)

	cursor := locals.ScopeCursorAt(0)
	assert.Equal(t, rootScope, cursor.Scope())

	inFirst := cursor.Advance(firstBody)
	require.NotEqual(t, rootScope, inFirst)

	inSecond := cursor.Advance(secondBody)
	require.NotEqual(t, rootScope, inSecond)
	assert.NotEqual(t, inFirst, inSecond, "sibling functions have distinct scopes")

	assert.Equal(t, rootScope, cursor.Advance(uint32(len(localsSample)-1)))
}

func TestScopeInheritsFalse(t *testing.T) {
	source := `package main

var top = 1

func inner() int {
	return top
}
`
	inheriting := `
(function_declaration) @local.scope
(var_spec name: (identifier) @local.definition.constant)
(identifier) @local.reference
`
	locals, _ := buildGoLocals(t, source, inheriting)
	body := offsetOf(t, source, "return top", 0)
	scope := locals.ScopeCursorAt(body).Scope()
	require.NotEqual(t, rootScope, scope)
	_, ok := locals.LookupReference(scope, "top")
	assert.True(t, ok, "inheriting scope sees outer definitions")

	noInherit := `
((function_declaration) @local.scope (#set! local.scope-inherits false))
(var_spec name: (identifier) @local.definition.constant)
(identifier) @local.reference
`
	locals, _ = buildGoLocals(t, source, noInherit)
	scope = locals.ScopeCursorAt(body).Scope()
	require.NotEqual(t, rootScope, scope)
	_, ok = locals.LookupReference(scope, "top")
	assert.False(t, ok, "non-inheriting scope must not see outer definitions")
}
