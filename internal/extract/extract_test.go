package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractSource(t *testing.T, source string) Result {
	t.Helper()
	res, err := New().Extract([]byte(source), "cell.hcl")
	require.NoError(t, err)
	return res
}

func TestExtract_DefsAndRefs_SourceOrder(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		total = price * quantity
		label = "subtotal"
		final = total + tax
	`)

	assert.Equal(t, []string{"total", "label", "final"}, res.Defs)
	assert.Equal(t, []string{"price", "quantity", "tax"}, res.Refs)
	assert.False(t, res.DynamicDefs)
	assert.False(t, res.Setup)
}

func TestExtract_LocalReadIsNotARef(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		base    = 10
		doubled = base * 2
	`)

	assert.Equal(t, []string{"base", "doubled"}, res.Defs)
	assert.Empty(t, res.Refs)
}

// A name read before the attribute that binds it stays a ref: the value must
// come from another cell, and claiming ownership here would hide that edge.
func TestExtract_ReadBeforeWrite_StaysRef(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		early = counter + 1
		counter = 0
	`)

	assert.Equal(t, []string{"early"}, res.Defs)
	assert.Equal(t, []string{"counter"}, res.Refs)
}

func TestExtract_SelfReference_IsRefNotDef(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `x = x + 1`)

	assert.Empty(t, res.Defs)
	assert.Equal(t, []string{"x"}, res.Refs)
}

func TestExtract_ForExpressionLocals_Excluded(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		squares = [for n in numbers : n * n]
		pairs   = {for k, v in table : k => v}
	`)

	assert.Equal(t, []string{"squares", "pairs"}, res.Defs)
	assert.Equal(t, []string{"numbers", "table"}, res.Refs)
}

func TestExtract_BindWithStaticName_WidensDefs(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		result = bind("answer", input * 2)
	`)

	assert.Equal(t, []string{"answer", "result"}, res.Defs)
	assert.Equal(t, []string{"input"}, res.Refs)
	assert.False(t, res.DynamicDefs)
}

func TestExtract_BindWithDynamicName_FlagsDynamicDefs(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		result = bind(prefix, 42)
	`)

	assert.Equal(t, []string{"result"}, res.Defs)
	assert.Equal(t, []string{"prefix"}, res.Refs)
	assert.True(t, res.DynamicDefs)
}

func TestExtract_NestedBindCall_IsFound(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		wrapped = upper(bind("inner", 1))
	`)

	assert.Contains(t, res.Defs, "inner")
	assert.Contains(t, res.Defs, "wrapped")
}

func TestExtract_SetupBlock(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		setup {
			greeting = "hello"
			shout    = upper(greeting)
		}
	`)

	assert.True(t, res.Setup)
	assert.Equal(t, []string{"greeting", "shout"}, res.Defs)
	assert.Empty(t, res.Refs)
}

func TestExtract_SetupBlockAndTopLevelAttributes_Merge(t *testing.T) {
	t.Parallel()

	res := extractSource(t, `
		setup {
			base = 1
		}
		derived = base + extra
	`)

	assert.True(t, res.Setup)
	assert.Equal(t, []string{"base", "derived"}, res.Defs)
	assert.Equal(t, []string{"extra"}, res.Refs)
}

func TestExtract_UnsupportedBlock_Fails(t *testing.T) {
	t.Parallel()

	_, err := New().Extract([]byte(`
		resource "x" {
			a = 1
		}
	`), "cell.hcl")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "cell.hcl", parseErr.Filename)
}

func TestExtract_InvalidSyntax_ReturnsParseError(t *testing.T) {
	t.Parallel()

	_, err := New().Extract([]byte(`x = = 1`), "broken.hcl")

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Error(), "broken.hcl")
}

func TestExtract_EmptySource(t *testing.T) {
	t.Parallel()

	res := extractSource(t, ``)

	assert.Empty(t, res.Defs)
	assert.Empty(t, res.Refs)
	require.NotNil(t, res.Body)
}

func TestExtract_DuplicateAttribute_IsParseError(t *testing.T) {
	t.Parallel()

	// hclsyntax rejects two bindings of the same attribute in one body.
	_, err := New().Extract([]byte("x = 1\nx = 2\n"), "cell.hcl")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
