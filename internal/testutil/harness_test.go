package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/vk/cellgridgo/internal/cell"
)

func TestHarness_NotebookRunsEndToEnd(t *testing.T) {
	t.Parallel()

	result := RunNotebookTest(t, map[string]string{
		"main.hcl": `
cell "inputs" {
  price    = 19
  quantity = 3
}

cell "totals" {
  total = price * quantity
}
`,
	})

	require.NoError(t, result.Err)
	require.NotNil(t, result.App)

	values, _ := result.App.Kernel().Snapshot()
	assert.True(t, values["total"].RawEquals(cty.NumberIntVal(57)))

	// The rendered plan and the namespace summary both land on the output.
	assert.Contains(t, result.Output, "runnable:")
	assert.Contains(t, result.Output, "total = 57")
}

func TestHarness_CellsSpreadAcrossFiles(t *testing.T) {
	t.Parallel()

	result := RunNotebookTest(t, map[string]string{
		"base/10_inputs.hcl": "cell \"inputs\" {\n  x = 2\n}\n",
		"base/20_calc.hcl":   "cell \"calc\" {\n  y = x * x\n}\n",
	})

	require.NoError(t, result.Err)
	values, _ := result.App.Kernel().Snapshot()
	assert.True(t, values["y"].RawEquals(cty.NumberIntVal(4)))
}

func TestHarness_FailingCellFailsTheRun(t *testing.T) {
	t.Parallel()

	result := RunNotebookTest(t, map[string]string{
		"main.hcl": `
cell "bad" {
  x = boom()
}

cell "downstream" {
  y = x
}
`,
	})

	require.Error(t, result.Err)
	require.NotNil(t, result.App)

	statuses := result.App.Kernel().Statuses()
	assert.Equal(t, cell.StatusError, statuses["bad"])
	assert.Equal(t, cell.StatusStale, statuses["downstream"])
}

func TestHarness_SetupCellLeadsTheRun(t *testing.T) {
	t.Parallel()

	result := RunNotebookTest(t, map[string]string{
		"main.hcl": `
cell "report" {
  answer = base * 2
}

cell "init" {
  setup {
    base = 21
  }
}
`,
	})

	require.NoError(t, result.Err)
	values, _ := result.App.Kernel().Snapshot()
	assert.True(t, values["answer"].RawEquals(cty.NumberIntVal(42)))
	assert.Contains(t, result.Output, "1. init")

	// The very first transition on the stream belongs to the setup cell.
	history := result.App.History()
	require.NotEmpty(t, history)
	assert.Equal(t, cell.ID("init"), history[0].Cell)
}
