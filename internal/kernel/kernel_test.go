package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/namegraph"
	"github.com/vk/cellgridgo/internal/runner"
)

func addCell(t *testing.T, k *Kernel, id cell.ID, source string) {
	t.Helper()
	res := k.AddOrUpdateCell(context.Background(), id, []byte(source))
	require.True(t, res.OK(), "registering %s: %v", id, res.Error())
}

func value(t *testing.T, k *Kernel, name string) cty.Value {
	t.Helper()
	values, _ := k.Snapshot()
	v, ok := values[name]
	require.True(t, ok, "name %s not in namespace", name)
	return v
}

func TestKernel_EditRecomputesDependents(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `a = 1`)
	addCell(t, k, "b", `b = a + 1`)

	// Registration alone runs nothing.
	values, _ := k.Snapshot()
	assert.Empty(t, values)

	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)
	assert.True(t, value(t, k, "b").RawEquals(cty.NumberIntVal(2)))

	// Editing a (still defining a) and re-running it carries b along.
	addCell(t, k, "a", `a = 41`)
	plan, err := k.RequestRun(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []cell.ID{"a", "b"}, plan.Runnable)
	assert.True(t, value(t, k, "b").RawEquals(cty.NumberIntVal(42)))
}

func TestKernel_MultipleDefinition_NeitherRuns(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `x = 1`)

	res := k.AddOrUpdateCell(context.Background(), "c", []byte(`x = 2`))
	assert.Equal(t, RegistrationConflict, res.Outcome)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "x", res.Conflicts[0].Name)
	assert.Equal(t, []cell.ID{"a", "c"}, res.Conflicts[0].Cells)

	plan, err := k.RequestRun(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Runnable)
	assert.Contains(t, plan.Skip, cell.ID("a"))
	assert.Contains(t, plan.Skip, cell.ID("c"))

	values, _ := k.Snapshot()
	_, bound := values["x"]
	assert.False(t, bound)

	// Rewriting one side clears the conflict for both.
	addCell(t, k, "c", `y = 2`)
	_, err = k.RequestRun(context.Background())
	require.NoError(t, err)
	assert.True(t, value(t, k, "x").RawEquals(cty.NumberIntVal(1)))
}

func TestKernel_Cycle_SkipsMembers(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `p = q`)
	addCell(t, k, "b", `q = p`)

	plan, err := k.RequestRun(context.Background())
	require.NoError(t, err)

	require.NotNil(t, plan.Cycle)
	assert.ElementsMatch(t, []cell.ID{"a", "b"}, plan.Cycle.Cells)
	var cyc *namegraph.CycleError
	require.True(t, errors.As(plan.Skip["a"], &cyc))
	require.True(t, errors.As(plan.Skip["b"], &cyc))
	assert.Empty(t, plan.Runnable)
}

func TestKernel_RuntimeFailure_DependentGoesStale(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `x = boom()`)
	addCell(t, k, "b", `y = x + 1`)

	plan, err := k.RequestRun(context.Background())

	require.Error(t, err)
	var rte *runner.RuntimeExecutionError
	require.True(t, errors.As(err, &rte))
	assert.Equal(t, []cell.ID{"a", "b"}, plan.Runnable)

	a, _ := k.Cell("a")
	b, _ := k.Cell("b")
	assert.Equal(t, cell.StatusError, a.Status())
	assert.Equal(t, cell.StatusStale, b.Status())
}

func TestKernel_EditDependentOfFailedCell_StaysStale(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `x = nosuchfunc()`)
	addCell(t, k, "b", `y = x + 1`)
	_, err := k.RequestRun(context.Background())
	require.Error(t, err)

	// b waits on its broken ancestor: editing b alone must not run it
	// against the missing name.
	addCell(t, k, "b", `y = x + 2`)
	plan, err := k.RequestRun(context.Background(), "b")
	require.NoError(t, err)
	assert.Empty(t, plan.Runnable)
	assert.Contains(t, plan.Stale, cell.ID("b"))
	b, _ := k.Cell("b")
	assert.Equal(t, cell.StatusStale, b.Status())

	// Repairing the ancestor carries b along.
	addCell(t, k, "a", `x = 40`)
	plan, err = k.RequestRun(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []cell.ID{"a", "b"}, plan.Runnable)
	assert.True(t, value(t, k, "y").RawEquals(cty.NumberIntVal(42)))
}

func TestKernel_DeleteCell_DependentSurvivesAsUndefined(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `x = 1`)
	addCell(t, k, "b", `y = x * 2`)
	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)

	plan, err := k.DeleteCell(context.Background(), "a")
	require.NoError(t, err)

	// b is still registered but cannot run on a missing name.
	_, exists := k.Cell("a")
	assert.False(t, exists)
	b, exists := k.Cell("b")
	require.True(t, exists)
	assert.Equal(t, cell.StatusError, b.Status())
	var undef *namegraph.UndefinedReferenceError
	require.True(t, errors.As(plan.Skip["b"], &undef))
	assert.Equal(t, "x", undef.Name)

	// a's binding left the namespace; b's last-good output is retained.
	values, _ := k.Snapshot()
	_, bound := values["x"]
	assert.False(t, bound)
	assert.True(t, values["y"].RawEquals(cty.NumberIntVal(2)))
}

func TestKernel_ParseErrorOnUpdate_RetainsPreviousRegistration(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `a = 7`)

	res := k.AddOrUpdateCell(context.Background(), "a", []byte(`a = = nope`))
	assert.Equal(t, RegistrationParseError, res.Outcome)
	require.NotNil(t, res.ParseErr)

	// The previous source still runs.
	_, err := k.RequestRun(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, value(t, k, "a").RawEquals(cty.NumberIntVal(7)))
}

func TestKernel_ParseErrorOnNewCell_NothingRegistered(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()

	res := k.AddOrUpdateCell(context.Background(), "broken", []byte(`= 1`))
	assert.Equal(t, RegistrationParseError, res.Outcome)
	_, exists := k.Cell("broken")
	assert.False(t, exists)
}

func TestKernel_SetState_RerunsOwnerAndDependents(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "widget", `v = state("knob", 10)`)
	addCell(t, k, "view", `w = v * 2`)
	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)
	assert.True(t, value(t, k, "w").RawEquals(cty.NumberIntVal(20)))

	plan, err := k.SetState(context.Background(), "knob", cty.NumberIntVal(25))
	require.NoError(t, err)
	assert.Equal(t, []cell.ID{"widget", "view"}, plan.Runnable)
	assert.True(t, value(t, k, "v").RawEquals(cty.NumberIntVal(25)))
	assert.True(t, value(t, k, "w").RawEquals(cty.NumberIntVal(50)))
}

func TestKernel_SetState_UnknownName(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()

	_, err := k.SetState(context.Background(), "nothing", cty.True)
	var unknown *UnknownStateError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nothing", unknown.Name)
}

func TestKernel_DisableAndReenable(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "a", `x = 3`)
	addCell(t, k, "b", `y = x`)
	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)

	plan, err := k.SetCellDisabled(context.Background(), "a", true)
	require.NoError(t, err)
	require.Contains(t, plan.Skip, cell.ID("a"))
	assert.Nil(t, plan.Skip["a"])
	// b lost its input but keeps its last-good output, merely outdated
	// until a comes back.
	assert.Contains(t, plan.Stale, cell.ID("b"))
	assert.NotContains(t, plan.Skip, cell.ID("b"))
	b, _ := k.Cell("b")
	assert.Equal(t, cell.StatusStale, b.Status())
	assert.True(t, value(t, k, "y").RawEquals(cty.NumberIntVal(3)))

	plan, err = k.SetCellDisabled(context.Background(), "a", false)
	require.NoError(t, err)
	assert.Equal(t, []cell.ID{"a", "b"}, plan.Runnable)
	a, _ := k.Cell("a")
	assert.Equal(t, cell.StatusIdle, a.Status())
}

func TestKernel_SetupCell_RunsFirstAndIsUnique(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "main", `out = base * 2`)
	addCell(t, k, "init", `setup {
		base = 21
	}`)

	res := k.AddOrUpdateCell(context.Background(), "other", []byte(`setup {
		more = 1
	}`))
	assert.Equal(t, RegistrationRejected, res.Outcome)
	var dup *DuplicateSetupError
	require.True(t, errors.As(res.Err, &dup))
	assert.Equal(t, cell.ID("init"), dup.Existing)

	plan, err := k.RequestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []cell.ID{"init", "main"}, plan.Runnable)
	assert.True(t, value(t, k, "out").RawEquals(cty.NumberIntVal(42)))
}

func TestKernel_DeletedCellsStateDropped(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	addCell(t, k, "widget", `v = state("knob", 1)`)
	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)

	_, err = k.DeleteCell(context.Background(), "widget")
	require.NoError(t, err)

	// The reactive value went with its owner.
	_, err = k.SetState(context.Background(), "knob", cty.NumberIntVal(2))
	var unknown *UnknownStateError
	assert.True(t, errors.As(err, &unknown))
}

func TestKernel_EventsStreamObservesTransitions(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	addCell(t, k, "a", `x = 1`)

	_, err := k.RequestRun(context.Background())
	require.NoError(t, err)
	k.Close()

	var statuses []cell.Status
	for ev := range k.Events() {
		if ev.Cell == "a" {
			statuses = append(statuses, ev.Status)
		}
	}
	assert.Equal(t, []cell.Status{cell.StatusQueued, cell.StatusRunning, cell.StatusIdle}, statuses)
}

func TestKernel_InterruptWithNoPlanIsSafe(t *testing.T) {
	t.Parallel()

	k := New(Options{})
	defer k.Close()
	assert.NotPanics(t, k.Interrupt)
}
