package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestTable_SetAndGet(t *testing.T) {
	t.Parallel()

	ns := New()
	_, ok := ns.Get("x")
	assert.False(t, ok)

	ns.Set("x", cty.NumberIntVal(42))
	v, ok := ns.Get("x")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(42)))
}

func TestTable_VersionAdvancesOnWrite(t *testing.T) {
	t.Parallel()

	ns := New()
	v0 := ns.Version()

	ns.Set("x", cty.True)
	assert.Greater(t, ns.Version(), v0)

	// A batched commit bumps the version once, however many names it writes.
	v1 := ns.Version()
	ns.SetAll(map[string]cty.Value{
		"a": cty.NumberIntVal(1),
		"b": cty.NumberIntVal(2),
	})
	assert.Equal(t, v1+1, ns.Version())

	v2 := ns.Version()
	ns.Delete("x")
	assert.Equal(t, v2+1, ns.Version())
}

func TestTable_DeleteMissingDoesNotBumpVersion(t *testing.T) {
	t.Parallel()

	ns := New()
	v0 := ns.Version()
	ns.Delete("never-set")
	assert.Equal(t, v0, ns.Version())
}

func TestTable_SnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	ns := New()
	ns.Set("x", cty.StringVal("before"))

	snap, version := ns.Snapshot()
	require.Equal(t, ns.Version(), version)

	// Later writes must not leak into the snapshot.
	ns.Set("x", cty.StringVal("after"))
	ns.Set("y", cty.True)

	assert.True(t, snap["x"].RawEquals(cty.StringVal("before")))
	_, hasY := snap["y"]
	assert.False(t, hasY)
}
