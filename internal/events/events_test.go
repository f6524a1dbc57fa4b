package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cellgridgo/internal/cell"
)

func TestStream_DeliversInOrder(t *testing.T) {
	t.Parallel()

	s := NewStream(8)
	s.Emit(Event{Cell: "a", Status: cell.StatusQueued})
	s.Emit(Event{Cell: "a", Status: cell.StatusRunning})
	s.Emit(Event{Cell: "a", Status: cell.StatusIdle})
	s.Close()

	var got []cell.Status
	for ev := range s.C() {
		got = append(got, ev.Status)
	}
	assert.Equal(t, []cell.Status{cell.StatusQueued, cell.StatusRunning, cell.StatusIdle}, got)
}

func TestStream_DropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	s := NewStream(2)
	s.Emit(Event{Cell: "a"})
	s.Emit(Event{Cell: "b"})
	s.Emit(Event{Cell: "c"}) // Overflows; "a" is sacrificed.
	s.Close()

	var got []cell.ID
	for ev := range s.C() {
		got = append(got, ev.Cell)
	}
	assert.Equal(t, []cell.ID{"b", "c"}, got)
}

func TestStream_EmitAfterCloseIsSafe(t *testing.T) {
	t.Parallel()

	s := NewStream(2)
	s.Close()
	assert.NotPanics(t, func() { s.Emit(Event{Cell: "late"}) })
}

func TestRecorder_KeepsEverything(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	for i := 0; i < 10; i++ {
		r.Emit(Event{Cell: "x", Status: cell.StatusRunning})
	}
	require.Len(t, r.Events(), 10)
}

func TestTee_FansOut(t *testing.T) {
	t.Parallel()

	first := &Recorder{}
	second := &Recorder{}
	sink := Tee{first, second}

	sink.Emit(Event{Cell: "a"})

	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}
