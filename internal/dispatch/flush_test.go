package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

func TestFlushIsPerSourceInMultiInstanceMode(t *testing.T) {
	tbl := New(MultiInstance, 4, 0)
	a := connect(t, tbl)
	b := connect(t, tbl)

	var flushedA, flushedB []contracts.SourceID
	tbl.SetHandlers(a, Handlers{Flush: func(id contracts.SourceID) { flushedA = append(flushedA, id) }})
	tbl.SetHandlers(b, Handlers{Flush: func(id contracts.SourceID) { flushedB = append(flushedB, id) }})

	assert.True(t, tbl.Flush(a))
	assert.Equal(t, []contracts.SourceID{a}, flushedA)
	assert.Empty(t, flushedB)
}

func TestFlushSingleInstanceCallsSharedHandler(t *testing.T) {
	tbl := New(SingleInstance, 4, 0)
	a := connect(t, tbl)
	_ = connect(t, tbl)

	var flushed []contracts.SourceID
	tbl.SetShared(Handlers{Flush: func(id contracts.SourceID) { flushed = append(flushed, id) }})

	assert.True(t, tbl.Flush(a))
	assert.Equal(t, []contracts.SourceID{a}, flushed)
}

func TestFlushWithoutHandlerOrSourceIsDropped(t *testing.T) {
	tbl := New(MultiInstance, 2, 0)
	a := connect(t, tbl)

	assert.False(t, tbl.Flush(a))
	assert.False(t, tbl.Flush(pack(1, 7)))

	st := tbl.Stats()
	assert.Equal(t, uint64(0), st.Flushes)
	assert.Equal(t, uint64(2), st.FlushesDropped)
}

func TestFlushAllSkipsIneligibleSlots(t *testing.T) {
	tbl := New(MultiInstance, 4, 0)
	a := connect(t, tbl)
	b := connect(t, tbl)
	c, err := tbl.Allocate()
	assert.NoError(t, err)

	seen := map[contracts.SourceID]int{}
	h := Handlers{Flush: func(id contracts.SourceID) { seen[id]++ }}
	tbl.SetHandlers(a, h)
	tbl.SetHandlers(b, h)
	tbl.SetHandlers(c, h)
	tbl.Disable(b)

	assert.Equal(t, 1, tbl.FlushAll())
	assert.Equal(t, map[contracts.SourceID]int{a: 1}, seen)
}
