package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

func src(id int, key string) contracts.Source {
	return contracts.Source{ID: contracts.SourceID(id), Key: key, Name: key, Title: "Title " + key}
}

func TestAddRemoveLookup(t *testing.T) {
	r := New()
	require.True(t, r.Add(src(1, "a")))
	require.True(t, r.Add(src(2, "b")))

	assert.False(t, r.Add(src(1, "c")), "duplicate id")
	assert.False(t, r.Add(src(3, "a")), "duplicate key")

	got, ok := r.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "b", got.Key)

	id, ok := r.LookupKey("a")
	require.True(t, ok)
	assert.Equal(t, contracts.SourceID(1), id)

	removed, ok := r.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "a", removed.Key)

	_, ok = r.Lookup(1)
	assert.False(t, ok)
	_, ok = r.LookupKey("a")
	assert.False(t, ok)
	_, ok = r.Remove(1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestSnapshotIsStable(t *testing.T) {
	r := New()
	r.Add(src(1, "a"))
	r.Add(src(2, "b"))

	snap := r.Snapshot()
	v := r.Version()

	r.Remove(1)
	r.Add(src(3, "c"))
	snap[0].Title = "mutated"

	assert.Equal(t, []string{"a", "b"}, []string{snap[0].Key, snap[1].Key})
	assert.Greater(t, r.Version(), v)

	fresh := r.Snapshot()
	require.Len(t, fresh, 2)
	assert.Equal(t, "b", fresh[0].Key)
	assert.Equal(t, "c", fresh[1].Key)
	assert.Equal(t, "Title b", fresh[0].Title)
}

func TestUpdateKeepsOrder(t *testing.T) {
	r := New()
	r.Add(src(1, "a"))
	r.Add(src(2, "b"))

	u := src(1, "a")
	u.Title = "Renamed"
	require.True(t, r.Update(u))
	assert.False(t, r.Update(src(9, "z")))
	assert.False(t, r.Update(src(1, "other-key")))

	snap := r.Snapshot()
	assert.Equal(t, "Renamed", snap[0].Title)
	assert.Equal(t, "b", snap[1].Key)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	r := New()
	const writers = 4
	const perWriter = 200

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, s := range r.Snapshot() {
				got, ok := r.Lookup(s.ID)
				if ok {
					assert.Equal(t, s.Key, got.Key)
				}
			}
		}
	}()

	var ww sync.WaitGroup
	for w := 0; w < writers; w++ {
		ww.Add(1)
		go func(w int) {
			defer ww.Done()
			for i := 0; i < perWriter; i++ {
				id := w*perWriter + i + 1
				key := fmt.Sprintf("w%d-%d", w, i)
				assert.True(t, r.Add(src(id, key)))
				if i%2 == 0 {
					_, ok := r.Remove(contracts.SourceID(id))
					assert.True(t, ok)
				}
			}
		}(w)
	}
	ww.Wait()
	close(done)
	wg.Wait()

	assert.Equal(t, writers*perWriter/2, r.Len())
}
