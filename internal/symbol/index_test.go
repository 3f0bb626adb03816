package symbol

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(key, display, scope, page, anchor string, cat Category) Entry {
	return Entry{
		Key:         key,
		DisplayName: display,
		Scope:       scope,
		Target:      Target{PageID: page, Anchor: anchor},
		Category:    cat,
	}
}

func sampleShard() []Entry {
	return []Entry{
		entry("i2c_", "i2c_", "Px4flow_i2c", "classPx4flow__i2c.html", "a4e72", CategoryVariable),
		entry("idle_timeout", "idle_timeout", "gps_t", "structgps__t.html", "a6472", CategoryVariable),
		entry("imu", "imu", "stabilisation_wing_t", "structstabilisation__wing__t.html", "acb3c", CategoryVariable),
		entry("imu", "imu", "MAV", "classMAV.html", "a5fbc", CategoryVariable),
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	once := NewIndex()
	once.Merge(sampleShard())

	twice := NewIndex()
	assert.Equal(t, 4, twice.Merge(sampleShard()))
	genAfterFirst := twice.Generation()
	assert.Equal(t, 0, twice.Merge(sampleShard()))

	assert.Equal(t, genAfterFirst, twice.Generation(), "no-op merge must not bump generation")
	assert.Equal(t, once.Stats().Entries, twice.Stats().Entries)
	for _, q := range []string{"i", "im", "i2c", "idle", "x"} {
		assert.Equal(t, once.Lookup(q), twice.Lookup(q), q)
	}
}

func TestMergeKeepsDistinctTargets(t *testing.T) {
	ix := NewIndex()
	ix.Merge(sampleShard())

	got := ix.Lookup("imu")
	require.Len(t, got, 2)
	assert.Equal(t, "MAV", got[0].Scope)
	assert.Equal(t, "stabilisation_wing_t", got[1].Scope)
	assert.Equal(t, 3, ix.Stats().Keys)
}

func TestMergeOrderIndependent(t *testing.T) {
	fromAll := entry("imu", "imu", "MAV", "classMAV.html", "a5fbc", CategoryAll)
	fromVars := entry("imu", "imu", "MAV", "classMAV.html", "a5fbc", CategoryVariable)

	a := NewIndex()
	a.Merge([]Entry{fromAll})
	a.Merge([]Entry{fromVars})

	b := NewIndex()
	b.Merge([]Entry{fromVars})
	b.Merge([]Entry{fromAll})

	require.Equal(t, a.Lookup("imu"), b.Lookup("imu"))
	assert.Equal(t, CategoryVariable, a.Lookup("imu")[0].Category)
	assert.Equal(t, 1, a.Stats().Entries)
}

func TestMergeShuffledShardsYieldSameIndex(t *testing.T) {
	base := sampleShard()
	for i := 0; i < 20; i++ {
		base = append(base, entry(
			fmt.Sprintf("item_%02d", i%7), fmt.Sprintf("item_%02d", i%7),
			fmt.Sprintf("scope%d", i), "page.html", fmt.Sprintf("a%d", i), Category(i%5),
		))
	}
	want := NewIndex()
	want.Merge(base)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]Entry(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := NewIndex()
		got.Merge(shuffled[:len(shuffled)/2])
		got.Merge(shuffled[len(shuffled)/2:])
		assert.Equal(t, want.Lookup("i"), got.Lookup("i"))
	}
}

func TestLookupSubstringWithinPartition(t *testing.T) {
	ix := NewIndex()
	ix.Merge(sampleShard())
	ix.Merge([]Entry{entry("void_id", "void_id", "", "file.html", "", CategoryFunction)})

	keys := func(es []Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Key)
		}
		return out
	}
	assert.Equal(t, []string{"idle_timeout"}, keys(ix.Lookup("id")))
	assert.Equal(t, []string{"i2c_"}, keys(ix.Lookup("I2C")))
	assert.Equal(t, []string{"void_id"}, keys(ix.Lookup("v")))
	assert.Empty(t, ix.Lookup("zz"))
}

func TestLookupEmptyQueryMatchesNothing(t *testing.T) {
	ix := NewIndex()
	ix.Merge(sampleShard())
	assert.Nil(t, ix.Lookup(""))
	assert.Nil(t, ix.Lookup("   "))
}

func TestLetters(t *testing.T) {
	ix := NewIndex()
	ix.Merge(sampleShard())
	ix.Merge([]Entry{entry("abc", "abc", "", "p.html", "", CategoryClass)})
	assert.Equal(t, []rune{'a', 'i'}, ix.Letters())
}

func BenchmarkLookup(b *testing.B) {
	ix := NewIndex()
	batch := make([]Entry, 0, 20000)
	for i := 0; i < 20000; i++ {
		key := fmt.Sprintf("%c_symbol_%d", 'a'+rune(i%26), i)
		batch = append(batch, entry(key, key, "Scope", "page.html", fmt.Sprintf("a%d", i), CategoryVariable))
	}
	ix.Merge(batch)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.Lookup("i_symbol_1")
	}
}
