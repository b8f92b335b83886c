package mapping

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/mna/jyafn/internal/murmur"
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/layout"
	"github.com/stretchr/testify/require"
)

func packFloats(vals ...float64) []byte {
	var buf []byte
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func packInts(vals ...int64) []byte {
	var buf []byte
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
	return buf
}

func TestHashKeyChains(t *testing.T) {
	// the first chunk is hashed with seed 0, each next chunk with the
	// running hash as seed
	key := packInts(1, 2)
	h0 := murmur.Hash64A(key[:8], 0)
	want := murmur.Hash64A(key[8:], h0)
	require.Equal(t, want, HashKey(key))

	require.Equal(t, uint64(0), HashKey(nil))
	require.NotEqual(t, HashKey(packInts(1, 2)), HashKey(packInts(2, 1)))
}

func TestMappingInsertGet(t *testing.T) {
	m, err := New(layout.NewSymbol(), layout.NewList(layout.NewScalar(), 3), HashTableStorage{})
	require.NoError(t, err)
	require.True(t, m.IsInitialized())

	m.Insert(packInts(0), packFloats(1, 0, 0))
	m.Insert(packInts(1), packFloats(0, 1, 0))
	require.Equal(t, 2, m.Len())

	got, ok := m.Get(packInts(0))
	require.True(t, ok)
	require.Equal(t, packFloats(1, 0, 0), got)

	_, ok = m.Get(packInts(7))
	require.False(t, ok)

	// last insert wins
	m.Insert(packInts(0), packFloats(9, 9, 9))
	require.Equal(t, 2, m.Len())
	got, _ = m.Get(packInts(0))
	require.Equal(t, packFloats(9, 9, 9), got)
}

func TestStorageDumpRead(t *testing.T) {
	m, err := New(layout.NewScalar(), layout.NewScalar(), HashTableStorage{})
	require.NoError(t, err)
	m.Insert(packFloats(1), packFloats(10))
	m.Insert(packFloats(2), packFloats(20))

	dump, err := m.Dump()
	require.NoError(t, err)

	st, err := StorageTypeFromTag("hashtable")
	require.NoError(t, err)
	storage, err := st.Read(bytes.NewReader(dump))
	require.NoError(t, err)

	restored := Uninitialized(layout.NewScalar(), layout.NewScalar(), st)
	require.False(t, restored.IsInitialized())
	restored.Attach(storage)
	require.True(t, restored.IsInitialized())
	require.Equal(t, 2, restored.Len())

	got, ok := restored.Get(packFloats(2))
	require.True(t, ok)
	require.Equal(t, packFloats(20), got)
}

func TestStorageTypeFromTagUnknown(t *testing.T) {
	_, err := StorageTypeFromTag("btree")
	require.Error(t, err)
}

func TestCallMappingHelper(t *testing.T) {
	m, err := New(layout.NewScalar(), layout.NewScalar(), HashTableStorage{})
	require.NoError(t, err)
	m.Insert(packFloats(3), packFloats(30))

	handle := Pin(m)
	require.NotZero(t, handle)

	addr := callMapping(handle, HashKey(packFloats(3)))
	require.NotZero(t, addr)

	require.Zero(t, callMapping(handle, HashKey(packFloats(4))))
	require.Zero(t, callMapping(handle+1000, 0))
}

func TestRenderTrampoline(t *testing.T) {
	key := layout.NewStruct(
		layout.Field{Name: "name", Layout: layout.NewSymbol()},
		layout.Field{Name: "x", Layout: layout.NewScalar()},
	)
	m, err := New(key, layout.NewScalar(), HashTableStorage{})
	require.NoError(t, err)

	fn := m.Render("run.mapping.colors", Pin(m))
	irmod := ir.NewModule()
	irmod.AddFunction(fn)
	mod := irmod.Render()
	require.Contains(t, mod, "function l $run.mapping.colors(l %i0, d %i1) {")
	// float slots are bit-cast before hashing, integer slots copied
	require.Contains(t, mod, "%cast_i0 =l copy %i0")
	require.Contains(t, mod, "%cast_i1 =l cast %i1")
	require.Contains(t, mod, "ret %slice")
}
