// Package mapping implements the immutable, content-addressed dictionaries
// bundled with a graph. Keys are packed slot buffers folded into a 64-bit
// hash; values are packed slot buffers returned by address from compiled
// code. A mapping is pinned once registered: the compiled module embeds its
// registration handle as an immediate and resolves it back through a runtime
// callback at call time.
package mapping

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/mna/jyafn/internal/murmur"
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/types"
)

// UpdateHash folds one 64-bit slot into a running hash: the slot's bytes are
// hashed with MurmurHash64A using the current hash as the seed. The seed of
// the first slot is 0.
func UpdateHash(hash, value uint64) uint64 {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], value)
	return murmur.Hash64A(key[:], hash)
}

// HashKey folds a packed key buffer, 8 bytes at a time.
func HashKey(key []byte) uint64 {
	var hash uint64
	for i := 0; i+8 <= len(key); i += 8 {
		hash = UpdateHash(hash, binary.LittleEndian.Uint64(key[i:]))
	}
	return hash
}

// A Mapping pairs a key layout and a value layout with the storage holding
// the packed entries.
type Mapping struct {
	keyLayout   *layout.Layout
	valueLayout *layout.Layout
	storageType StorageType
	storage     Storage
}

// New returns an initialized mapping with empty storage.
func New(keyLayout, valueLayout *layout.Layout, st StorageType) (*Mapping, error) {
	storage, err := st.Init()
	if err != nil {
		return nil, err
	}
	return &Mapping{
		keyLayout:   keyLayout,
		valueLayout: valueLayout,
		storageType: st,
		storage:     storage,
	}, nil
}

// Uninitialized returns a mapping shell with the given layouts and no
// storage, as produced by deserialization before the side file is attached.
func Uninitialized(keyLayout, valueLayout *layout.Layout, st StorageType) *Mapping {
	return &Mapping{keyLayout: keyLayout, valueLayout: valueLayout, storageType: st}
}

// KeyLayout returns the key layout.
func (m *Mapping) KeyLayout() *layout.Layout { return m.keyLayout }

// ValueLayout returns the value layout.
func (m *Mapping) ValueLayout() *layout.Layout { return m.valueLayout }

// StorageType returns the storage format tag carried by the bundle.
func (m *Mapping) StorageType() StorageType { return m.storageType }

// IsInitialized reports whether storage has been attached.
func (m *Mapping) IsInitialized() bool { return m.storage != nil }

// Attach installs storage read back from a side file.
func (m *Mapping) Attach(s Storage) { m.storage = s }

// Len returns the number of entries.
func (m *Mapping) Len() int {
	if m.storage == nil {
		return 0
	}
	return m.storage.Len()
}

// Insert records a packed key/value pair. A later insert with the same key
// wins.
func (m *Mapping) Insert(key, value []byte) {
	m.storage.Insert(HashKey(key), value)
}

// Get returns the packed value buffer for key.
func (m *Mapping) Get(key []byte) ([]byte, bool) {
	if m.storage == nil {
		return nil, false
	}
	return m.storage.Get(HashKey(key))
}

// Dump serializes the storage payload for the bundle's side file.
func (m *Mapping) Dump() ([]byte, error) {
	if m.storage == nil {
		return nil, fmt.Errorf("storage not initialized")
	}
	return m.storage.Dump()
}

// The pin registry hands compiled code a stable integer standing for a
// mapping. Handles, not addresses, cross the native boundary; the runtime
// callback resolves them back. Registered mappings are never released: their
// handles are baked into executable code for the life of the process.
var (
	pinMu   sync.Mutex
	pinNext uintptr
	pinned  = make(map[uintptr]*Mapping)

	cbOnce               sync.Once
	callAddr, updateAddr uintptr
)

// Pin registers the mapping and returns the handle to embed in emitted code.
// Pinning the same mapping again returns a new handle to the same object.
func Pin(m *Mapping) uintptr {
	pinMu.Lock()
	defer pinMu.Unlock()
	pinNext++
	pinned[pinNext] = m
	return pinNext
}

// callMapping is the runtime helper invoked by the per-mapping trampoline:
// it resolves the handle and returns the address of the packed value buffer
// for hash, or 0 when the key is absent.
func callMapping(handle uintptr, hash uint64) (addr uintptr) {
	defer func() {
		// never unwind into native code
		if recover() != nil {
			addr = 0
		}
	}()
	pinMu.Lock()
	m := pinned[handle]
	pinMu.Unlock()
	if m == nil || m.storage == nil {
		return 0
	}
	buf, ok := m.storage.Get(hash)
	if !ok || len(buf) == 0 {
		return 0
	}
	return bufferAddr(buf)
}

func runtimeAddrs() (call, update uintptr) {
	cbOnce.Do(func() {
		callAddr = purego.NewCallback(callMapping)
		updateAddr = purego.NewCallback(func(hash, value uint64) uint64 {
			return UpdateHash(hash, value)
		})
	})
	return callAddr, updateAddr
}

// CallMappingAddr returns the C-callable address of the mapping lookup
// helper.
func CallMappingAddr() uintptr {
	call, _ := runtimeAddrs()
	return call
}

// UpdateHashAddr returns the C-callable address of the hash-update helper.
func UpdateHashAddr() uintptr {
	_, update := runtimeAddrs()
	return update
}

// Render emits the private per-graph trampoline for this mapping. Its
// arguments are the key layout's slots; it chains the hash-update helper
// over each slot (floats reinterpreted as bits, integer slots taken as-is)
// and tail-calls the lookup helper with the pin handle.
func (m *Mapping) Render(funcName string, handle uintptr) *ir.Function {
	slots := m.keyLayout.Slots()
	args := make([]ir.TypedValue, len(slots))
	for i, ty := range slots {
		args[i] = ir.TypedValue{Ty: renderType(ty), Val: ir.Temp(fmt.Sprintf("i%d", i))}
	}
	fn := ir.NewFunction(false, funcName, args, ir.Long)
	fn.AddBlock("start")

	hash := ir.Temp("hash")
	fn.Assign(hash, ir.Long, ir.Copy(ir.Const(0)))

	for i, ty := range slots {
		cast := ir.Temp(fmt.Sprintf("cast_i%d", i))
		if renderType(ty) == ir.Double {
			fn.Assign(cast, ir.Long, ir.Cast(ir.Temp(fmt.Sprintf("i%d", i))))
		} else {
			fn.Assign(cast, ir.Long, ir.Copy(ir.Temp(fmt.Sprintf("i%d", i))))
		}
		fn.Assign(hash, ir.Long, ir.Call(ir.Const(uint64(UpdateHashAddr())), []ir.TypedValue{
			{Ty: ir.Long, Val: hash},
			{Ty: ir.Long, Val: cast},
		}))
	}

	slice := ir.Temp("slice")
	fn.Assign(slice, ir.Long, ir.Call(ir.Const(uint64(CallMappingAddr())), []ir.TypedValue{
		{Ty: ir.Long, Val: ir.Const(uint64(handle))},
		{Ty: ir.Long, Val: hash},
	}))
	fn.Append(ir.Ret(slice))
	return fn
}

func renderType(ty types.Type) ir.Type {
	if ty.Kind == types.Float {
		return ir.Double
	}
	return ir.Long
}
