package mapping

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/dolthub/swiss"
)

// Storage holds the packed entries of a mapping, keyed by the derived 64-bit
// content hash. Implementations must preserve last-insert-wins semantics.
type Storage interface {
	Insert(hash uint64, value []byte)
	Get(hash uint64) ([]byte, bool)
	Len() int
	Dump() ([]byte, error)
}

// StorageType names a storage format. The tag is serialized with the graph
// so that side files can be read back by the right implementation.
type StorageType interface {
	Tag() string
	Init() (Storage, error)
	Read(r io.Reader) (Storage, error)
}

// StorageTypeFromTag resolves a serialized tag.
func StorageTypeFromTag(tag string) (StorageType, error) {
	if tag == hashTableTag {
		return HashTableStorage{}, nil
	}
	return nil, fmt.Errorf("unknown mapping storage type %q", tag)
}

const hashTableTag = "hashtable"

// HashTableStorage is the default storage format: a swiss table keyed by the
// derived hash. The hash is already uniformly distributed, so any further
// mixing done by the table is redundant but harmless.
type HashTableStorage struct{}

var _ StorageType = HashTableStorage{}

func (HashTableStorage) Tag() string { return hashTableTag }

func (HashTableStorage) Init() (Storage, error) {
	return &hashTable{m: swiss.NewMap[uint64, []byte](8)}, nil
}

func (HashTableStorage) Read(r io.Reader) (Storage, error) {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	t := &hashTable{m: swiss.NewMap[uint64, []byte](uint32(count))}
	for i := uint64(0); i < count; i++ {
		var hash, size uint64
		if err := binary.Read(r, binary.LittleEndian, &hash); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		t.insertOrdered(hash, buf)
	}
	return t, nil
}

type hashTable struct {
	m *swiss.Map[uint64, []byte]
	// insertion order of hashes, for a deterministic dump
	order []uint64
}

func (t *hashTable) Insert(hash uint64, value []byte) {
	t.insertOrdered(hash, value)
}

func (t *hashTable) insertOrdered(hash uint64, value []byte) {
	if _, ok := t.m.Get(hash); !ok {
		t.order = append(t.order, hash)
	}
	t.m.Put(hash, value)
}

func (t *hashTable) Get(hash uint64) ([]byte, bool) {
	return t.m.Get(hash)
}

func (t *hashTable) Len() int { return t.m.Count() }

func (t *hashTable) Dump() ([]byte, error) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(t.order)))
	for _, hash := range t.order {
		value, _ := t.m.Get(hash)
		buf = binary.LittleEndian.AppendUint64(buf, hash)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(value)))
		buf = append(buf, value...)
	}
	return buf, nil
}

// bufferAddr returns the address of the first byte of buf. The buffer must
// outlive any compiled function that may observe the address; the graph
// owning the mapping guarantees that.
func bufferAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}
