// Package types defines the primitive slot types of the computational graph
// and the tagged references that identify slot producers. Every value that
// flows through a compiled function occupies exactly one 64-bit slot; the
// types in this package describe how the bit pattern of a slot is to be
// interpreted.
package types

import (
	"fmt"
	"math"
	"time"
)

// Kind enumerates the primitive slot types.
type Kind uint8

const (
	// Float is a 64-bit floating point number.
	Float Kind = iota
	// Bool is a boolean stored as 0 or 1.
	Bool
	// Symbol is an index into a symbol table.
	Symbol
	// Ptr is a pointer with an origin node. Pointers cannot appear in the
	// public interface of a graph.
	Ptr
	// DateTime is an integer timestamp in microseconds since the Unix epoch.
	DateTime

	maxKind = DateTime
)

// SlotSize is the size in bytes of every slot.
const SlotSize = 8

// A Type is a primitive slot type. For Ptr types, Origin is the index of the
// node that produced the pointer; it is meaningless for every other kind.
type Type struct {
	Kind   Kind
	Origin int
}

// Convenience values for the kinds that carry no payload.
var (
	FloatType    = Type{Kind: Float}
	BoolType     = Type{Kind: Bool}
	SymbolType   = Type{Kind: Symbol}
	DateTimeType = Type{Kind: DateTime}
)

// PtrType returns the pointer type originating at node origin.
func PtrType(origin int) Type {
	return Type{Kind: Ptr, Origin: origin}
}

// IsPtr reports whether t is a pointer type, regardless of origin.
func (t Type) IsPtr() bool { return t.Kind == Ptr }

// SameKind reports whether t and o share the same kind, ignoring pointer
// origins.
func (t Type) SameKind(o Type) bool { return t.Kind == o.Kind }

// Size returns the size in bytes of a slot of this type.
func (t Type) Size() int { return SlotSize }

func (t Type) String() string {
	switch t.Kind {
	case Float:
		return "scalar"
	case Bool:
		return "bool"
	case Symbol:
		return "symbol"
	case Ptr:
		return fmt.Sprintf("ptr@%d", t.Origin)
	case DateTime:
		return "datetime"
	}
	return fmt.Sprintf("kind(%d)", t.Kind)
}

// KindFromTag converts a serialized tag back to a Kind.
func KindFromTag(b uint8) (Kind, error) {
	if Kind(b) > maxKind {
		return 0, fmt.Errorf("%d is not a valid type id", b)
	}
	return Kind(b), nil
}

// Print renders the slot bit pattern bits as a human-readable string
// interpreted as type t.
func (t Type) Print(bits uint64) string {
	switch t.Kind {
	case Float:
		return fmt.Sprintf("%v", math.Float64frombits(bits))
	case Bool:
		return fmt.Sprintf("%v", bits == 1)
	case Symbol:
		return fmt.Sprintf("%d", bits)
	case Ptr:
		return fmt.Sprintf("%#x", bits)
	case DateTime:
		return time.UnixMicro(int64(bits)).UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%#x", bits)
}
