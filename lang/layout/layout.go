// Package layout describes the structured values that cross the boundary of a
// compiled function. A layout is a tree over unit, scalar, bool, datetime,
// symbol, struct and fixed-size list shapes; its leaves enumerate the packed
// 64-bit slots of the wire representation, in declaration order. Layouts
// drive both the encoding of inputs and the decoding of outputs.
package layout

import (
	"fmt"
	"strings"

	"github.com/mna/jyafn/lang/types"
)

// Kind enumerates the shapes a layout node can take.
type Kind uint8

const (
	Unit Kind = iota
	Scalar
	Bool
	DateTime
	Symbol
	Struct
	List

	maxKind = List
)

// ISOFormat is the default datetime format, a strftime rendition of ISO-8601
// with fractional seconds.
const ISOFormat = "%Y-%m-%dT%H:%M:%S%.f"

// A Field is a named member of a struct layout. Field order is significant.
type Field struct {
	Name   string
	Layout *Layout
}

// A Layout describes the shape of a structured value. The zero value is the
// unit layout.
type Layout struct {
	Kind   Kind
	Format string  // DateTime only
	Fields []Field // Struct only
	Elem   *Layout // List only
	Len    int     // List only
}

// Constructors for the leaf layouts.
func NewUnit() *Layout     { return &Layout{Kind: Unit} }
func NewScalar() *Layout   { return &Layout{Kind: Scalar} }
func NewBool() *Layout     { return &Layout{Kind: Bool} }
func NewSymbol() *Layout   { return &Layout{Kind: Symbol} }
func NewDateTime(format string) *Layout {
	if format == "" {
		format = ISOFormat
	}
	return &Layout{Kind: DateTime, Format: format}
}

// NewStruct returns a struct layout over the given fields, in order.
func NewStruct(fields ...Field) *Layout {
	return &Layout{Kind: Struct, Fields: fields}
}

// NewList returns a list layout of size fixed-size elements.
func NewList(elem *Layout, size int) *Layout {
	return &Layout{Kind: List, Elem: elem, Len: size}
}

// Insert appends a named field to a struct layout.
func (l *Layout) Insert(name string, field *Layout) {
	if l.Kind != Struct {
		panic(fmt.Sprintf("cannot insert field in %s layout", l.kindString()))
	}
	l.Fields = append(l.Fields, Field{Name: name, Layout: field})
}

// Size returns the number of slots occupied by a value of this layout.
func (l *Layout) Size() int {
	if l == nil {
		return 0
	}
	switch l.Kind {
	case Unit:
		return 0
	case Scalar, Bool, DateTime, Symbol:
		return 1
	case Struct:
		n := 0
		for _, f := range l.Fields {
			n += f.Layout.Size()
		}
		return n
	case List:
		return l.Len * l.Elem.Size()
	}
	return 0
}

// Slots enumerates the primitive slot types of this layout, in left-to-right
// leaf order.
func (l *Layout) Slots() []types.Type {
	var slots []types.Type
	l.appendSlots(&slots)
	return slots
}

func (l *Layout) appendSlots(slots *[]types.Type) {
	if l == nil {
		return
	}
	switch l.Kind {
	case Scalar:
		*slots = append(*slots, types.FloatType)
	case Bool:
		*slots = append(*slots, types.BoolType)
	case DateTime:
		*slots = append(*slots, types.DateTimeType)
	case Symbol:
		*slots = append(*slots, types.SymbolType)
	case Struct:
		for _, f := range l.Fields {
			f.Layout.appendSlots(slots)
		}
	case List:
		for i := 0; i < l.Len; i++ {
			l.Elem.appendSlots(slots)
		}
	}
}

// Equal reports whether l and o describe the same layout. Datetime formats
// are part of the comparison; struct field order is significant.
func (l *Layout) Equal(o *Layout) bool {
	if l == nil || o == nil {
		return l.Size() == 0 && o.Size() == 0 && l.kind() == o.kind()
	}
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case DateTime:
		return l.Format == o.Format
	case Struct:
		if len(l.Fields) != len(o.Fields) {
			return false
		}
		for i, f := range l.Fields {
			if f.Name != o.Fields[i].Name || !f.Layout.Equal(o.Fields[i].Layout) {
				return false
			}
		}
		return true
	case List:
		return l.Len == o.Len && l.Elem.Equal(o.Elem)
	}
	return true
}

func (l *Layout) kind() Kind {
	if l == nil {
		return Unit
	}
	return l.Kind
}

func (l *Layout) kindString() string {
	switch l.kind() {
	case Unit:
		return "unit"
	case Scalar:
		return "scalar"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	case Symbol:
		return "symbol"
	case Struct:
		return "struct"
	case List:
		return "list"
	}
	return "unknown"
}

func (l *Layout) String() string {
	if l == nil {
		return "unit"
	}
	switch l.Kind {
	case Unit:
		return "unit"
	case Scalar:
		return "f64"
	case Bool:
		return "bool"
	case DateTime:
		return fmt.Sprintf("datetime %q", l.Format)
	case Symbol:
		return "symbol"
	case Struct:
		var b strings.Builder
		b.WriteString("{ ")
		for i, f := range l.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			if f.Layout.Kind == Scalar {
				fmt.Fprintf(&b, "%q", f.Name)
			} else {
				fmt.Fprintf(&b, "%q: %s", f.Name, f.Layout)
			}
		}
		b.WriteString(" }")
		return b.String()
	case List:
		if l.Elem.Kind == Scalar {
			return fmt.Sprintf("[%d]", l.Len)
		}
		return fmt.Sprintf("[%s; %d]", l.Elem, l.Len)
	}
	return "unknown"
}

// KindFromTag converts a serialized tag back to a layout Kind.
func KindFromTag(b uint8) (Kind, error) {
	if Kind(b) > maxKind {
		return 0, fmt.Errorf("%d is not a valid layout kind", b)
	}
	return Kind(b), nil
}

// BuildRefValue rebuilds a RefValue tree of this layout's shape from a flat
// sequence of references. It returns false if refs does not hold exactly
// Size() references.
func (l *Layout) BuildRefValue(refs []types.Ref) (*RefValue, bool) {
	rv, rest := l.buildRefValue(refs)
	if rv == nil || len(rest) > 0 {
		return nil, false
	}
	return rv, true
}

func (l *Layout) buildRefValue(refs []types.Ref) (*RefValue, []types.Ref) {
	if l == nil {
		return &RefValue{Kind: Unit}, refs
	}
	switch l.Kind {
	case Unit:
		return &RefValue{Kind: Unit}, refs
	case Scalar, Bool, DateTime, Symbol:
		if len(refs) == 0 {
			return nil, nil
		}
		return &RefValue{Kind: l.Kind, Ref: refs[0]}, refs[1:]
	case Struct:
		fields := make(map[string]*RefValue, len(l.Fields))
		for _, f := range l.Fields {
			var rv *RefValue
			rv, refs = f.Layout.buildRefValue(refs)
			if rv == nil {
				return nil, nil
			}
			fields[f.Name] = rv
		}
		return &RefValue{Kind: Struct, Fields: fields}, refs
	case List:
		items := make([]*RefValue, 0, l.Len)
		for i := 0; i < l.Len; i++ {
			var rv *RefValue
			rv, refs = l.Elem.buildRefValue(refs)
			if rv == nil {
				return nil, nil
			}
			items = append(items, rv)
		}
		return &RefValue{Kind: List, List: items}, refs
	}
	return nil, nil
}
