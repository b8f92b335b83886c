package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mna/jyafn/lang/types"
)

// A RefValue is a tree of references mirroring the shape of a layout. It is
// what the graph builder hands around when wiring structured inputs and
// outputs: the leaves are references into the graph, the interior reproduces
// structs and lists.
type RefValue struct {
	Kind   Kind
	Ref    types.Ref            // leaf kinds only
	Fields map[string]*RefValue // Struct only
	List   []*RefValue          // List only
}

// Leaf ref-value constructors.
func ScalarRef(r types.Ref) *RefValue   { return &RefValue{Kind: Scalar, Ref: r} }
func BoolRef(r types.Ref) *RefValue     { return &RefValue{Kind: Bool, Ref: r} }
func DateTimeRef(r types.Ref) *RefValue { return &RefValue{Kind: DateTime, Ref: r} }
func SymbolRef(r types.Ref) *RefValue   { return &RefValue{Kind: Symbol, Ref: r} }
func UnitRef() *RefValue                { return &RefValue{Kind: Unit} }

// StructRef returns a struct ref-value over the given fields.
func StructRef(fields map[string]*RefValue) *RefValue {
	return &RefValue{Kind: Struct, Fields: fields}
}

// ListRef returns a list ref-value over the given items.
func ListRef(items []*RefValue) *RefValue {
	return &RefValue{Kind: List, List: items}
}

// PutativeLayout guesses a layout from the shape of the value alone. Struct
// fields are sorted by name, since a map carries no declaration order.
func (rv *RefValue) PutativeLayout() *Layout {
	switch rv.Kind {
	case Unit:
		return NewUnit()
	case Scalar:
		return NewScalar()
	case Bool:
		return NewBool()
	case DateTime:
		return NewDateTime(ISOFormat)
	case Symbol:
		return NewSymbol()
	case Struct:
		names := make([]string, 0, len(rv.Fields))
		for name := range rv.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]Field, 0, len(names))
		for _, name := range names {
			fields = append(fields, Field{Name: name, Layout: rv.Fields[name].PutativeLayout()})
		}
		return NewStruct(fields...)
	case List:
		if len(rv.List) == 0 {
			return NewList(NewScalar(), 0)
		}
		return NewList(rv.List[0].PutativeLayout(), len(rv.List))
	}
	return NewUnit()
}

// OutputVec flattens the value against the declared layout into a reference
// per slot, in declaration order. It returns false when the shapes disagree.
func (rv *RefValue) OutputVec(l *Layout) ([]types.Ref, bool) {
	var buf []types.Ref
	if !rv.buildOutputVec(l, &buf) {
		return nil, false
	}
	return buf, true
}

func (rv *RefValue) buildOutputVec(l *Layout, buf *[]types.Ref) bool {
	if l == nil {
		return rv.Kind == Unit
	}
	switch {
	case rv.Kind == Unit && l.Kind == Unit:
	case rv.Kind == Scalar && l.Kind == Scalar,
		rv.Kind == Bool && l.Kind == Bool,
		rv.Kind == DateTime && l.Kind == DateTime,
		rv.Kind == Symbol && l.Kind == Symbol:
		*buf = append(*buf, rv.Ref)
	case rv.Kind == Struct && l.Kind == Struct:
		for _, f := range l.Fields {
			val, ok := rv.Fields[f.Name]
			if !ok {
				return false
			}
			if !val.buildOutputVec(f.Layout, buf) {
				return false
			}
		}
	case rv.Kind == List && l.Kind == List && len(rv.List) == l.Len:
		for _, item := range rv.List {
			if !item.buildOutputVec(l.Elem, buf) {
				return false
			}
		}
	default:
		return false
	}
	return true
}

func (rv *RefValue) String() string {
	if rv == nil {
		return "<none>"
	}
	switch rv.Kind {
	case Unit:
		return "unit"
	case Scalar:
		return fmt.Sprintf("scalar %s", rv.Ref)
	case Bool:
		return fmt.Sprintf("bool %s", rv.Ref)
	case DateTime:
		return fmt.Sprintf("datetime %s", rv.Ref)
	case Symbol:
		return fmt.Sprintf("symbol %s", rv.Ref)
	case Struct:
		names := make([]string, 0, len(rv.Fields))
		for name := range rv.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("{ ")
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %s, ", name, rv.Fields[name])
		}
		b.WriteString("}")
		return b.String()
	case List:
		var b strings.Builder
		b.WriteString("[ ")
		for _, item := range rv.List {
			fmt.Fprintf(&b, "%s, ", item)
		}
		b.WriteString("]")
		return b.String()
	}
	return "unknown"
}
