package layout

import (
	"testing"

	"github.com/mna/jyafn/lang/types"
	"github.com/stretchr/testify/require"
)

func colorLayout() *Layout {
	return NewStruct(
		Field{Name: "r", Layout: NewScalar()},
		Field{Name: "g", Layout: NewScalar()},
		Field{Name: "b", Layout: NewScalar()},
	)
}

func TestSizeAndSlots(t *testing.T) {
	cases := []struct {
		layout *Layout
		size   int
		slots  []types.Type
	}{
		{NewUnit(), 0, nil},
		{NewScalar(), 1, []types.Type{types.FloatType}},
		{NewBool(), 1, []types.Type{types.BoolType}},
		{NewSymbol(), 1, []types.Type{types.SymbolType}},
		{NewDateTime(""), 1, []types.Type{types.DateTimeType}},
		{colorLayout(), 3, []types.Type{types.FloatType, types.FloatType, types.FloatType}},
		{NewList(NewScalar(), 4), 4, []types.Type{types.FloatType, types.FloatType, types.FloatType, types.FloatType}},
		{NewList(NewStruct(
			Field{Name: "x", Layout: NewScalar()},
			Field{Name: "ok", Layout: NewBool()},
		), 2), 4, []types.Type{types.FloatType, types.BoolType, types.FloatType, types.BoolType}},
	}
	for _, c := range cases {
		require.Equal(t, c.size, c.layout.Size(), "%s", c.layout)
		if c.slots == nil {
			require.Empty(t, c.layout.Slots())
		} else {
			require.Equal(t, c.slots, c.layout.Slots(), "%s", c.layout)
		}
	}
}

func TestEqual(t *testing.T) {
	require.True(t, colorLayout().Equal(colorLayout()))
	require.False(t, colorLayout().Equal(NewScalar()))
	require.False(t, NewDateTime("%Y").Equal(NewDateTime("%Y-%m")))
	require.True(t, NewList(NewScalar(), 3).Equal(NewList(NewScalar(), 3)))
	require.False(t, NewList(NewScalar(), 3).Equal(NewList(NewScalar(), 2)))

	// field order is significant
	a := NewStruct(Field{Name: "a", Layout: NewScalar()}, Field{Name: "b", Layout: NewScalar()})
	b := NewStruct(Field{Name: "b", Layout: NewScalar()}, Field{Name: "a", Layout: NewScalar()})
	require.False(t, a.Equal(b))
}

func TestBuildRefValue(t *testing.T) {
	refs := []types.Ref{types.Input(0), types.Input(1), types.Input(2)}
	rv, ok := colorLayout().BuildRefValue(refs)
	require.True(t, ok)
	require.Equal(t, Struct, rv.Kind)
	require.Equal(t, types.Input(1), rv.Fields["g"].Ref)

	_, ok = colorLayout().BuildRefValue(refs[:2])
	require.False(t, ok)
	_, ok = NewScalar().BuildRefValue(refs)
	require.False(t, ok)
}

func TestOutputVecRoundTrip(t *testing.T) {
	l := NewStruct(
		Field{Name: "xs", Layout: NewList(NewScalar(), 2)},
		Field{Name: "name", Layout: NewSymbol()},
	)
	refs := []types.Ref{types.Input(0), types.Input(1), types.Input(2)}
	rv, ok := l.BuildRefValue(refs)
	require.True(t, ok)
	flat, ok := rv.OutputVec(l)
	require.True(t, ok)
	require.Equal(t, refs, flat)

	// mismatched shape
	_, ok = rv.OutputVec(colorLayout())
	require.False(t, ok)
}

func TestPutativeLayout(t *testing.T) {
	rv := StructRef(map[string]*RefValue{
		"b": ScalarRef(types.Input(0)),
		"a": ListRef([]*RefValue{ScalarRef(types.Input(1)), ScalarRef(types.Input(2))}),
	})
	l := rv.PutativeLayout()
	require.Equal(t, Struct, l.Kind)
	// fields sorted by name
	require.Equal(t, "a", l.Fields[0].Name)
	require.Equal(t, "b", l.Fields[1].Name)
	require.Equal(t, List, l.Fields[0].Layout.Kind)
	require.Equal(t, 2, l.Fields[0].Layout.Len)
}

func TestSymbolsInterning(t *testing.T) {
	var syms Symbols
	require.Equal(t, 0, syms.Push("red"))
	require.Equal(t, 1, syms.Push("green"))
	require.Equal(t, 0, syms.Push("red"))
	require.Equal(t, 2, syms.Len())

	name, ok := syms.Get(1)
	require.True(t, ok)
	require.Equal(t, "green", name)
	_, ok = syms.Get(5)
	require.False(t, ok)
}

func TestSymbolsView(t *testing.T) {
	var syms Symbols
	syms.Push("red")
	syms.Push("green")

	view := NewView(&syms)
	require.Equal(t, 0, view.Find("red"))
	require.Equal(t, 2, view.Find("blue"))
	require.Equal(t, 2, view.Find("blue"))
	require.Equal(t, 3, view.Find("cyan"))

	// the permanent table is untouched
	require.Equal(t, 2, syms.Len())

	name, ok := view.Get(2)
	require.True(t, ok)
	require.Equal(t, "blue", name)
	name, ok = view.Get(0)
	require.True(t, ok)
	require.Equal(t, "red", name)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := NewStruct(
		Field{Name: "x", Layout: NewScalar()},
		Field{Name: "ok", Layout: NewBool()},
		Field{Name: "name", Layout: NewSymbol()},
		Field{Name: "xs", Layout: NewList(NewScalar(), 2)},
	)
	var syms Symbols
	view := NewView(&syms)
	vis := NewVisitor(l.Size())

	in := map[string]any{
		"x":    1.5,
		"ok":   true,
		"name": "red",
		"xs":   []any{2.0, 3.0},
	}
	require.NoError(t, Encode(in, l, view, vis))

	vis.Reset()
	out := ValueDecoder(l, view, vis)
	require.Equal(t, in, out)
}

func TestEncodeErrors(t *testing.T) {
	var syms Symbols
	view := NewView(&syms)

	// missing field names the field
	l := colorLayout()
	vis := NewVisitor(l.Size())
	err := Encode(map[string]any{"r": 1.0, "g": 0.0}, l, view, vis)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"b"`)

	// extra field names the field
	vis = NewVisitor(l.Size())
	err = Encode(map[string]any{"r": 1.0, "g": 0.0, "b": 0.0, "alpha": 1.0}, l, view, vis)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"alpha"`)

	// wrong list length
	ll := NewList(NewScalar(), 3)
	vis = NewVisitor(ll.Size())
	err = Encode([]any{1.0, 2.0}, ll, view, vis)
	require.Error(t, err)
	require.Contains(t, err.Error(), "size 3")

	// non-numeric string for a scalar
	vis = NewVisitor(1)
	err = Encode("nope", NewScalar(), view, vis)
	require.Error(t, err)

	// numeric string is accepted
	vis = NewVisitor(1)
	require.NoError(t, Encode("2.25", NewScalar(), view, vis))
	vis.Reset()
	require.Equal(t, 2.25, vis.Pop())
}

func TestEncodeDateTime(t *testing.T) {
	var syms Symbols
	view := NewView(&syms)
	l := NewDateTime("%Y-%m-%d")
	vis := NewVisitor(1)
	require.NoError(t, Encode("1970-01-02", l, view, vis))
	vis.Reset()
	require.Equal(t, int64(24*3600*1_000_000), vis.PopInt())

	vis.Reset()
	require.Equal(t, "1970-01-02", FormatDateTime(24*3600*1_000_000, "%Y-%m-%d"))

	vis = NewVisitor(1)
	err := Encode("not-a-date", l, view, vis)
	require.Error(t, err)
}
