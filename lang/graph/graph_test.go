package graph

import (
	"testing"
	"time"

	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/resource"
	"github.com/mna/jyafn/lang/types"
	"github.com/stretchr/testify/require"
)

func TestInsertTypeChecks(t *testing.T) {
	g := New()
	a := g.ScalarInput("a")
	b := g.ScalarInput("b")

	c, err := g.Insert(&Add{}, []types.Ref{a, b})
	require.NoError(t, err)
	require.Equal(t, types.Node(0), c)
	require.Equal(t, types.FloatType, g.TypeOf(c))

	// bool operand rejected by the arithmetic type rule
	_, err = g.Insert(&Add{}, []types.Ref{a, types.BoolConst(true)})
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	require.Contains(t, typeErr.Error(), "cannot apply add")
}

func TestInputAllocation(t *testing.T) {
	g := New()
	rv := g.Input("point", layout.NewStruct(
		layout.Field{Name: "x", Layout: layout.NewScalar()},
		layout.Field{Name: "y", Layout: layout.NewScalar()},
		layout.Field{Name: "label", Layout: layout.NewSymbol()},
	))

	require.Equal(t, []types.Type{types.FloatType, types.FloatType, types.SymbolType}, g.Inputs())
	require.Equal(t, 3, g.InputLayout().Size())
	require.Equal(t, types.Input(0), rv.Fields["x"].Ref)
	require.Equal(t, types.Input(2), rv.Fields["label"].Ref)
}

func TestOutputShapeMismatch(t *testing.T) {
	g := New()
	a := g.ScalarInput("a")

	err := g.Output(layout.ScalarRef(a), layout.NewBool())
	var bad *BadValueError
	require.ErrorAs(t, err, &bad)

	require.NoError(t, g.Output(layout.ScalarRef(a), layout.NewScalar()))
	require.Equal(t, []types.Ref{a}, g.Outputs())
	require.Equal(t, 1, g.OutputLayout().Size())
}

func TestInvariantsAfterBuild(t *testing.T) {
	g := New()
	a := g.ScalarInput("a")
	b := g.ScalarInput("b")
	c, err := g.Insert(&Add{}, []types.Ref{a, b})
	require.NoError(t, err)
	d, err := g.Insert(&Add{}, []types.Ref{c, types.FloatConst(1)})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(d), layout.NewScalar()))

	// every accepted graph passes its own checks
	require.NoError(t, g.RunChecks())
	// the layout sizes match the slot counts
	require.Equal(t, g.InputLayout().Size(), len(g.Inputs()))
	require.Equal(t, g.OutputLayout().Size(), len(g.Outputs()))
}

func TestChecksRejectBrokenGraphs(t *testing.T) {
	// forward reference
	g := New()
	a := g.ScalarInput("a")
	_, err := g.Insert(&Add{}, []types.Ref{a, a})
	require.NoError(t, err)
	g.nodes[0].Args[1] = types.Node(4)
	require.Error(t, g.checkTopsort())

	// stored type disagrees with the op's rule
	g2 := New()
	x := g2.ScalarInput("x")
	_, err = g2.Insert(&Add{}, []types.Ref{x, x})
	require.NoError(t, err)
	g2.nodes[0].Ty = types.BoolType
	require.Error(t, g2.checkTypes())

	// pointer in output
	g3 := New()
	y := g3.ScalarInput("y")
	lst, err := g3.Insert(&List{Element: types.FloatType, NElements: 1}, []types.Ref{y})
	require.NoError(t, err)
	g3.outputs = []types.Ref{lst}
	require.Error(t, g3.checkPointers())
}

func TestEqAnnotatesItself(t *testing.T) {
	g := New()
	s1 := g.SymbolInput("s1")
	s2 := g.SymbolInput("s2")
	eqRef, err := g.Insert(&Eq{}, []types.Ref{s1, s2})
	require.NoError(t, err)
	require.Equal(t, types.BoolType, g.TypeOf(eqRef))

	eq := g.nodes[0].Op.(*Eq)
	require.True(t, eq.Annotated)
	require.Equal(t, types.SymbolType, eq.Operand)

	// re-checking a well-formed graph is a no-op
	require.NoError(t, g.RunChecks())
	require.Equal(t, types.SymbolType, g.nodes[0].Op.(*Eq).Operand)
}

func TestAssertIllegal(t *testing.T) {
	g := New()
	_, err := g.Assert(types.BoolConst(false), "never")
	require.NoError(t, err)
	require.NotNil(t, g.FindIllegal())

	g2 := New()
	x := g2.ScalarInput("x")
	ok, err := g2.Insert(&Ge{}, []types.Ref{x, types.FloatConst(0)})
	require.NoError(t, err)
	_, err = g2.Assert(ok, "x must be non-negative")
	require.NoError(t, err)
	require.Nil(t, g2.FindIllegal())
	require.Equal(t, []string{"x must be non-negative"}, g2.Errors())
}

func TestPushErrorDeduplicates(t *testing.T) {
	g := New()
	require.Equal(t, 0, g.PushError("boom"))
	require.Equal(t, 1, g.PushError("other"))
	require.Equal(t, 0, g.PushError("boom"))
	require.Len(t, g.Errors(), 2)
}

func TestPushSymbolInterning(t *testing.T) {
	g := New()
	red := g.PushSymbol("red")
	green := g.PushSymbol("green")
	require.Equal(t, types.SymbolConst(0), red)
	require.Equal(t, types.SymbolConst(1), green)
	require.Equal(t, red, g.PushSymbol("red"))
}

func TestMappingHelpers(t *testing.T) {
	g := New()
	require.NoError(t, g.InsertMapping("colors",
		layout.NewStruct(layout.Field{Name: "name", Layout: layout.NewSymbol()}),
		layout.NewStruct(
			layout.Field{Name: "r", Layout: layout.NewScalar()},
			layout.Field{Name: "g", Layout: layout.NewScalar()},
			layout.Field{Name: "b", Layout: layout.NewScalar()},
		),
		[]Entry{
			{Key: map[string]any{"name": "red"}, Value: map[string]any{"r": 1.0, "g": 0.0, "b": 0.0}},
			{Key: map[string]any{"name": "green"}, Value: map[string]any{"r": 0.0, "g": 1.0, "b": 0.0}},
		}))

	name := g.SymbolInput("name")
	rgb, err := g.CallMapping("colors", layout.StructRef(map[string]*layout.RefValue{
		"name": layout.SymbolRef(name),
	}))
	require.NoError(t, err)
	require.Equal(t, layout.Struct, rgb.Kind)
	require.Len(t, rgb.Fields, 3)

	// one CallMapping node plus one load per value slot
	require.Len(t, g.Nodes(), 4)
	require.IsType(t, &CallMapping{}, g.nodes[0].Op)
	require.IsType(t, &LoadMappingValue{}, g.nodes[1].Op)
	require.True(t, g.TypeOf(types.Node(0)).IsPtr())
	require.Equal(t, []string{"Key error calling mapping colors"}, g.Errors())

	require.NoError(t, g.Output(rgb, g.Mappings()["colors"].ValueLayout()))
	require.NoError(t, g.RunChecks())
}

func TestMappingDefaultAndContains(t *testing.T) {
	g := New()
	require.NoError(t, g.InsertMapping("lookup",
		layout.NewScalar(), layout.NewScalar(),
		[]Entry{{Key: 1.0, Value: 10.0}}))

	x := g.ScalarInput("x")
	v, err := g.CallMappingDefault("lookup",
		layout.ScalarRef(x), layout.ScalarRef(types.FloatConst(-1)))
	require.NoError(t, err)
	require.Equal(t, layout.Scalar, v.Kind)
	require.IsType(t, &LoadOrDefaultMappingValue{}, g.nodes[1].Op)

	has, err := g.MappingContains("lookup", layout.ScalarRef(x))
	require.NoError(t, err)
	require.Equal(t, layout.Bool, has.Kind)
	require.Equal(t, types.BoolType, g.TypeOf(has.Ref))

	_, err = g.CallMapping("absent", layout.ScalarRef(x))
	require.Error(t, err)
}

func TestResourceHelpers(t *testing.T) {
	g := New()
	require.NoError(t, g.InsertResource("halver", resource.NewContainer(resource.NewDivider(2))))
	require.Error(t, g.InsertResource("halver", resource.NewContainer(resource.NewDivider(2))))

	x := g.ScalarInput("x")
	out, err := g.CallResource("halver", "get", layout.StructRef(map[string]*layout.RefValue{
		"x": layout.ScalarRef(x),
	}))
	require.NoError(t, err)
	require.Equal(t, layout.Scalar, out.Kind)

	require.Len(t, g.Nodes(), 2)
	require.IsType(t, &CallResource{}, g.nodes[0].Op)
	require.IsType(t, &LoadMethodOutput{}, g.nodes[1].Op)

	require.NoError(t, g.Output(out, layout.NewScalar()))
	require.NoError(t, g.RunChecks())

	_, err = g.CallResource("halver", "absent", layout.UnitRef())
	require.Error(t, err)
	_, err = g.CallResource("absent", "get", layout.UnitRef())
	require.Error(t, err)
}

func TestListOps(t *testing.T) {
	g := New()
	xs := g.VecInput("xs", 3)
	i := g.ScalarInput("i")

	lst, err := g.Insert(&List{Element: types.FloatType, NElements: 3}, xs)
	require.NoError(t, err)
	require.Equal(t, types.PtrType(0), g.TypeOf(lst))

	errorID := g.PushError("index out of bounds")
	y, err := g.Insert(&Index{Element: types.FloatType, NElements: 3, ErrorID: errorID},
		[]types.Ref{lst, i})
	require.NoError(t, err)
	require.Equal(t, types.FloatType, g.TypeOf(y))

	pos, err := g.Insert(&IndexOf{Element: types.FloatType, NElements: 3},
		[]types.Ref{lst, xs[0]})
	require.NoError(t, err)
	require.Equal(t, types.FloatType, g.TypeOf(pos))

	// length mismatch rejected
	_, err = g.Insert(&Index{Element: types.FloatType, NElements: 2, ErrorID: errorID},
		[]types.Ref{lst, i})
	require.Error(t, err)

	// the pointer origin must be a list
	c, err := g.Insert(&Add{}, []types.Ref{i, i})
	require.NoError(t, err)
	_, err = g.Insert(&Index{Element: types.FloatType, NElements: 3, ErrorID: errorID},
		[]types.Ref{c, i})
	require.Error(t, err)
}

func TestCloneIsolation(t *testing.T) {
	g := New()
	s := g.SymbolInput("s")
	_, err := g.Insert(&Eq{}, []types.Ref{s, s})
	require.NoError(t, err)

	c := g.Clone()
	c.nodes[0].Op.(*Eq).Operand = types.FloatType
	c.nodes[0].Args[0] = types.Node(0)
	c.PushSymbol("only-in-clone")

	require.Equal(t, types.SymbolType, g.nodes[0].Op.(*Eq).Operand)
	require.Equal(t, types.Input(0), g.nodes[0].Args[0])
	require.Equal(t, 0, g.Symbols().Len())
}

func TestConst(t *testing.T) {
	g := New()
	r, err := g.Const(1.5)
	require.NoError(t, err)
	require.Equal(t, types.FloatConst(1.5), r)

	r, err = g.Const(2)
	require.NoError(t, err)
	require.Equal(t, types.FloatConst(2), r)

	r, err = g.Const(true)
	require.NoError(t, err)
	require.Equal(t, types.BoolConst(true), r)

	r, err = g.Const(time.UnixMicro(123).UTC())
	require.NoError(t, err)
	require.Equal(t, types.DateTimeConst(123), r)

	_, err = g.Const("nope")
	require.Error(t, err)
}

func TestGraphNames(t *testing.T) {
	a, b := New(), New()
	require.NotEqual(t, a.Name(), b.Name())
	require.Equal(t, "custom", NewWithName("custom").Name())
}
