package graph

import (
	"strings"
	"testing"

	"github.com/kylelemons/godebug/diff"
	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/types"
	"github.com/stretchr/testify/require"
)

func TestRenderAddition(t *testing.T) {
	g := New()
	a := g.ScalarInput("a")
	b := g.ScalarInput("b")
	c, err := g.Insert(&Add{}, []types.Ref{a, b})
	require.NoError(t, err)
	d, err := g.Insert(&Add{}, []types.Ref{c, types.FloatConst(1)})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(d), layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)

	want := strings.Join([]string{
		"export function l $run(l %in, l %out) {",
		"@start",
		"\t%i0 =d loadd %in",
		"\t%in =l add 8, %in",
		"\t%i1 =d loadd %in",
		"\t%in =l add 8, %in",
		"\t%n0 =d add %i0, %i1",
		"\t%n1 =d add %n0, d_1",
		"\tstored %n1, %out",
		"\t%out =l add 8, %out",
		"\tret 0",
		"}",
		"",
		"",
	}, "\n")
	got := module.Render()
	if got != want {
		t.Fatalf("rendered module differs:\n%s", diff.Diff(want, got))
	}
}

func TestRenderConditionalRegions(t *testing.T) {
	g := New()
	x := g.ScalarInput("x")
	b, err := g.Insert(&Gt{}, []types.Ref{x, types.FloatConst(0)})
	require.NoError(t, err)
	s, err := g.Insert(&Call{Func: "sqrt"}, []types.Ref{x})
	require.NoError(t, err)
	n, err := g.Insert(&Neg{}, []types.Ref{x})
	require.NoError(t, err)
	y, err := g.Insert(&Choose{}, []types.Ref{b, s, n})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(y), layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)
	got := module.Render()

	// the conditional region wraps both sides
	require.Contains(t, got, "jnz %n0, @if.true_n3, @if.false_n3")

	// the sqrt call is emitted inside the true block only: it must not
	// execute when the condition fails
	trueBlock := got[strings.Index(got, "\n@if.true_n3\n"):strings.Index(got, "\n@if.false_n3\n")]
	require.Contains(t, trueBlock, "call")
	require.Contains(t, trueBlock, "%n3 =d copy %n1")

	falseBlock := got[strings.Index(got, "\n@if.false_n3\n"):strings.Index(got, "\n@if.end_n3\n")]
	require.NotContains(t, falseBlock, "call")
	require.Contains(t, falseBlock, "%n2 =d neg %i0")
	require.Contains(t, falseBlock, "%n3 =d copy %n2")
}

func TestRenderAssertAndErrors(t *testing.T) {
	g := New()
	x := g.ScalarInput("x")
	ok, err := g.Insert(&Ge{}, []types.Ref{x, types.FloatConst(0)})
	require.NoError(t, err)
	_, err = g.Assert(ok, "x must be non-negative")
	require.NoError(t, err)
	y, err := g.Insert(&Call{Func: "sqrt"}, []types.Ref{x})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(y), layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)
	got := module.Render()

	// the message is interned as module data and returned through the error
	// constructor on the false side
	require.Contains(t, got, `data $run.error.0 = { b "x must be non-negative", b 0 }`)
	require.Contains(t, got, "jnz %n0, @assert.if.true_n1, @assert.if.false_n1")
	require.Contains(t, got, "$run.error.0)")
	require.Contains(t, got, "ret %error_ptr_n1")
}

func TestRenderIllegalAssert(t *testing.T) {
	g := New()
	x := g.ScalarInput("x")
	lt, err := g.Insert(&Lt{}, []types.Ref{types.FloatConst(2), types.FloatConst(1)})
	require.NoError(t, err)
	and, err := g.Insert(&And{}, []types.Ref{lt, types.BoolConst(true)})
	require.NoError(t, err)
	_, err = g.Assert(and, "never holds")
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(x), layout.NewScalar()))

	// folding makes the assert argument a false constant, which is illegal
	_, err = g.Render()
	var illegal *IllegalNodeError
	require.ErrorAs(t, err, &illegal)

	// the user-visible graph is untouched
	require.Equal(t, []types.Ref{types.Node(0), types.BoolConst(true)}, g.nodes[1].Args)
}

func TestRenderMappingTrampoline(t *testing.T) {
	g := New()
	require.NoError(t, g.InsertMapping("colors",
		layout.NewStruct(layout.Field{Name: "name", Layout: layout.NewSymbol()}),
		layout.NewScalar(),
		[]Entry{{Key: map[string]any{"name": "red"}, Value: 1.0}}))

	name := g.SymbolInput("name")
	v, err := g.CallMapping("colors", layout.StructRef(map[string]*layout.RefValue{
		"name": layout.SymbolRef(name),
	}))
	require.NoError(t, err)
	require.NoError(t, g.Output(v, layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)
	got := module.Render()

	require.Contains(t, got, "call $run.mapping.colors(l %i0)")
	require.Contains(t, got, "function l $run.mapping.colors(l %i0) {")
	require.Contains(t, got, `data $run.error.0 = { b "Key error calling mapping colors", b 0 }`)
	// the mapping load tests for null before dereferencing
	require.Contains(t, got, "jnz %n0, @loadmapping.found.true_n1, @loadmapping.found.false_n1")
}

func TestRenderListBounds(t *testing.T) {
	g := New()
	xs := g.VecInput("xs", 3)
	i := g.ScalarInput("i")
	lst, err := g.Insert(&List{Element: types.FloatType, NElements: 3}, xs)
	require.NoError(t, err)
	y, err := g.Insert(
		&Index{Element: types.FloatType, NElements: 3, ErrorID: g.PushError("index out of bounds")},
		[]types.Ref{lst, i})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(y), layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)
	got := module.Render()

	require.Contains(t, got, "%n0 =l alloc8 24")
	require.Contains(t, got, "%index.displacement_n1 =l dtoui %i3")
	require.Contains(t, got, "cugel %index.displacement_n1, 3")
	require.Contains(t, got, `data $run.error.0 = { b "index out of bounds", b 0 }`)
}

func TestRenderDeadCodeDropped(t *testing.T) {
	g := New()
	x := g.ScalarInput("x")
	used, err := g.Insert(&Add{}, []types.Ref{x, x})
	require.NoError(t, err)
	_, err = g.Insert(&Call{Func: "exp"}, []types.Ref{x})
	require.NoError(t, err)
	require.NoError(t, g.Output(layout.ScalarRef(used), layout.NewScalar()))

	module, err := g.Render()
	require.NoError(t, err)
	got := module.Render()
	require.NotContains(t, got, "%n1")
}
