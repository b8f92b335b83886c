package pfunc

import (
	"math"
	"testing"

	"github.com/mna/jyafn/lang/types"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	for _, name := range []string{
		"sqrt", "exp", "ln", "pow", "sin", "cos", "tan",
		"asin", "acos", "atan", "sinh", "cosh", "tanh",
		"asinh", "acosh", "atanh", "floor", "ceil", "round", "trunc", "rem",
	} {
		p, ok := Get(name)
		require.True(t, ok, "missing builtin %s", name)
		require.NotZero(t, p.Location())
		require.Equal(t, types.FloatType, p.Returns())
	}

	sqrt, _ := Get("sqrt")
	require.Equal(t, []types.Type{types.FloatType}, sqrt.Signature())
	pow, _ := Get("pow")
	require.Equal(t, []types.Type{types.FloatType, types.FloatType}, pow.Signature())
}

func TestConstEval(t *testing.T) {
	sqrt, _ := Get("sqrt")
	v, ok := sqrt.TryConstEval([]float64{4})
	require.True(t, ok)
	require.Equal(t, 2.0, v)

	v, ok = sqrt.TryConstEval([]float64{-1})
	require.True(t, ok)
	require.True(t, math.IsNaN(v))

	rem, _ := Get("rem")
	v, ok = rem.TryConstEval([]float64{7, 3})
	require.True(t, ok)
	require.Equal(t, 1.0, v)
}

func TestInscribe(t *testing.T) {
	double := func(x float64) float64 { return 2 * x }
	require.NoError(t, Inscribe("test_double", double, []types.Type{types.FloatType}, types.FloatType, nil))

	p, ok := Get("test_double")
	require.True(t, ok)
	_, ok = p.TryConstEval([]float64{1})
	require.False(t, ok)

	// duplicate name is rejected
	require.Error(t, Inscribe("test_double", double, []types.Type{types.FloatType}, types.FloatType, nil))
	require.Error(t, Inscribe("sqrt", double, []types.Type{types.FloatType}, types.FloatType, nil))
}

func TestGetUnknown(t *testing.T) {
	_, ok := Get("no_such_fn")
	require.False(t, ok)
}
