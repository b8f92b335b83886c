// Package pfunc maintains the process-wide registry of predeclared numeric
// primitives callable from graphs. The registry is initialized once with the
// builtin set; hosts may inscribe additional functions, and entries are
// immutable after insertion. Each pfunc carries a C-callable address that the
// compiler embeds as an immediate in emitted calls, and optionally a
// constant-evaluation closure used by the folding pass.
package pfunc

import (
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/mna/jyafn/lang/types"
)

// A ConstEval evaluates a pfunc at compile time over constant arguments. It
// returns false when the result cannot be determined.
type ConstEval func(args []float64) (float64, bool)

// A PFunc is a registered primitive.
type PFunc struct {
	name      string
	addr      uintptr
	signature []types.Type
	returns   types.Type
	constEval ConstEval
}

// Name returns the registered name.
func (p *PFunc) Name() string { return p.name }

// Signature returns the argument types. The returned slice must not be
// mutated.
func (p *PFunc) Signature() []types.Type { return p.signature }

// Returns returns the result type.
func (p *PFunc) Returns() types.Type { return p.returns }

// Location returns the C-callable address of the primitive.
func (p *PFunc) Location() uintptr { return p.addr }

// TryConstEval applies the constant-evaluation closure, if any.
func (p *PFunc) TryConstEval(args []float64) (float64, bool) {
	if p.constEval == nil {
		return 0, false
	}
	return p.constEval(args)
}

var (
	mu    sync.RWMutex
	funcs map[string]*PFunc
	once  sync.Once
)

// Inscribe registers a primitive under name. The fn must be a Go function
// whose arity matches the signature; it is made C-callable through a
// callback. Inscribing a name twice is an error.
func Inscribe(name string, fn any, signature []types.Type, returns types.Type, constEval ConstEval) error {
	once.Do(initBuiltins)
	mu.Lock()
	defer mu.Unlock()
	return inscribeLocked(name, fn, signature, returns, constEval)
}

func inscribeLocked(name string, fn any, signature []types.Type, returns types.Type, constEval ConstEval) error {
	if _, ok := funcs[name]; ok {
		return fmt.Errorf("function of name %s already inscribed", name)
	}
	sig := make([]types.Type, len(signature))
	copy(sig, signature)
	funcs[name] = &PFunc{
		name:      name,
		addr:      purego.NewCallback(fn),
		signature: sig,
		returns:   returns,
		constEval: constEval,
	}
	return nil
}

// Get returns the primitive registered under name.
func Get(name string) (*PFunc, bool) {
	once.Do(initBuiltins)
	mu.RLock()
	defer mu.RUnlock()
	p, ok := funcs[name]
	return p, ok
}

func initBuiltins() {
	funcs = make(map[string]*PFunc)

	unary := func(name string, fn func(float64) float64) {
		err := inscribeLocked(name, fn, []types.Type{types.FloatType}, types.FloatType,
			func(args []float64) (float64, bool) { return fn(args[0]), true })
		if err != nil {
			panic(err)
		}
	}
	binary := func(name string, fn func(float64, float64) float64) {
		err := inscribeLocked(name, fn, []types.Type{types.FloatType, types.FloatType}, types.FloatType,
			func(args []float64) (float64, bool) { return fn(args[0], args[1]), true })
		if err != nil {
			panic(err)
		}
	}

	unary("sqrt", math.Sqrt)
	unary("exp", math.Exp)
	unary("ln", math.Log)
	binary("pow", math.Pow)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("sinh", math.Sinh)
	unary("cosh", math.Cosh)
	unary("tanh", math.Tanh)
	unary("asinh", math.Asinh)
	unary("acosh", math.Acosh)
	unary("atanh", math.Atanh)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("trunc", math.Trunc)
	// rem lowers the Rem op, which has no IR instruction for floats
	binary("rem", math.Mod)
}
