// Package function compiles graphs into native code and exposes the typed
// invocation runtime. Compilation pipes the rendered IR module through the
// qbe backend, the system assembler and the linker, then maps the resulting
// image into executable memory and binds the entry point. A compiled
// Function is safe for concurrent invocation.
package function

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"

	"github.com/mna/jyafn/lang/fnerror"
	"github.com/mna/jyafn/lang/graph"
	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/types"
)

// entrySymbols are the names tried for the invocation entry point, in order.
var entrySymbols = []string{"run", "_run"}

// A LoaderError reports a produced object that could not be parsed or an
// entry symbol that could not be located.
type LoaderError struct {
	Msg string
}

func (e *LoaderError) Error() string { return "loader error: " + e.Msg }

// A StatusError carries the error message raised by a compiled function at
// run time.
type StatusError struct {
	Msg string
}

func (e *StatusError) Error() string { return "function raised: " + e.Msg }

// scratch is the reusable per-invocation buffer pair. A pool stands in for
// thread-local storage: concurrent evals never share a scratch.
type scratch struct {
	in  *layout.Visitor
	out *layout.Visitor
}

// A Function is the compiled artifact: the graph it came from (for layouts,
// symbols and error messages), the executable mapping, and the bound entry
// point.
type Function struct {
	graph        *graph.Graph
	code         []byte // executable mapping; nil after Close
	inputLayout  *layout.Layout
	outputLayout *layout.Layout
	inputSize    int // bytes
	outputSize   int // bytes
	fnAddr       uintptr
	call         func(in, out uintptr) uint64
	scratch      sync.Pool

	mu sync.Mutex // guards code for Close
}

// Compile lowers the graph and produces an invocable function. The source
// graph is cloned for optimization and left unchanged.
func Compile(g *graph.Graph) (*Function, error) {
	module, err := g.Render()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	assembly, err := createAssembly(cfg, module.Render())
	if err != nil {
		return nil, err
	}
	object, err := assemble(cfg, assembly)
	if err != nil {
		return nil, err
	}
	shared, err := link(cfg, object)
	if err != nil {
		return nil, err
	}

	return initFunction(g, shared)
}

// Load reads a graph bundle and compiles it.
func Load(r io.ReaderAt, size int64) (*Function, error) {
	g, err := graph.Load(r, size)
	if err != nil {
		return nil, err
	}
	return Compile(g)
}

// initFunction copies the shared object into an anonymous executable
// mapping and binds the entry point.
func initFunction(g *graph.Graph, shared []byte) (*Function, error) {
	offset, err := entryOffset(shared)
	if err != nil {
		return nil, err
	}

	code, err := unix.Mmap(-1, 0, len(shared),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &LoaderError{Msg: fmt.Sprintf("mapping code: %v", err)}
	}
	copy(code, shared)
	if err := unix.Mprotect(code, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(code)
		return nil, &LoaderError{Msg: fmt.Sprintf("making code executable: %v", err)}
	}

	f := &Function{
		graph:        g,
		code:         code,
		inputLayout:  g.InputLayout(),
		outputLayout: g.OutputLayout(),
		inputSize:    g.InputLayout().Size() * types.SlotSize,
		outputSize:   g.OutputLayout().Size() * types.SlotSize,
		fnAddr:       codeAddr(code) + offset,
	}
	purego.RegisterFunc(&f.call, f.fnAddr)
	f.scratch.New = func() any {
		return &scratch{
			in:  layout.NewVisitor(f.inputSize / types.SlotSize),
			out: layout.NewVisitor(f.outputSize / types.SlotSize),
		}
	}
	return f, nil
}

// entryOffset locates the entry symbol in the shared object and returns its
// offset from the start of the file image.
func entryOffset(shared []byte) (uintptr, error) {
	obj, err := elf.NewFile(bytes.NewReader(shared))
	if err != nil {
		return 0, &LoaderError{Msg: fmt.Sprintf("parsing object: %v", err)}
	}
	defer obj.Close()

	syms, err := obj.Symbols()
	if err != nil {
		syms, err = obj.DynamicSymbols()
		if err != nil {
			return 0, &LoaderError{Msg: fmt.Sprintf("reading symbols: %v", err)}
		}
	}

	for _, name := range entrySymbols {
		for _, sym := range syms {
			if sym.Name != name || sym.Section == elf.SHN_UNDEF {
				continue
			}
			idx := int(sym.Section)
			if idx < 0 || idx >= len(obj.Sections) {
				continue
			}
			sec := obj.Sections[idx]
			return uintptr(sec.Offset + (sym.Value - sec.Addr)), nil
		}
	}
	return 0, &LoaderError{Msg: "entry symbol not found"}
}

// Graph returns the graph the function was compiled from.
func (f *Function) Graph() *graph.Graph { return f.graph }

// InputSize returns the input buffer size in bytes.
func (f *Function) InputSize() int { return f.inputSize }

// OutputSize returns the output buffer size in bytes.
func (f *Function) OutputSize() int { return f.outputSize }

// InputLayout returns the declared input layout.
func (f *Function) InputLayout() *layout.Layout { return f.inputLayout }

// OutputLayout returns the declared output layout.
func (f *Function) OutputLayout() *layout.Layout { return f.outputLayout }

// FnAddr returns the entry point address.
func (f *Function) FnAddr() uintptr { return f.fnAddr }

// Close unmaps the executable memory. The function must not be invoked
// afterwards.
func (f *Function) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.code == nil {
		return nil
	}
	code := f.code
	f.code = nil
	return unix.Munmap(code)
}

// CallRaw invokes the compiled code over packed buffers. The buffer sizes
// must equal InputSize and OutputSize. It returns the raw status: 0 on
// success, otherwise an error object pointer owned by the caller.
func (f *Function) CallRaw(in []byte, out []byte) uint64 {
	if len(in) != f.inputSize {
		panic(fmt.Sprintf("input size mismatch: %d != %d", len(in), f.inputSize))
	}
	if len(out) != f.outputSize {
		panic(fmt.Sprintf("output size mismatch: %d != %d", len(out), f.outputSize))
	}
	return f.call(bufAddr(in), bufAddr(out))
}

// statusToError converts a non-zero status to an error. Small statuses
// follow the older convention of indexing the graph's error table at
// status-1; anything else is an error object consumed through fnerror.Take.
func (f *Function) statusToError(status uint64) error {
	if status == 0 {
		return nil
	}
	errors := f.graph.Errors()
	if status <= uint64(len(errors)) {
		return &StatusError{Msg: errors[status-1]}
	}
	return &StatusError{Msg: fnerror.Take(uintptr(status))}
}

// EvalRaw invokes the function over a packed input buffer and returns the
// packed output buffer.
func (f *Function) EvalRaw(in []byte) ([]byte, error) {
	out := make([]byte, f.outputSize)
	if err := f.statusToError(f.CallRaw(in, out)); err != nil {
		return nil, err
	}
	return out, nil
}

// EvalWithDecoder encodes input against the input layout, invokes the
// compiled code, and decodes the output with dec. Symbols unknown to the
// graph are interned into a per-call view, so encoding never mutates the
// graph.
func (f *Function) EvalWithDecoder(input any, dec layout.Decoder) (any, error) {
	s := f.scratch.Get().(*scratch)
	defer f.scratch.Put(s)
	s.in.Reset()
	s.out.Reset()

	view := layout.NewView(f.graph.Symbols())
	if err := layout.Encode(input, f.inputLayout, view, s.in); err != nil {
		return nil, err
	}

	if err := f.statusToError(f.call(bufAddr(s.in.Bytes()), bufAddr(s.out.Bytes()))); err != nil {
		return nil, err
	}

	s.out.Reset()
	return dec(f.outputLayout, view, s.out), nil
}

// Eval invokes the function over a JSON-shaped input value and returns the
// JSON-shaped output.
func (f *Function) Eval(input any) (any, error) {
	return f.EvalWithDecoder(input, layout.ValueDecoder)
}
