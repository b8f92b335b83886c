package resource

import (
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/mna/jyafn/lang/fnerror"
)

// Input is a read-only view over the packed input buffer of a method call.
type Input struct {
	buf []uint64
}

// Slots returns the number of input slots.
func (in Input) Slots() int { return len(in.buf) }

// GetFloat reads slot i as a scalar.
func (in Input) GetFloat(i int) float64 {
	return *(*float64)(unsafe.Pointer(&in.buf[i]))
}

// GetInt reads slot i as an integer.
func (in Input) GetInt(i int) int64 { return int64(in.buf[i]) }

// OutputBuilder fills the packed output buffer of a method call.
type OutputBuilder struct {
	buf []uint64
	pos int
}

// PushFloat appends a scalar slot.
func (out *OutputBuilder) PushFloat(v float64) {
	out.buf[out.pos] = *(*uint64)(unsafe.Pointer(&v))
	out.pos++
}

// PushInt appends an integer slot.
func (out *OutputBuilder) PushInt(v int64) {
	out.buf[out.pos] = uint64(v)
	out.pos++
}

// MethodFunc is the Go shape of an in-process resource method.
type MethodFunc func(in Input, out *OutputBuilder) error

// methodShim adapts a MethodFunc to the raw resource-method ABI. It converts
// the raw buffers, turns a returned error into an error object handle and
// converts panics into the standard "method panicked" error, since unwinding
// across the boundary is undefined behavior.
func methodShim(fn MethodFunc) func(container, inPtr uintptr, inSlots uint64, outPtr uintptr, outSlots uint64) uintptr {
	return func(container, inPtr uintptr, inSlots uint64, outPtr uintptr, outSlots uint64) (status uintptr) {
		defer func() {
			if recover() != nil {
				status = fnerror.New("method panicked")
			}
		}()

		var in Input
		if inPtr != 0 && inSlots > 0 {
			// Safety: pointer and length come from emitted code.
			in.buf = unsafe.Slice((*uint64)(unsafe.Pointer(inPtr)), inSlots)
		}
		out := &OutputBuilder{}
		if outPtr != 0 && outSlots > 0 {
			// Safety: pointer and length come from emitted code.
			out.buf = unsafe.Slice((*uint64)(unsafe.Pointer(outPtr)), outSlots)
		}

		if err := fn(in, out); err != nil {
			return fnerror.New(err.Error())
		}
		return 0
	}
}

// MethodCallback wraps an in-process method into a C-callable pointer with
// the resource-method ABI.
func MethodCallback(fn MethodFunc) uintptr {
	return purego.NewCallback(methodShim(fn))
}
