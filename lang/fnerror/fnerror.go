// Package fnerror implements the error objects passed back from compiled
// code through the 64-bit status channel. A status of 0 means success; any
// other value identifies an error whose ownership transfers to the caller of
// Take.
//
// Two kinds of values travel on the channel. Errors raised by emitted code
// (asserts, bound checks, mapping misses) are created through the MakeStatic
// entry point, whose address is baked into the compiled module; these are
// host-owned and identified by odd handles, which can never collide with an
// aligned pointer. Errors raised by extension methods are real pointers to a
// foreign FnError struct, laid out as { const char *msg; void (*drop)(FnError*) };
// Take reads the message and invokes the drop function, if any.
package fnerror

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// handleBase keeps host handles clear of the legacy status range, where
// values 1..len(errors) index the graph's error table directly.
const handleBase = 1 << 12

var (
	mu      sync.Mutex
	nextID  uintptr = handleBase
	pending         = make(map[uintptr]string)

	cbOnce sync.Once
	cbAddr uintptr
)

// New registers a host-owned error with the given message and returns its
// handle.
func New(msg string) uintptr {
	mu.Lock()
	defer mu.Unlock()
	nextID++
	h := nextID<<1 | 1
	pending[h] = msg
	return h
}

// MakeStatic wraps the nul-terminated message at msgAddr into a host-owned
// error and returns its handle. It is exported to compiled code through
// MakeStaticAddr and must not panic across that boundary.
func MakeStatic(msgAddr uintptr) (h uintptr) {
	defer func() {
		// never unwind into native code
		if recover() != nil {
			h = New("error construction panicked")
		}
	}()
	return New(GoString(msgAddr))
}

// MakeStaticAddr returns the C-callable address of MakeStatic, for embedding
// as an immediate in emitted code.
func MakeStaticAddr() uintptr {
	cbOnce.Do(func() {
		cbAddr = purego.NewCallback(func(msgAddr uintptr) uintptr {
			return MakeStatic(msgAddr)
		})
	})
	return cbAddr
}

// foreign mirrors the extension-side FnError layout.
type foreign struct {
	msg  uintptr
	drop uintptr
}

// Take consumes a non-zero status and returns its message. Host handles are
// removed from the registry; foreign pointers are read and released through
// their drop function. Unknown values produce a generic message.
func Take(status uintptr) string {
	if status == 0 {
		return ""
	}
	if status&1 == 1 {
		mu.Lock()
		msg, ok := pending[status]
		delete(pending, status)
		mu.Unlock()
		if !ok {
			return fmt.Sprintf("unknown error of id %d", status)
		}
		return msg
	}

	// Safety: an even non-zero status is a pointer to a foreign FnError,
	// owned by this call.
	fe := (*foreign)(unsafe.Pointer(status))
	msg := GoString(fe.msg)
	if fe.drop != 0 {
		var drop func(uintptr)
		purego.RegisterFunc(&drop, fe.drop)
		drop(status)
	}
	return msg
}

// GoString copies the nul-terminated string at addr. A zero addr yields the
// empty string.
func GoString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var n int
	for {
		// Safety: the string is nul-terminated by contract.
		if *(*byte)(unsafe.Pointer(addr + uintptr(n))) == 0 {
			break
		}
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}
