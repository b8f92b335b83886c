package fnerror

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestNewTake(t *testing.T) {
	h := New("x must be non-negative")
	require.NotZero(t, h)
	require.Equal(t, uintptr(1), h&1, "host handles are odd")
	require.Equal(t, "x must be non-negative", Take(h))

	// ownership transferred: a second take does not find it
	require.Contains(t, Take(h), "unknown error")
}

func TestTakeZero(t *testing.T) {
	require.Equal(t, "", Take(0))
}

func TestMakeStatic(t *testing.T) {
	msg := append([]byte("index out of bounds"), 0)
	h := MakeStatic(uintptr(unsafe.Pointer(&msg[0])))
	require.Equal(t, "index out of bounds", Take(h))
}

func TestGoString(t *testing.T) {
	require.Equal(t, "", GoString(0))
	buf := append([]byte("hello"), 0)
	require.Equal(t, "hello", GoString(uintptr(unsafe.Pointer(&buf[0]))))
	empty := []byte{0}
	require.Equal(t, "", GoString(uintptr(unsafe.Pointer(&empty[0]))))
}

func TestHandlesAboveLegacyRange(t *testing.T) {
	h := New("boom")
	require.Greater(t, uint64(h), uint64(handleBase))
	Take(h)
}
