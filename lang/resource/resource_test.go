package resource

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"unsafe"

	"github.com/mna/jyafn/lang/fnerror"
	"github.com/mna/jyafn/lang/layout"
	"github.com/stretchr/testify/require"
)

func TestDividerRoundTrip(t *testing.T) {
	d := NewDivider(2)
	dump, err := d.Dump()
	require.NoError(t, err)
	require.Equal(t, "2", string(dump))

	r, err := DividerType{}.FromBytes(dump)
	require.NoError(t, err)
	require.NotZero(t, r.RawPtr())

	_, err = DividerType{}.FromBytes([]byte("nope"))
	require.Error(t, err)
}

func TestDividerMethods(t *testing.T) {
	d := NewDivider(2)

	m, ok := d.GetMethod("get")
	require.True(t, ok)
	require.NotZero(t, m.FnPtr)
	require.Equal(t, 1, m.InputLayout.Size())
	require.True(t, m.OutputLayout.Equal(layout.NewScalar()))

	_, ok = d.GetMethod("absent")
	require.False(t, ok)

	// calling twice yields the same pinned method pointers
	again, _ := d.GetMethod("get")
	require.Equal(t, m.FnPtr, again.FnPtr)
}

func shimBuffers(in, out []uint64) (inPtr uintptr, inSlots uint64, outPtr uintptr, outSlots uint64) {
	if len(in) > 0 {
		inPtr = uintptr(unsafe.Pointer(&in[0]))
	}
	if len(out) > 0 {
		outPtr = uintptr(unsafe.Pointer(&out[0]))
	}
	return inPtr, uint64(len(in)), outPtr, uint64(len(out))
}

func TestMethodShim(t *testing.T) {
	shim := methodShim(func(in Input, out *OutputBuilder) error {
		require.Equal(t, 2, in.Slots())
		out.PushFloat(in.GetFloat(0) + in.GetFloat(1))
		return nil
	})

	in := []uint64{math.Float64bits(5), math.Float64bits(6)}
	out := make([]uint64, 1)
	inPtr, inSlots, outPtr, outSlots := shimBuffers(in, out)
	status := shim(0, inPtr, inSlots, outPtr, outSlots)
	require.Zero(t, status)
	require.Equal(t, math.Float64bits(11), out[0])
}

func TestMethodShimError(t *testing.T) {
	shim := methodShim(func(in Input, out *OutputBuilder) error {
		return fmt.Errorf("result was not finite")
	})
	status := shim(0, 0, 0, 0, 0)
	require.NotZero(t, status)
	require.Equal(t, "result was not finite", fnerror.Take(status))
}

func TestMethodShimPanics(t *testing.T) {
	shim := methodShim(func(in Input, out *OutputBuilder) error {
		panic("panic!")
	})
	status := shim(0, 0, 0, 0, 0)
	require.NotZero(t, status)
	require.Equal(t, "method panicked", fnerror.Take(status))
}

func TestContainer(t *testing.T) {
	c := NewContainer(NewDivider(4))
	require.True(t, c.IsInitialized())
	require.NotZero(t, c.RawPtr())
	_, ok := c.GetMethod("get")
	require.True(t, ok)

	shell := UninitializedContainer(DividerType{})
	require.False(t, shell.IsInitialized())
	require.Zero(t, shell.RawPtr())
	_, ok = shell.GetMethod("get")
	require.False(t, ok)
	_, err := shell.Dump()
	require.Error(t, err)

	require.NoError(t, shell.Attach([]byte("4")))
	require.True(t, shell.IsInitialized())
}

func TestTypeRegistry(t *testing.T) {
	ty, err := TypeFromTag("divider", nil)
	require.NoError(t, err)
	require.Equal(t, "divider", ty.Tag())

	_, err = TypeFromTag("no_such_type", nil)
	require.Error(t, err)

	// external config round-trips through the registry
	ext := &External{Extension: "lightgbm", VersionReq: "^0.2", Resource: "Lightgbm"}
	config, err := ext.Config()
	require.NoError(t, err)
	ty, err = TypeFromTag("external", config)
	require.NoError(t, err)
	var decoded External
	raw, err := ty.Config()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, *ext, decoded)

	require.Error(t, RegisterType("divider", nil))
}
