package resource

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/mna/jyafn/lang/layout"
)

const dividerTag = "divider"

func init() {
	err := RegisterType(dividerTag, func([]byte) (Type, error) {
		return DividerType{}, nil
	})
	if err != nil {
		panic(err)
	}
}

// DividerType is a small in-process resource type: its resources hold a
// single number and expose a "get" method dividing the input by it. It
// serves as the reference implementation of the resource contract and as a
// test double that needs no extension library.
type DividerType struct{}

var _ Type = DividerType{}

func (DividerType) Tag() string { return dividerTag }
func (DividerType) Config() ([]byte, error) { return nil, nil }

func (DividerType) FromBytes(data []byte) (Resource, error) {
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing divider payload: %w", err)
	}
	d := &Divider{numberToDivide: n}
	d.pin = pinDivider(d)
	return d, nil
}

// A Divider divides its input by a fixed number.
type Divider struct {
	numberToDivide float64
	pin            uintptr

	methodOnce sync.Once
	getMethod  *Method
	failMethod *Method
}

// NewDivider returns an initialized divider resource.
func NewDivider(numberToDivide float64) *Divider {
	d := &Divider{numberToDivide: numberToDivide}
	d.pin = pinDivider(d)
	return d
}

func (d *Divider) Type() Type { return DividerType{} }

func (d *Divider) Dump() ([]byte, error) {
	return strconv.AppendFloat(nil, d.numberToDivide, 'g', -1, 64), nil
}

func (d *Divider) Size() int { return 0 }

func (d *Divider) RawPtr() uintptr { return d.pin }

func (d *Divider) GetMethod(name string) (*Method, bool) {
	d.methodOnce.Do(func() {
		d.getMethod = &Method{
			FnPtr: MethodCallback(func(in Input, out *OutputBuilder) error {
				result := in.GetFloat(0) / d.numberToDivide
				if math.IsInf(result, 0) || math.IsNaN(result) {
					return fmt.Errorf("result was not finite")
				}
				out.PushFloat(result)
				return nil
			}),
			InputLayout: layout.NewStruct(
				layout.Field{Name: "x", Layout: layout.NewScalar()},
			),
			OutputLayout: layout.NewScalar(),
		}
		d.failMethod = &Method{
			FnPtr: MethodCallback(func(Input, *OutputBuilder) error {
				panic("panic!")
			}),
			InputLayout:  layout.NewStruct(),
			OutputLayout: layout.NewScalar(),
		}
	})
	switch name {
	case "get":
		return d.getMethod, true
	case "panic":
		return d.failMethod, true
	}
	return nil, false
}

// In-process resources need a stable non-zero value to stand for the
// resource pointer in emitted code; the methods close over the resource and
// ignore it.
var (
	dividerMu   sync.Mutex
	dividerNext uintptr
	dividerPins = make(map[uintptr]*Divider)
)

func pinDivider(d *Divider) uintptr {
	dividerMu.Lock()
	defer dividerMu.Unlock()
	dividerNext++
	dividerPins[dividerNext] = d
	return dividerNext
}
