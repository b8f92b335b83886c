package layout

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// An EncodeError reports an input value that does not fit the declared
// layout.
type EncodeError struct {
	Msg string
}

func (e *EncodeError) Error() string { return e.Msg }

func encodeErrorf(format string, args ...any) error {
	return &EncodeError{Msg: fmt.Sprintf(format, args...)}
}

// Encode serializes value into the visitor according to the layout. The value
// follows the shapes encoding/json produces: float64, bool, string,
// json.Number, []any and map[string]any. Strings encode into scalar slots
// when they parse as numbers, into datetime slots through the layout's
// format, and into symbol slots through the symbol table (interning new names
// into syms, typically a View).
func Encode(value any, l *Layout, syms Sym, vis *Visitor) error {
	switch l.kind() {
	case Unit:
		if value != nil {
			return encodeErrorf("incompatible layout unit for %v", value)
		}
	case Scalar:
		switch v := value.(type) {
		case float64:
			vis.Push(v)
		case int:
			vis.Push(float64(v))
		case int64:
			vis.Push(float64(v))
		case bool:
			if v {
				vis.Push(1)
			} else {
				vis.Push(0)
			}
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return encodeErrorf("%v cannot be represented as 64 bit float", v)
			}
			vis.Push(f)
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return encodeErrorf("incompatible layout f64 for %q", v)
			}
			vis.Push(f)
		default:
			return encodeErrorf("incompatible layout f64 for %v", value)
		}
	case Bool:
		b, ok := value.(bool)
		if !ok {
			return encodeErrorf("incompatible layout bool for %v", value)
		}
		if b {
			vis.PushInt(1)
		} else {
			vis.PushInt(0)
		}
	case DateTime:
		s, ok := value.(string)
		if !ok {
			return encodeErrorf("incompatible layout datetime for %v", value)
		}
		micros, err := ParseDateTime(s, l.Format)
		if err != nil {
			return encodeErrorf("parsing %q with format %q: %v", s, l.Format, err)
		}
		vis.PushInt(micros)
	case Symbol:
		s, ok := value.(string)
		if !ok {
			return encodeErrorf("incompatible layout symbol for %v", value)
		}
		vis.PushInt(int64(syms.Find(s)))
	case Struct:
		m, ok := value.(map[string]any)
		if !ok {
			return encodeErrorf("incompatible layout %s for %v", l, value)
		}
		for _, f := range l.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return encodeErrorf("missing field %q in %v", f.Name, value)
			}
			if err := Encode(fv, f.Layout, syms, vis); err != nil {
				return err
			}
		}
		if len(m) > len(l.Fields) {
			declared := make(map[string]bool, len(l.Fields))
			for _, f := range l.Fields {
				declared[f.Name] = true
			}
			for name := range m {
				if !declared[name] {
					return encodeErrorf("unknown field %q for layout %s", name, l)
				}
			}
		}
	case List:
		items, ok := value.([]any)
		if !ok {
			// a []float64 is common enough from host code to accept directly
			if fs, isf := value.([]float64); isf {
				items = make([]any, len(fs))
				for i, f := range fs {
					items[i] = f
				}
				ok = true
			}
		}
		if !ok {
			return encodeErrorf("incompatible layout %s for %v", l, value)
		}
		if len(items) != l.Len {
			return encodeErrorf("expected array of size %d, got array of size %d", l.Len, len(items))
		}
		for _, item := range items {
			if err := Encode(item, l.Elem, syms, vis); err != nil {
				return err
			}
		}
	}
	return nil
}
