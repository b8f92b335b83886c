package layout

import (
	"encoding/json"
	"fmt"
)

// The JSON form of a layout: the payload-free shapes are plain strings
// ("unit", "scalar", "bool", "symbol"); datetime, struct and list carry
// their payload under a single-key object. Struct fields are a list of
// name/layout pairs, preserving declaration order.

type jsonField struct {
	Name   string  `json:"name"`
	Layout *Layout `json:"layout"`
}

type jsonList struct {
	Elem *Layout `json:"elem"`
	Size int     `json:"size"`
}

// MarshalJSON implements json.Marshaler.
func (l *Layout) MarshalJSON() ([]byte, error) {
	switch l.kind() {
	case Unit:
		return json.Marshal("unit")
	case Scalar:
		return json.Marshal("scalar")
	case Bool:
		return json.Marshal("bool")
	case Symbol:
		return json.Marshal("symbol")
	case DateTime:
		return json.Marshal(map[string]string{"datetime": l.Format})
	case Struct:
		fields := make([]jsonField, len(l.Fields))
		for i, f := range l.Fields {
			fields[i] = jsonField{Name: f.Name, Layout: f.Layout}
		}
		return json.Marshal(map[string][]jsonField{"struct": fields})
	case List:
		return json.Marshal(map[string]jsonList{"list": {Elem: l.Elem, Size: l.Len}})
	}
	return nil, fmt.Errorf("cannot marshal layout kind %d", l.Kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "unit":
			*l = Layout{Kind: Unit}
		case "scalar":
			*l = Layout{Kind: Scalar}
		case "bool":
			*l = Layout{Kind: Bool}
		case "symbol":
			*l = Layout{Kind: Symbol}
		default:
			return fmt.Errorf("unknown layout %q", s)
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid layout document: %w", err)
	}
	if raw, ok := obj["datetime"]; ok {
		var format string
		if err := json.Unmarshal(raw, &format); err != nil {
			return err
		}
		*l = Layout{Kind: DateTime, Format: format}
		return nil
	}
	if raw, ok := obj["struct"]; ok {
		var fields []jsonField
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		st := Layout{Kind: Struct}
		for _, f := range fields {
			st.Fields = append(st.Fields, Field{Name: f.Name, Layout: f.Layout})
		}
		*l = st
		return nil
	}
	if raw, ok := obj["list"]; ok {
		var lst jsonList
		if err := json.Unmarshal(raw, &lst); err != nil {
			return err
		}
		*l = Layout{Kind: List, Elem: lst.Elem, Len: lst.Size}
		return nil
	}
	return fmt.Errorf("unknown layout document %s", data)
}
