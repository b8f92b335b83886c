package layout

// A Decoder builds a host value from the packed output of a call. The default
// is ValueDecoder; callers needing a different target shape supply their own.
type Decoder func(l *Layout, syms Sym, vis *Visitor) any

// ValueDecoder decodes into the shapes encoding/json produces: float64,
// bool, string, []any and map[string]any. Unit decodes to nil.
func ValueDecoder(l *Layout, syms Sym, vis *Visitor) any {
	switch l.kind() {
	case Unit:
		return nil
	case Scalar:
		return vis.Pop()
	case Bool:
		return vis.PopInt() != 0
	case DateTime:
		return FormatDateTime(vis.PopInt(), l.Format)
	case Symbol:
		name, ok := syms.Get(int(vis.PopInt()))
		if !ok {
			name = "<unknown symbol>"
		}
		return name
	case Struct:
		m := make(map[string]any, len(l.Fields))
		for _, f := range l.Fields {
			m[f.Name] = ValueDecoder(f.Layout, syms, vis)
		}
		return m
	case List:
		items := make([]any, 0, l.Len)
		for i := 0; i < l.Len; i++ {
			items = append(items, ValueDecoder(l.Elem, syms, vis))
		}
		return items
	}
	return nil
}
