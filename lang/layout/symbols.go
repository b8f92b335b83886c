package layout

// Sym is the symbol-resolution interface used while encoding and decoding.
// Find interns: looking up an unknown name assigns it the next free index.
type Sym interface {
	Find(name string) int
	Get(id int) (string, bool)
}

// Symbols is the append-only interning table of a graph. Identical strings
// collapse to the same index.
type Symbols struct {
	syms []string
}

var _ Sym = (*Symbols)(nil)

// Push interns name and returns its index.
func (s *Symbols) Push(name string) int {
	for i, e := range s.syms {
		if e == name {
			return i
		}
	}
	s.syms = append(s.syms, name)
	return len(s.syms) - 1
}

// Find implements Sym; it is Push under the interface's name.
func (s *Symbols) Find(name string) int { return s.Push(name) }

// Get returns the symbol at index id.
func (s *Symbols) Get(id int) (string, bool) {
	if id < 0 || id >= len(s.syms) {
		return "", false
	}
	return s.syms[id], true
}

// All returns the interned symbols in index order. The returned slice is the
// table's backing store and must not be mutated.
func (s *Symbols) All() []string { return s.syms }

// NewSymbols rebuilds a table from a serialized symbol list.
func NewSymbols(names []string) *Symbols {
	return &Symbols{syms: names}
}

// CloneTable copies the table.
func (s *Symbols) CloneTable() *Symbols {
	return &Symbols{syms: append([]string(nil), s.syms...)}
}

// Len returns the number of interned symbols.
func (s *Symbols) Len() int { return len(s.syms) }

// A View overlays transient symbols on top of a permanent table. Encoding an
// input may mention strings the graph has never seen; the view assigns them
// indices past the end of the permanent table without mutating it, and the
// decode of the same call resolves them back.
type View struct {
	top *Symbols
	new []string
}

var _ Sym = (*View)(nil)

// NewView returns a view over top with no transient symbols.
func NewView(top *Symbols) *View {
	return &View{top: top}
}

// Find resolves name against the permanent table first, then against the
// transient overlay, interning into the overlay when absent from both.
func (v *View) Find(name string) int {
	for i, e := range v.top.syms {
		if e == name {
			return i
		}
	}
	for i, e := range v.new {
		if e == name {
			return len(v.top.syms) + i
		}
	}
	v.new = append(v.new, name)
	return len(v.top.syms) + len(v.new) - 1
}

// Get resolves an index against the permanent table, falling back to the
// overlay.
func (v *View) Get(id int) (string, bool) {
	if name, ok := v.top.Get(id); ok {
		return name, true
	}
	id -= len(v.top.syms)
	if id < 0 || id >= len(v.new) {
		return "", false
	}
	return v.new[id], true
}
