package graph

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/mapping"
	"github.com/mna/jyafn/lang/resource"
	"github.com/mna/jyafn/lang/types"
)

// The graph is persisted as a zip bundle: the file "graph" holds the binary
// encoding below with empty mapping storage and empty resource payloads, and
// one side file per mapping ({name}.mapping) and per resource
// ({name}.resource) holds the raw payload, so that payloads can be attached
// lazily.

var serdeMagic = []byte("jyafn\x00")

const serdeVersion = uint16(1)

// Dump writes the graph bundle to w.
func (g *Graph) Dump(w io.Writer) error {
	zw := zip.NewWriter(w)

	f, err := zw.Create("graph")
	if err != nil {
		return err
	}
	enc := newEncoder()
	enc.graph(g)
	if _, err := f.Write(enc.bytes()); err != nil {
		return err
	}

	for _, name := range sortedMappingNames(g.mappings) {
		payload, err := g.mappings[name].Dump()
		if err != nil {
			return err
		}
		f, err := zw.Create(name + ".mapping")
		if err != nil {
			return err
		}
		if _, err := f.Write(payload); err != nil {
			return err
		}
	}

	for _, name := range sortedResourceNames(g.resources) {
		payload, err := g.resources[name].Dump()
		if err != nil {
			return err
		}
		f, err := zw.Create(name + ".resource")
		if err != nil {
			return err
		}
		if _, err := f.Write(payload); err != nil {
			return err
		}
	}

	return zw.Close()
}

// Load reads a graph bundle, attaches the mapping and resource payloads and
// runs the structural checks.
func Load(r io.ReaderAt, size int64) (*Graph, error) {
	g, zr, err := loadGraphFile(r, size)
	if err != nil {
		return nil, err
	}

	for _, f := range zr.File {
		switch {
		case strings.HasSuffix(f.Name, ".mapping"):
			name := strings.TrimSuffix(f.Name, ".mapping")
			m, ok := g.mappings[name]
			if !ok {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			storage, err := m.StorageType().Read(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("reading mapping %s: %w", name, err)
			}
			m.Attach(storage)

		case strings.HasSuffix(f.Name, ".resource"):
			name := strings.TrimSuffix(f.Name, ".resource")
			c, ok := g.resources[name]
			if !ok {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			payload, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			if err := c.Attach(payload); err != nil {
				return nil, fmt.Errorf("reading resource %s: %w", name, err)
			}
		}
	}

	if err := g.RunChecks(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadUninitialized reads only the graph file of a bundle, leaving mappings
// and resources unattached. The result is inspectable but not compilable.
func LoadUninitialized(r io.ReaderAt, size int64) (*Graph, error) {
	g, _, err := loadGraphFile(r, size)
	return g, err
}

func loadGraphFile(r io.ReaderAt, size int64) (*Graph, *zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, fmt.Errorf("reading bundle: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "graph" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, err
		}
		dec := &decoder{buf: data}
		g := dec.graph()
		if dec.err != nil {
			return nil, nil, fmt.Errorf("decoding graph: %w", dec.err)
		}
		return g, zr, nil
	}
	return nil, nil, fmt.Errorf("bundle has no graph file")
}

func sortedMappingNames(m map[string]*mapping.Mapping) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedResourceNames(m map[string]*resource.Container) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// encoder builds the little-endian binary encoding of a graph.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16) { e.num(uint64(v), 2) }
func (e *encoder) u32(v uint32) { e.num(uint64(v), 4) }
func (e *encoder) u64(v uint64) { e.num(v, 8) }

func (e *encoder) num(v uint64, size int) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:size])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) blob(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) typ(t types.Type) {
	e.u8(uint8(t.Kind))
	if t.Kind == types.Ptr {
		e.u64(uint64(t.Origin))
	}
}

func (e *encoder) ref(r types.Ref) {
	e.u8(uint8(r.Kind))
	switch r.Kind {
	case types.RefConst:
		e.typ(r.Ty)
		e.u64(r.Bits)
	default:
		e.u64(uint64(r.Index))
	}
}

func (e *encoder) layout(l *layout.Layout) {
	if l == nil {
		e.u8(uint8(layout.Unit))
		return
	}
	e.u8(uint8(l.Kind))
	switch l.Kind {
	case layout.DateTime:
		e.str(l.Format)
	case layout.Struct:
		e.u32(uint32(len(l.Fields)))
		for _, f := range l.Fields {
			e.str(f.Name)
			e.layout(f.Layout)
		}
	case layout.List:
		e.layout(l.Elem)
		e.u64(uint64(l.Len))
	}
}

func (e *encoder) op(op Op) {
	e.str(op.Name())
	switch o := op.(type) {
	case *Eq:
		if o.Annotated {
			e.u8(1)
		} else {
			e.u8(0)
		}
		e.typ(o.Operand)
	case *Assert:
		e.u64(uint64(o.ErrorID))
	case *Call:
		e.str(o.Func)
	case *List:
		e.typ(o.Element)
		e.u64(uint64(o.NElements))
	case *Index:
		e.typ(o.Element)
		e.u64(uint64(o.NElements))
		e.u64(uint64(o.ErrorID))
	case *IndexOf:
		e.typ(o.Element)
		e.u64(uint64(o.NElements))
	case *CallMapping:
		e.str(o.Mapping)
	case *LoadMappingValue:
		e.str(o.Mapping)
		e.u64(uint64(o.ErrorID))
		e.u64(uint64(o.Slot))
	case *LoadOrDefaultMappingValue:
		e.str(o.Mapping)
		e.u64(uint64(o.ErrorID))
		e.u64(uint64(o.Slot))
	case *CallResource:
		e.str(o.Resource)
		e.str(o.Method)
	case *LoadMethodOutput:
		e.typ(o.ReturnType)
		e.u64(uint64(o.Slot))
	}
}

func (e *encoder) graph(g *Graph) {
	e.buf.Write(serdeMagic)
	e.u16(serdeVersion)

	e.str(g.name)

	metaKeys := make([]string, 0, len(g.metadata))
	for k := range g.metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	e.u32(uint32(len(metaKeys)))
	for _, k := range metaKeys {
		e.str(k)
		e.str(g.metadata[k])
	}

	e.layout(g.inputLayout)
	e.layout(g.outputLayout)

	e.u32(uint32(len(g.inputs)))
	for _, t := range g.inputs {
		e.typ(t)
	}

	e.u32(uint32(len(g.nodes)))
	for _, n := range g.nodes {
		e.op(n.Op)
		e.u32(uint32(len(n.Args)))
		for _, arg := range n.Args {
			e.ref(arg)
		}
		e.typ(n.Ty)
	}

	e.u32(uint32(len(g.outputs)))
	for _, r := range g.outputs {
		e.ref(r)
	}

	syms := g.symbols.All()
	e.u32(uint32(len(syms)))
	for _, s := range syms {
		e.str(s)
	}

	e.u32(uint32(len(g.errors)))
	for _, msg := range g.errors {
		e.str(msg)
	}

	mnames := sortedMappingNames(g.mappings)
	e.u32(uint32(len(mnames)))
	for _, name := range mnames {
		m := g.mappings[name]
		e.str(name)
		e.layout(m.KeyLayout())
		e.layout(m.ValueLayout())
		e.str(m.StorageType().Tag())
	}

	rnames := sortedResourceNames(g.resources)
	e.u32(uint32(len(rnames)))
	for _, name := range rnames {
		c := g.resources[name]
		e.str(name)
		e.str(c.Type().Tag())
		config, _ := c.Type().Config()
		e.blob(config)
	}

	e.u32(uint32(len(g.subgraphs)))
	for _, sub := range g.subgraphs {
		e.graph(sub)
	}
}

// decoder reads the binary encoding, accumulating the first error.
type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.buf) {
		d.fail("unexpected end of graph encoding")
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) str() string {
	n := d.u32()
	b := d.take(int(n))
	return string(b)
}

func (d *decoder) blob() []byte {
	n := d.u32()
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (d *decoder) typ() types.Type {
	kind, err := types.KindFromTag(d.u8())
	if err != nil {
		d.fail("%v", err)
		return types.Type{}
	}
	t := types.Type{Kind: kind}
	if kind == types.Ptr {
		t.Origin = int(d.u64())
	}
	return t
}

func (d *decoder) ref() types.Ref {
	kind := types.RefKind(d.u8())
	switch kind {
	case types.RefConst:
		ty := d.typ()
		return types.Const(ty, d.u64())
	case types.RefInput, types.RefNode:
		return types.Ref{Kind: kind, Index: int(d.u64())}
	default:
		d.fail("%d is not a valid reference kind", kind)
		return types.Ref{}
	}
}

func (d *decoder) layout() *layout.Layout {
	kind, err := layout.KindFromTag(d.u8())
	if err != nil {
		d.fail("%v", err)
		return layout.NewUnit()
	}
	switch kind {
	case layout.Unit:
		return layout.NewUnit()
	case layout.Scalar:
		return layout.NewScalar()
	case layout.Bool:
		return layout.NewBool()
	case layout.Symbol:
		return layout.NewSymbol()
	case layout.DateTime:
		return layout.NewDateTime(d.str())
	case layout.Struct:
		count := int(d.u32())
		st := layout.NewStruct()
		for i := 0; i < count && d.err == nil; i++ {
			name := d.str()
			st.Insert(name, d.layout())
		}
		return st
	case layout.List:
		elem := d.layout()
		return layout.NewList(elem, int(d.u64()))
	}
	d.fail("unknown layout kind %d", kind)
	return layout.NewUnit()
}

func (d *decoder) op() Op {
	tag := d.str()
	switch tag {
	case "add":
		return &Add{}
	case "sub":
		return &Sub{}
	case "mul":
		return &Mul{}
	case "div":
		return &Div{}
	case "rem":
		return &Rem{}
	case "neg":
		return &Neg{}
	case "abs":
		return &Abs{}
	case "not":
		return &Not{}
	case "and":
		return &And{}
	case "or":
		return &Or{}
	case "choose":
		return &Choose{}
	case "to_bool":
		return &ToBool{}
	case "to_float":
		return &ToFloat{}
	case "eq":
		annotated := d.u8() == 1
		return &Eq{Annotated: annotated, Operand: d.typ()}
	case "assert":
		return &Assert{ErrorID: int(d.u64())}
	case "call":
		return &Call{Func: d.str()}
	case "list":
		return &List{Element: d.typ(), NElements: int(d.u64())}
	case "index":
		return &Index{Element: d.typ(), NElements: int(d.u64()), ErrorID: int(d.u64())}
	case "index_of":
		return &IndexOf{Element: d.typ(), NElements: int(d.u64())}
	case "call_mapping":
		return &CallMapping{Mapping: d.str()}
	case "load_mapping_value":
		return &LoadMappingValue{Mapping: d.str(), ErrorID: int(d.u64()), Slot: int(d.u64())}
	case "load_or_default_mapping_value":
		return &LoadOrDefaultMappingValue{Mapping: d.str(), ErrorID: int(d.u64()), Slot: int(d.u64())}
	case "call_resource":
		return &CallResource{Resource: d.str(), Method: d.str()}
	case "load_method_output":
		return &LoadMethodOutput{ReturnType: d.typ(), Slot: int(d.u64())}
	default:
		d.fail("unknown op %q", tag)
		return nil
	}
}

func (d *decoder) graph() *Graph {
	magic := d.take(len(serdeMagic))
	if magic != nil && !bytes.Equal(magic, serdeMagic) {
		d.fail("bad graph magic")
	}
	if v := d.u16(); d.err == nil && v != serdeVersion {
		d.fail("unsupported graph encoding version %d", v)
	}

	g := NewWithName(d.str())

	metaCount := int(d.u32())
	for i := 0; i < metaCount && d.err == nil; i++ {
		k := d.str()
		g.metadata[k] = d.str()
	}

	g.inputLayout = d.layout()
	g.outputLayout = d.layout()

	inputCount := int(d.u32())
	for i := 0; i < inputCount && d.err == nil; i++ {
		g.inputs = append(g.inputs, d.typ())
	}

	nodeCount := int(d.u32())
	for i := 0; i < nodeCount && d.err == nil; i++ {
		op := d.op()
		argCount := int(d.u32())
		args := make([]types.Ref, 0, argCount)
		for j := 0; j < argCount && d.err == nil; j++ {
			args = append(args, d.ref())
		}
		ty := d.typ()
		if d.err == nil {
			g.nodes = append(g.nodes, Node{Op: op, Args: args, Ty: ty})
		}
	}

	outputCount := int(d.u32())
	for i := 0; i < outputCount && d.err == nil; i++ {
		g.outputs = append(g.outputs, d.ref())
	}

	symCount := int(d.u32())
	syms := make([]string, 0, symCount)
	for i := 0; i < symCount && d.err == nil; i++ {
		syms = append(syms, d.str())
	}
	g.symbols = *layout.NewSymbols(syms)

	errCount := int(d.u32())
	for i := 0; i < errCount && d.err == nil; i++ {
		g.errors = append(g.errors, d.str())
	}

	mappingCount := int(d.u32())
	for i := 0; i < mappingCount && d.err == nil; i++ {
		name := d.str()
		keyLayout := d.layout()
		valueLayout := d.layout()
		st, err := mapping.StorageTypeFromTag(d.str())
		if err != nil {
			d.fail("%v", err)
			break
		}
		g.mappings[name] = mapping.Uninitialized(keyLayout, valueLayout, st)
	}

	resourceCount := int(d.u32())
	for i := 0; i < resourceCount && d.err == nil; i++ {
		name := d.str()
		tag := d.str()
		config := d.blob()
		ty, err := resource.TypeFromTag(tag, config)
		if err != nil {
			d.fail("%v", err)
			break
		}
		g.resources[name] = resource.UninitializedContainer(ty)
	}

	subCount := int(d.u32())
	for i := 0; i < subCount && d.err == nil; i++ {
		g.subgraphs = append(g.subgraphs, d.graph())
	}

	return g
}

// ToJSON renders the graph as a human-readable JSON document, for
// inspection and debugging.
func (g *Graph) ToJSON() (string, error) {
	type jsonNode struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
		Type string   `json:"type"`
	}
	type jsonMapping struct {
		KeyLayout   *layout.Layout `json:"key_layout"`
		ValueLayout *layout.Layout `json:"value_layout"`
		Entries     int            `json:"entries"`
	}
	doc := struct {
		Name         string                 `json:"name"`
		Metadata     map[string]string      `json:"metadata,omitempty"`
		InputLayout  *layout.Layout         `json:"input_layout"`
		OutputLayout *layout.Layout         `json:"output_layout"`
		Inputs       []string               `json:"inputs"`
		Nodes        []jsonNode             `json:"nodes"`
		Outputs      []string               `json:"outputs"`
		Symbols      []string               `json:"symbols,omitempty"`
		Errors       []string               `json:"errors,omitempty"`
		Mappings     map[string]jsonMapping `json:"mappings,omitempty"`
		Resources    map[string]string      `json:"resources,omitempty"`
	}{
		Name:         g.name,
		Metadata:     g.metadata,
		InputLayout:  g.inputLayout,
		OutputLayout: g.outputLayout,
		Symbols:      g.symbols.All(),
		Errors:       g.errors,
	}
	for _, t := range g.inputs {
		doc.Inputs = append(doc.Inputs, t.String())
	}
	for _, n := range g.nodes {
		jn := jsonNode{Op: n.Op.Name(), Type: n.Ty.String()}
		for _, arg := range n.Args {
			jn.Args = append(jn.Args, arg.String())
		}
		doc.Nodes = append(doc.Nodes, jn)
	}
	for _, r := range g.outputs {
		doc.Outputs = append(doc.Outputs, r.String())
	}
	if len(g.mappings) > 0 {
		doc.Mappings = make(map[string]jsonMapping, len(g.mappings))
		for name, m := range g.mappings {
			doc.Mappings[name] = jsonMapping{
				KeyLayout:   m.KeyLayout(),
				ValueLayout: m.ValueLayout(),
				Entries:     m.Len(),
			}
		}
	}
	if len(g.resources) > 0 {
		doc.Resources = make(map[string]string, len(g.resources))
		for name, c := range g.resources {
			doc.Resources[name] = c.Type().Tag()
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
