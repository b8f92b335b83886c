// Package graph implements the typed computational dataflow graph: its
// construction API, the closed op set, the structural checks run on load,
// the optimization passes, the IR emission, and the bundle serialization.
// Graphs are built single-threaded, then compiled into functions that may be
// invoked concurrently.
package graph

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/mapping"
	"github.com/mna/jyafn/lang/resource"
	"github.com/mna/jyafn/lang/types"
)

var graphID atomic.Uint64

// A Graph is the IR container: inputs, nodes in topological order, outputs,
// the error-message and symbol tables, and the named mappings and resources
// callable from nodes.
type Graph struct {
	name         string
	metadata     map[string]string
	inputLayout  *layout.Layout
	outputLayout *layout.Layout
	inputs       []types.Type
	nodes        []Node
	outputs      []types.Ref
	symbols      layout.Symbols
	errors       []string
	mappings     map[string]*mapping.Mapping
	resources    map[string]*resource.Container
	subgraphs    []*Graph
}

// New returns an empty graph with a generated name.
func New() *Graph {
	return NewWithName(fmt.Sprintf("g%d", graphID.Add(1)-1))
}

// NewWithName returns an empty graph with the given name.
func NewWithName(name string) *Graph {
	return &Graph{
		name:         name,
		metadata:     make(map[string]string),
		inputLayout:  layout.NewStruct(),
		outputLayout: layout.NewUnit(),
		mappings:     make(map[string]*mapping.Mapping),
		resources:    make(map[string]*resource.Container),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Metadata returns the mutable metadata map.
func (g *Graph) Metadata() map[string]string { return g.metadata }

// InputLayout returns the declared input layout.
func (g *Graph) InputLayout() *layout.Layout { return g.inputLayout }

// OutputLayout returns the declared output layout.
func (g *Graph) OutputLayout() *layout.Layout { return g.outputLayout }

// Inputs returns the input slot types.
func (g *Graph) Inputs() []types.Type { return g.inputs }

// Nodes returns the node list.
func (g *Graph) Nodes() []Node { return g.nodes }

// Outputs returns the output references.
func (g *Graph) Outputs() []types.Ref { return g.outputs }

// Symbols returns the interning table.
func (g *Graph) Symbols() *layout.Symbols { return &g.symbols }

// Errors returns the registered error messages.
func (g *Graph) Errors() []string { return g.errors }

// Mappings returns the named mappings.
func (g *Graph) Mappings() map[string]*mapping.Mapping { return g.mappings }

// Resources returns the named resource containers.
func (g *Graph) Resources() map[string]*resource.Container { return g.resources }

// TypeOf resolves the type of any reference against the graph.
func (g *Graph) TypeOf(r types.Ref) types.Type {
	switch r.Kind {
	case types.RefNode:
		return g.nodes[r.Index].Ty
	case types.RefInput:
		return g.inputs[r.Index]
	default:
		return r.Ty
	}
}

// Const returns a constant reference for a host value: a float, an integer
// (widened to float), a bool, or a time.Time.
func (g *Graph) Const(v any) (types.Ref, error) {
	switch c := v.(type) {
	case float64:
		return types.FloatConst(c), nil
	case int:
		return types.FloatConst(float64(c)), nil
	case bool:
		return types.BoolConst(c), nil
	case time.Time:
		return types.DateTimeConst(c.UTC().UnixMicro()), nil
	}
	return types.Ref{}, fmt.Errorf("cannot make a constant out of %v", v)
}

// Insert type-checks op against args and appends the node, returning a
// reference to it.
func (g *Graph) Insert(op Op, args []types.Ref) (types.Ref, error) {
	id := len(g.nodes)
	node, err := initNode(g, id, op, args)
	if err != nil {
		return types.Ref{}, err
	}
	g.nodes = append(g.nodes, node)
	return types.Node(id), nil
}

func (g *Graph) pushInput(ty types.Type) types.Ref {
	id := len(g.inputs)
	g.inputs = append(g.inputs, ty)
	return types.Input(id)
}

func (g *Graph) allocInput(l *layout.Layout) *layout.RefValue {
	switch l.Kind {
	case layout.Scalar:
		return layout.ScalarRef(g.pushInput(types.FloatType))
	case layout.Bool:
		return layout.BoolRef(g.pushInput(types.BoolType))
	case layout.DateTime:
		return layout.DateTimeRef(g.pushInput(types.DateTimeType))
	case layout.Symbol:
		return layout.SymbolRef(g.pushInput(types.SymbolType))
	case layout.Struct:
		fields := make(map[string]*layout.RefValue, len(l.Fields))
		for _, f := range l.Fields {
			fields[f.Name] = g.allocInput(f.Layout)
		}
		return layout.StructRef(fields)
	case layout.List:
		items := make([]*layout.RefValue, 0, l.Len)
		for i := 0; i < l.Len; i++ {
			items = append(items, g.allocInput(l.Elem))
		}
		return layout.ListRef(items)
	}
	return layout.UnitRef()
}

// Input declares a named input of the given layout, allocating one input
// slot per leaf and returning the mirroring ref-value tree.
func (g *Graph) Input(name string, l *layout.Layout) *layout.RefValue {
	val := g.allocInput(l)
	g.inputLayout.Insert(name, l)
	return val
}

// ScalarInput declares a named scalar input.
func (g *Graph) ScalarInput(name string) types.Ref {
	g.inputLayout.Insert(name, layout.NewScalar())
	return g.pushInput(types.FloatType)
}

// VecInput declares a named fixed-size list-of-scalars input.
func (g *Graph) VecInput(name string, size int) []types.Ref {
	g.inputLayout.Insert(name, layout.NewList(layout.NewScalar(), size))
	refs := make([]types.Ref, size)
	for i := range refs {
		refs[i] = g.pushInput(types.FloatType)
	}
	return refs
}

// SymbolInput declares a named symbol input.
func (g *Graph) SymbolInput(name string) types.Ref {
	g.inputLayout.Insert(name, layout.NewSymbol())
	return g.pushInput(types.SymbolType)
}

// Output assigns the graph outputs by flattening value against the declared
// layout.
func (g *Graph) Output(value *layout.RefValue, l *layout.Layout) error {
	refs, ok := value.OutputVec(l)
	if !ok {
		return &BadValueError{Expected: l, Got: value}
	}
	g.outputs = refs
	g.outputLayout = l
	return nil
}

// PushError interns a user-visible error message and returns its id.
func (g *Graph) PushError(msg string) int {
	for i, e := range g.errors {
		if e == msg {
			return i
		}
	}
	g.errors = append(g.errors, msg)
	return len(g.errors) - 1
}

// Assert inserts an assertion node failing the call with msg when test does
// not hold.
func (g *Graph) Assert(test types.Ref, msg string) (types.Ref, error) {
	return g.Insert(&Assert{ErrorID: g.PushError(msg)}, []types.Ref{test})
}

// PushSymbol interns a symbol and returns a constant reference to it.
func (g *Graph) PushSymbol(name string) types.Ref {
	return types.SymbolConst(g.symbols.Push(name))
}

// An Entry is one key/value pair fed to InsertMapping. Key and Value follow
// the shapes accepted by layout.Encode.
type Entry struct {
	Key   any
	Value any
}

// InsertMapping builds a mapping from the given entries and registers it
// under name. Symbols mentioned by keys or values intern into the graph's
// own table.
func (g *Graph) InsertMapping(name string, keyLayout, valueLayout *layout.Layout, entries []Entry) error {
	m, err := mapping.New(keyLayout, valueLayout, mapping.HashTableStorage{})
	if err != nil {
		return err
	}
	keyVisitor := layout.NewVisitor(keyLayout.Size())
	valueVisitor := layout.NewVisitor(valueLayout.Size())

	for _, entry := range entries {
		keyVisitor.Reset()
		if err := layout.Encode(entry.Key, keyLayout, &g.symbols, keyVisitor); err != nil {
			return err
		}
		valueVisitor.Reset()
		if err := layout.Encode(entry.Value, valueLayout, &g.symbols, valueVisitor); err != nil {
			return err
		}
		m.Insert(keyVisitor.Bytes(), append([]byte(nil), valueVisitor.Bytes()...))
	}

	g.mappings[name] = m
	return nil
}

func (g *Graph) mappingKeyArgs(name string, key *layout.RefValue) (*mapping.Mapping, []types.Ref, error) {
	m, ok := g.mappings[name]
	if !ok {
		return nil, nil, fmt.Errorf("no mapping named %q", name)
	}
	args, ok := key.OutputVec(m.KeyLayout())
	if !ok {
		return nil, nil, &BadValueError{Expected: m.KeyLayout(), Got: key}
	}
	return m, args, nil
}

// CallMapping looks key up in the named mapping, failing the call with a key
// error when absent. It returns the value as a ref-value tree of the
// mapping's value layout.
func (g *Graph) CallMapping(name string, key *layout.RefValue) (*layout.RefValue, error) {
	m, args, err := g.mappingKeyArgs(name, key)
	if err != nil {
		return nil, err
	}
	errorID := g.PushError(fmt.Sprintf("Key error calling mapping %s", name))

	valuePtr, err := g.Insert(&CallMapping{Mapping: name}, args)
	if err != nil {
		return nil, err
	}

	slots := m.ValueLayout().Slots()
	values := make([]types.Ref, 0, len(slots))
	for slot := range slots {
		v, err := g.Insert(&LoadMappingValue{Mapping: name, ErrorID: errorID, Slot: slot},
			[]types.Ref{valuePtr})
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	rv, ok := m.ValueLayout().BuildRefValue(values)
	if !ok {
		return nil, &BadValueError{Expected: m.ValueLayout()}
	}
	return rv, nil
}

// CallMappingDefault looks key up in the named mapping, yielding def when
// absent.
func (g *Graph) CallMappingDefault(name string, key, def *layout.RefValue) (*layout.RefValue, error) {
	m, args, err := g.mappingKeyArgs(name, key)
	if err != nil {
		return nil, err
	}
	defArgs, ok := def.OutputVec(m.ValueLayout())
	if !ok {
		return nil, &BadValueError{Expected: m.ValueLayout(), Got: def}
	}
	errorID := g.PushError(fmt.Sprintf("Key error calling mapping %s", name))

	valuePtr, err := g.Insert(&CallMapping{Mapping: name}, args)
	if err != nil {
		return nil, err
	}

	slots := m.ValueLayout().Slots()
	values := make([]types.Ref, 0, len(slots))
	for slot := range slots {
		v, err := g.Insert(
			&LoadOrDefaultMappingValue{Mapping: name, ErrorID: errorID, Slot: slot},
			[]types.Ref{valuePtr, defArgs[slot]})
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	rv, ok := m.ValueLayout().BuildRefValue(values)
	if !ok {
		return nil, &BadValueError{Expected: m.ValueLayout()}
	}
	return rv, nil
}

// MappingContains tests key membership in the named mapping without failing
// the call.
func (g *Graph) MappingContains(name string, key *layout.RefValue) (*layout.RefValue, error) {
	_, args, err := g.mappingKeyArgs(name, key)
	if err != nil {
		return nil, err
	}

	valuePtr, err := g.Insert(&CallMapping{Mapping: name}, args)
	if err != nil {
		return nil, err
	}
	nullPtr := types.Const(g.TypeOf(valuePtr), 0)
	notContains, err := g.Insert(&Eq{}, []types.Ref{valuePtr, nullPtr})
	if err != nil {
		return nil, err
	}
	contains, err := g.Insert(&Not{}, []types.Ref{notContains})
	if err != nil {
		return nil, err
	}
	return layout.BoolRef(contains), nil
}

// InsertResource registers an initialized resource container under name. It
// must be inserted before any of its methods is called from a node.
func (g *Graph) InsertResource(name string, c *resource.Container) error {
	if !c.IsInitialized() {
		return fmt.Errorf("resource %q is not initialized", name)
	}
	if _, ok := g.resources[name]; ok {
		return fmt.Errorf("resource %q already inserted", name)
	}
	g.resources[name] = c
	return nil
}

// CallResource invokes the named method of a resource with arg as its input
// value, returning the method output as a ref-value tree of its declared
// output layout.
func (g *Graph) CallResource(resourceName, method string, arg *layout.RefValue) (*layout.RefValue, error) {
	c, ok := g.resources[resourceName]
	if !ok {
		return nil, fmt.Errorf("no resource named %q", resourceName)
	}
	m, ok := c.GetMethod(method)
	if !ok {
		return nil, fmt.Errorf("resource %q has no method %q", resourceName, method)
	}
	args, ok := arg.OutputVec(m.InputLayout)
	if !ok {
		return nil, &BadValueError{Expected: m.InputLayout, Got: arg}
	}

	outPtr, err := g.Insert(&CallResource{Resource: resourceName, Method: method}, args)
	if err != nil {
		return nil, err
	}

	slots := m.OutputLayout.Slots()
	values := make([]types.Ref, 0, len(slots))
	for slot, ty := range slots {
		v, err := g.Insert(&LoadMethodOutput{ReturnType: ty, Slot: slot}, []types.Ref{outPtr})
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	rv, ok := m.OutputLayout.BuildRefValue(values)
	if !ok {
		return nil, &BadValueError{Expected: m.OutputLayout}
	}
	return rv, nil
}

// Clone deep-copies the graph structure. Mappings and resources are shared:
// they are immutable and address-stable by contract.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		name:         g.name,
		metadata:     make(map[string]string, len(g.metadata)),
		inputLayout:  g.inputLayout,
		outputLayout: g.outputLayout,
		inputs:       append([]types.Type(nil), g.inputs...),
		nodes:        make([]Node, len(g.nodes)),
		outputs:      append([]types.Ref(nil), g.outputs...),
		symbols:      *g.symbols.CloneTable(),
		errors:       append([]string(nil), g.errors...),
		mappings:     make(map[string]*mapping.Mapping, len(g.mappings)),
		resources:    make(map[string]*resource.Container, len(g.resources)),
		subgraphs:    make([]*Graph, len(g.subgraphs)),
	}
	for k, v := range g.metadata {
		c.metadata[k] = v
	}
	for i, n := range g.nodes {
		c.nodes[i] = Node{
			Op:   cloneOp(n.Op),
			Args: append([]types.Ref(nil), n.Args...),
			Ty:   n.Ty,
		}
	}
	for k, v := range g.mappings {
		c.mappings[k] = v
	}
	for k, v := range g.resources {
		c.resources[k] = v
	}
	for i, sg := range g.subgraphs {
		c.subgraphs[i] = sg.Clone()
	}
	return c
}

// FindIllegal returns the first node whose op reports its arguments as
// guaranteed failure, if any.
func (g *Graph) FindIllegal() *Node {
	for i := range g.nodes {
		if g.nodes[i].Op.IsIllegal(g.nodes[i].Args) {
			return &g.nodes[i]
		}
	}
	return nil
}
