package graph

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/resource"
	"github.com/mna/jyafn/lang/types"
	"github.com/stretchr/testify/require"
)

func buildFullGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewWithName("full")
	g.Metadata()["built.by"] = "serde test"

	require.NoError(t, g.InsertMapping("colors",
		layout.NewStruct(layout.Field{Name: "name", Layout: layout.NewSymbol()}),
		layout.NewStruct(
			layout.Field{Name: "r", Layout: layout.NewScalar()},
			layout.Field{Name: "g", Layout: layout.NewScalar()},
			layout.Field{Name: "b", Layout: layout.NewScalar()},
		),
		[]Entry{
			{Key: map[string]any{"name": "red"}, Value: map[string]any{"r": 1.0, "g": 0.0, "b": 0.0}},
			{Key: map[string]any{"name": "green"}, Value: map[string]any{"r": 0.0, "g": 1.0, "b": 0.0}},
		}))
	require.NoError(t, g.InsertResource("halver", resource.NewContainer(resource.NewDivider(2))))

	name := g.SymbolInput("name")
	x := g.ScalarInput("x")

	ok, err := g.Insert(&Ge{}, []types.Ref{x, types.FloatConst(0)})
	require.NoError(t, err)
	_, err = g.Assert(ok, "x must be non-negative")
	require.NoError(t, err)

	rgb, err := g.CallMapping("colors", layout.StructRef(map[string]*layout.RefValue{
		"name": layout.SymbolRef(name),
	}))
	require.NoError(t, err)

	halved, err := g.CallResource("halver", "get", layout.StructRef(map[string]*layout.RefValue{
		"x": layout.ScalarRef(x),
	}))
	require.NoError(t, err)

	sum, err := g.Insert(&Add{}, []types.Ref{rgb.Fields["r"].Ref, halved.Ref})
	require.NoError(t, err)

	eq, err := g.Insert(&Eq{}, []types.Ref{name, g.PushSymbol("red")})
	require.NoError(t, err)
	out, err := g.Insert(&Choose{}, []types.Ref{eq, sum, x})
	require.NoError(t, err)

	require.NoError(t, g.Output(layout.ScalarRef(out), layout.NewScalar()))
	return g
}

func TestDumpLoadRoundTrip(t *testing.T) {
	g := buildFullGraph(t)

	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	require.Equal(t, g.Name(), loaded.Name())
	require.Equal(t, g.Metadata(), loaded.Metadata())
	require.True(t, g.InputLayout().Equal(loaded.InputLayout()))
	require.True(t, g.OutputLayout().Equal(loaded.OutputLayout()))
	require.Equal(t, g.Inputs(), loaded.Inputs())
	require.Equal(t, g.Outputs(), loaded.Outputs())
	require.Equal(t, g.Symbols().All(), loaded.Symbols().All())
	require.Equal(t, g.Errors(), loaded.Errors())

	require.Len(t, loaded.Nodes(), len(g.Nodes()))
	for i, n := range g.Nodes() {
		require.True(t, opsEqual(n.Op, loaded.Nodes()[i].Op), "node %d op", i)
		require.Equal(t, n.Args, loaded.Nodes()[i].Args, "node %d args", i)
		require.Equal(t, n.Ty, loaded.Nodes()[i].Ty, "node %d type", i)
	}

	// the mapping payload was re-attached from the side file
	m := loaded.Mappings()["colors"]
	require.NotNil(t, m)
	require.True(t, m.IsInitialized())
	require.Equal(t, 2, m.Len())

	// the resource payload too
	r := loaded.Resources()["halver"]
	require.NotNil(t, r)
	require.True(t, r.IsInitialized())

	// dumping the loaded graph reproduces the same bundle
	var buf2 bytes.Buffer
	require.NoError(t, loaded.Dump(&buf2))
	require.Equal(t, buf.Bytes(), buf2.Bytes())
}

func TestLoadUninitialized(t *testing.T) {
	g := buildFullGraph(t)
	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))

	loaded, err := LoadUninitialized(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.False(t, loaded.Mappings()["colors"].IsInitialized())
	require.False(t, loaded.Resources()["halver"].IsInitialized())
}

func TestLoadRejectsCorruptedBundles(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a zip")), 9)
	require.Error(t, err)

	// a bundle whose graph file is garbage
	var bogus bytes.Buffer
	zw := zip.NewWriter(&bogus)
	f, err := zw.Create("graph")
	require.NoError(t, err)
	_, err = f.Write([]byte("garbage"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Load(bytes.NewReader(bogus.Bytes()), int64(bogus.Len()))
	require.Error(t, err)

	// a bundle with no graph file at all
	var empty bytes.Buffer
	zw = zip.NewWriter(&empty)
	require.NoError(t, zw.Close())
	_, err = Load(bytes.NewReader(empty.Bytes()), int64(empty.Len()))
	require.Error(t, err)
}

func TestLoadRunsChecks(t *testing.T) {
	// craft a graph with a forward reference and check the load fails
	g := NewWithName("broken")
	x := g.ScalarInput("x")
	_, err := g.Insert(&Add{}, []types.Ref{x, x})
	require.NoError(t, err)
	g.nodes[0].Args[1] = types.Node(3)

	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))
	_, err = Load(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	var topo *TopologyError
	require.ErrorAs(t, err, &topo)
}

func TestToJSON(t *testing.T) {
	g := buildFullGraph(t)
	out, err := g.ToJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Equal(t, "full", doc["name"])
	require.Contains(t, doc, "nodes")
	require.Contains(t, doc, "mappings")
	require.Contains(t, doc, "resources")
}
