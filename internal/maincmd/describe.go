package maincmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mna/mainer"

	"github.com/mna/jyafn/lang/graph"
)

func (c *Cmd) describe(ctx context.Context, stdio mainer.Stdio, args []string) error {
	g, err := loadBundle(args[0])
	if err != nil {
		return printError(stdio, err)
	}

	fmt.Fprintf(stdio.Stdout, "graph %s\n", g.Name())
	fmt.Fprintf(stdio.Stdout, "  input:  %s\n", g.InputLayout())
	fmt.Fprintf(stdio.Stdout, "  output: %s\n", g.OutputLayout())
	fmt.Fprintf(stdio.Stdout, "  nodes:  %d\n", len(g.Nodes()))

	if len(g.Metadata()) > 0 {
		fmt.Fprintln(stdio.Stdout, "  metadata:")
		keys := make([]string, 0, len(g.Metadata()))
		for k := range g.Metadata() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdio.Stdout, "    %s: %s\n", k, g.Metadata()[k])
		}
	}

	if len(g.Mappings()) > 0 {
		fmt.Fprintln(stdio.Stdout, "  mappings:")
		names := make([]string, 0, len(g.Mappings()))
		for name := range g.Mappings() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := g.Mappings()[name]
			fmt.Fprintf(stdio.Stdout, "    %s: %s -> %s (%d entries)\n",
				name, m.KeyLayout(), m.ValueLayout(), m.Len())
		}
	}

	if len(g.Resources()) > 0 {
		fmt.Fprintln(stdio.Stdout, "  resources:")
		names := make([]string, 0, len(g.Resources()))
		for name := range g.Resources() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stdio.Stdout, "    %s: %s\n", name, g.Resources()[name].Type().Tag())
		}
	}

	if len(g.Errors()) > 0 {
		fmt.Fprintln(stdio.Stdout, "  errors:")
		for _, msg := range g.Errors() {
			fmt.Fprintf(stdio.Stdout, "    %q\n", msg)
		}
	}

	return nil
}

func loadBundle(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return graph.Load(f, fi.Size())
}
