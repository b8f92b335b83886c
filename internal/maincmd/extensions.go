package maincmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/mna/mainer"

	"github.com/mna/jyafn/lang/extension"
)

func (c *Cmd) extensions(ctx context.Context, stdio mainer.Stdio, args []string) error {
	loaded := extension.List()
	if len(loaded) == 0 {
		fmt.Fprintln(stdio.Stdout, "no extensions loaded")
		return nil
	}

	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		versions := loaded[name]
		sort.Strings(versions)
		for _, v := range versions {
			fmt.Fprintf(stdio.Stdout, "%s %s\n", name, v)
		}
	}
	return nil
}
