package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
)

func (c *Cmd) render(ctx context.Context, stdio mainer.Stdio, args []string) error {
	g, err := loadBundle(args[0])
	if err != nil {
		return printError(stdio, err)
	}
	module, err := g.Render()
	if err != nil {
		return printError(stdio, err)
	}
	fmt.Fprint(stdio.Stdout, module.Render())
	return nil
}
