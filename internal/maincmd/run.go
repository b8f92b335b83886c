package maincmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mna/mainer"

	"github.com/mna/jyafn/lang/function"
)

func (c *Cmd) run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	g, err := loadBundle(args[0])
	if err != nil {
		return printError(stdio, err)
	}

	doc := []byte(c.Input)
	if len(doc) == 0 {
		doc, err = io.ReadAll(stdio.Stdin)
		if err != nil {
			return printError(stdio, err)
		}
	}
	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return printError(stdio, fmt.Errorf("decoding input: %w", err))
	}

	fn, err := function.Compile(g)
	if err != nil {
		return printError(stdio, err)
	}
	defer fn.Close()

	output, err := fn.Eval(input)
	if err != nil {
		return printError(stdio, err)
	}
	rendered, err := json.Marshal(output)
	if err != nil {
		return printError(stdio, err)
	}
	fmt.Fprintf(stdio.Stdout, "%s\n", rendered)
	return nil
}
