package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"
)

const binName = "jyafn"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and all-in-one tool for %[1]s computational graphs.

The <command> can be one of:
       describe                  Print the layouts, metadata, mappings
                                 and resources of a graph bundle.
       render                    Lower a graph bundle and print the
                                 resulting IR module.
       run                       Compile a graph bundle and evaluate it
                                 over a JSON input document.
       extensions                List the currently loaded extensions.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Valid flag options for the <run> command are:
       --input <json>            The input document (read from stdin
                                 when absent).

More information on the %[1]s repository:
       https://github.com/mna/jyafn
`, binName)
)

// cmdFunc is the shape of a subcommand: it receives the arguments after the
// command name and prints its own errors.
type cmdFunc func(context.Context, mainer.Stdio, []string) error

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Input string `flag:"input"`

	args  []string
	flags map[string]bool
	cmdFn cmdFunc
}

// bundleCmds are the commands that operate on a graph bundle file.
var bundleCmds = map[string]bool{
	"describe": true,
	"render":   true,
	"run":      true,
}

// commands maps each command name to its implementation.
func (c *Cmd) commands() map[string]cmdFunc {
	return map[string]cmdFunc{
		"describe":   c.describe,
		"render":     c.render,
		"run":        c.run,
		"extensions": c.extensions,
	}
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	c.cmdFn = c.commands()[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	if bundleCmds[cmdName] && len(c.args) < 2 {
		return fmt.Errorf("%s: a bundle file must be provided", cmdName)
	}
	if c.flags["input"] && cmdName != "run" {
		return fmt.Errorf("%s: invalid flag 'input'", cmdName)
	}

	return nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	var p mainer.Parser
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	if c.Help {
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	}
	if c.Version {
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// the command already printed the error
		return mainer.Failure
	}
	return mainer.Success
}
