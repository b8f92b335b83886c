package graph

import (
	"fmt"
	"strings"

	"github.com/mna/jyafn/lang/layout"
	"github.com/mna/jyafn/lang/types"
)

// A TypeError reports an op applied to argument types its type rule rejects.
type TypeError struct {
	Op   string
	Args []types.Type
}

func (e *TypeError) Error() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("cannot apply %s on [%s]", e.Op, strings.Join(args, ", "))
}

// A TopologyError reports a structural violation found on load: a forward
// reference, a pointer on the graph boundary, or an uninitialized mapping or
// resource.
type TopologyError struct {
	Msg string
}

func (e *TopologyError) Error() string { return e.Msg }

func topologyErrorf(format string, args ...any) error {
	return &TopologyError{Msg: fmt.Sprintf(format, args...)}
}

// An IllegalNodeError reports a must-use node whose arguments guarantee
// failure, detected at compile time.
type IllegalNodeError struct {
	Node string
}

func (e *IllegalNodeError) Error() string {
	return fmt.Sprintf("illegal instruction: %s", e.Node)
}

// A BadValueError reports a ref-value that does not match the declared
// layout.
type BadValueError struct {
	Expected *layout.Layout
	Got      *layout.RefValue
}

func (e *BadValueError) Error() string {
	return fmt.Sprintf("wrong value: expected %s, got %s", e.Expected, e.Got)
}
