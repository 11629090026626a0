// Package dotgraph renders a computation graph as Graphviz .dot text, for
// offline inspection. It is the out-of-core "graph dumper" collaborator
// described alongside the core: the core only builds the graph, this
// package is the one place that formats it for humans.
package dotgraph

import (
	"fmt"
	"io"

	"github.com/dispatchd/dispatchd/internal/graph"
)

// Write renders g as a Graphviz digraph to w: one node per object vertex
// (labelled by its reference number) and one node per call (labelled by
// function name), with arg->call and call->result edges.
func Write(w io.Writer, g *graph.Graph) error {
	if _, err := fmt.Fprintln(w, "digraph computation {"); err != nil {
		return err
	}

	for i := 0; i < g.NumObjs(); i++ {
		if _, err := fmt.Fprintf(w, "  obj%d [label=\"r%d\", shape=ellipse];\n", i, i); err != nil {
			return err
		}
	}

	for i, call := range g.Calls() {
		if _, err := fmt.Fprintf(w, "  call%d [label=%q, shape=box];\n", i, call.Name); err != nil {
			return err
		}
		for _, arg := range call.Args {
			if _, err := fmt.Fprintf(w, "  obj%d -> call%d;\n", arg, i); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "  call%d -> obj%d;\n", i, call.Result); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
