package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <graph.dot>",
		Short: "Print a human-readable summary of a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(args[0])
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), graph.FormatDOT(g))
			case "text", "":
				text, err := renderText(g)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

func edgeNames(edges []*graph.Edge) string {
	names := make([]string, len(edges))
	for i, e := range edges {
		names[i] = e.Name
	}
	return strings.Join(names, ", ")
}

// renderText lists nodes producers-first with their wiring, attributes and
// provenance, followed by the typed edges.
func renderText(g *graph.Graph) (string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph: %s  (%d nodes, %d edges)\n", g.Name, g.NumNodes(), len(g.EdgeNames()))
	fmt.Fprintf(&sb, "Inputs:  %s\n", edgeNames(g.Inputs()))
	fmt.Fprintf(&sb, "Outputs: %s\n", edgeNames(g.Outputs()))

	maxNameLen, maxOpLen := 4, 2
	for _, n := range order {
		maxNameLen = max(maxNameLen, len(n.Name))
		maxOpLen = max(maxOpLen, len(n.OpType))
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, n := range order {
		op := n.OpType
		if n.Domain != "" {
			op = n.Domain + "." + op
		}
		var parts []string
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+truncate(n.Attrs[k].String(), 40))
		}
		if a, ok := n.Anchor(); ok {
			parts = append(parts, "from "+a.String())
		}
		fmt.Fprintf(&sb, "  %-*s  %-*s  (%s) → (%s)  %s\n",
			maxNameLen, n.Name, maxOpLen, op,
			strings.Join(n.Inputs(), ", "), strings.Join(n.Outputs(), ", "),
			strings.Join(parts, " "))
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	for _, name := range g.EdgeNames() {
		e := g.Edge(name)
		dt := string(e.DataType)
		if dt == "" {
			dt = "?"
		}
		shape := "?"
		if e.Shape != nil {
			dims := make([]string, len(e.Shape))
			for i, d := range e.Shape {
				dims[i] = fmt.Sprint(d)
			}
			shape = "[" + strings.Join(dims, ",") + "]"
		}
		fmt.Fprintf(&sb, "  %s  %s%s  consumers=%d\n", name, dt, shape, len(g.Consumers(name)))
	}
	return sb.String(), nil
}
