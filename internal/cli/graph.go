package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the unit dependency graph in
Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  fluxops graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}

	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph fluxops {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, u := range stack.Units {
		fmt.Printf("  %q [label=\"%s\\n(%s)\"];\n", u.Name, u.Name, u.Kind)
	}
	fmt.Println()

	for _, u := range stack.Units {
		for _, dep := range graph.Dependencies(u.Name) {
			fmt.Printf("  %q -> %q;\n", u.Name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
