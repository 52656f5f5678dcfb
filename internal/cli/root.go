package cli

import (
	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fluxops",
	Short: "Declarative provisioning and deployment pipeline for ML serving stacks",
	Long: `FluxOps provisions cloud infrastructure from a declarative PKL stack
definition and drives a deployment pipeline on top of it.

A stack declares units (object stores, secret stores, compute endpoints,
telemetry sinks, network boundaries) and the dependencies between them.
FluxOps resolves the dependency graph, plans the changes, applies them in
order, and runs the validate/plan/deploy/test pipeline per environment.`,
}

// Execute runs the root command
func Execute() error {
	logging.Init("")
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(versionCmd)
}
