package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/pipeline"
	"github.com/fluxops-io/fluxops/internal/provider"
	"github.com/fluxops-io/fluxops/internal/state"
	localprovider "github.com/fluxops-io/fluxops/providers/local"

	awsprovider "github.com/fluxops-io/fluxops/providers/aws"
)

// stateStore is what the CLI needs from a state backend: durable
// read/write plus cross-process locking.
type stateStore interface {
	pipeline.Store
	Lock() error
	Unlock() error
}

// resolveProject determines the project directory and stack entrypoint
// from an optional positional argument (a directory or a .pkl file).
func resolveProject(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}

		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}

	return wd, entryPoint, nil
}

// newRegistry returns a registry with the built-in providers available.
func newRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register("aws", func() (provider.Provider, error) {
		return awsprovider.New(), nil
	})
	registry.Register("local", func() (provider.Provider, error) {
		return localprovider.New(), nil
	})
	return registry
}

// openStore returns the state store for an environment. When
// FLUXOPS_STATE_BUCKET is set the state lives in S3 (with optional
// DynamoDB locking via FLUXOPS_STATE_DYNAMODB_TABLE); otherwise it
// lives under <project>/.fluxops/<environment>/state.json.
func openStore(projectDir, environment string) (stateStore, error) {
	bucket := os.Getenv("FLUXOPS_STATE_BUCKET")
	if bucket == "" {
		return state.NewManager(state.DefaultPath(projectDir, environment)), nil
	}

	return state.NewBackend(&state.BackendConfig{
		Type: "s3",
		Config: map[string]string{
			"bucket":         bucket,
			"key":            fmt.Sprintf("fluxops/%s/state.json", environment),
			"region":         os.Getenv("FLUXOPS_STATE_REGION"),
			"dynamodb_table": os.Getenv("FLUXOPS_STATE_DYNAMODB_TABLE"),
			"encrypt":        "true",
		},
	})
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case ir.ActionCreate:
			symbol = "+"
		case ir.ActionDelete:
			symbol = "-"
		case ir.ActionNoop:
			symbol = " "
		}

		color := "\033[0m"
		switch change.Action {
		case ir.ActionCreate:
			color = "\033[32m"
		case ir.ActionDelete:
			color = "\033[31m"
		case ir.ActionUpdate:
			color = "\033[33m"
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Name, change.Action, "\033[0m")
		fmt.Printf("%s  %s unit \"%s\" \"%s\" {\n", color, symbol, change.Kind, change.Name)

		switch {
		case change.Action == ir.ActionCreate && change.Desired != nil:
			for k, v := range change.Desired.Params {
				fmt.Printf("%s      + %s = %v\033[0m\n", color, k, formatValue(v))
			}
		case change.Action == ir.ActionDelete && change.Prior != nil:
			for k, v := range change.Prior.Params {
				fmt.Printf("%s      - %s = %v\033[0m\n", color, k, formatValue(v))
			}
		case change.Desired != nil && change.Prior != nil:
			renderInlineDiff(change.Prior.Params, change.Desired.Params, color)
		}
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

// renderInlineDiff compares prior and desired parameter maps.
func renderInlineDiff(prior, desired map[string]any, color string) {
	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", k, formatValue(desiredVal))
		case !inDesired:
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", k, formatValue(priorVal))
		case fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal):
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", k, formatValue(priorVal), formatValue(desiredVal))
		default:
			fmt.Printf("%s        %s = %v\n", color, k, formatValue(desiredVal))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
