package eval

import (
	"context"
	"fmt"
	"net/url"

	"github.com/apple/pkl-go/pkl"
	"github.com/fluxops-io/fluxops/internal/ir"
)

// Evaluator handles PKL evaluation into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadStack evaluates the stack entrypoint and returns the declared
// units and environment policies. properties are passed through as PKL
// external properties.
func (e *Evaluator) LoadStack(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Stack, error) {
	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var stack ir.Stack
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &stack); err != nil {
		return nil, fmt.Errorf("failed to evaluate stack: %w", err)
	}

	return &stack, nil
}
