package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fluxops-io/fluxops/internal/logging"
)

// lambdaAPI is the subset of the Lambda client the deployer uses.
type lambdaAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
}

// LambdaDeployer points the provisioned function at a newly published
// model artifact by updating its MODEL_URI environment variable. The
// serving code reads the variable on cold start.
type LambdaDeployer struct {
	client lambdaAPI
}

func NewLambdaDeployer(client *lambda.Client) *LambdaDeployer {
	return &LambdaDeployer{client: client}
}

func (d *LambdaDeployer) Deploy(ctx context.Context, artifactURI string, endpointOutputs map[string]any) error {
	functionName, _ := endpointOutputs["functionName"].(string)
	if functionName == "" {
		return fmt.Errorf("endpoint outputs carry no function name")
	}

	cfg, err := d.client.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		return fmt.Errorf("failed to read configuration of %s: %w", functionName, err)
	}

	env := map[string]string{}
	if cfg.Environment != nil {
		for k, v := range cfg.Environment.Variables {
			env[k] = v
		}
	}
	env["MODEL_URI"] = artifactURI

	_, err = d.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(functionName),
		Environment:  &lambdatypes.Environment{Variables: env},
	})
	if err != nil {
		return fmt.Errorf("failed to point %s at %s: %w", functionName, artifactURI, err)
	}

	logging.Info("endpoint updated", "function", functionName, "artifact", artifactURI)
	return nil
}

// NoopDeployer satisfies EndpointDeployer for runs that only provision.
type NoopDeployer struct{}

func (NoopDeployer) Deploy(context.Context, string, map[string]any) error { return nil }
