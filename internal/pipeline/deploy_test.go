package pipeline

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLambda struct {
	existing map[string]string
	updated  map[string]string
}

func (f *fakeLambda) GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error) {
	return &lambda.GetFunctionConfigurationOutput{
		Environment: &lambdatypes.EnvironmentResponse{Variables: f.existing},
	}, nil
}

func (f *fakeLambda) UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	f.updated = params.Environment.Variables
	return &lambda.UpdateFunctionConfigurationOutput{
		FunctionName: aws.String(aws.ToString(params.FunctionName)),
	}, nil
}

func TestLambdaDeployer_SetsModelURIPreservingEnv(t *testing.T) {
	fake := &fakeLambda{existing: map[string]string{"MODEL_BUCKET": "models", "SECRET_NAME": "api-key"}}
	d := &LambdaDeployer{client: fake}

	err := d.Deploy(context.Background(), "s3://models/model_v2.pkl", map[string]any{"functionName": "serve"})
	require.NoError(t, err)

	assert.Equal(t, "s3://models/model_v2.pkl", fake.updated["MODEL_URI"])
	assert.Equal(t, "models", fake.updated["MODEL_BUCKET"], "existing variables survive the update")
	assert.Equal(t, "api-key", fake.updated["SECRET_NAME"])
}

func TestLambdaDeployer_RequiresFunctionName(t *testing.T) {
	d := &LambdaDeployer{client: &fakeLambda{}}
	err := d.Deploy(context.Background(), "s3://models/model.pkl", map[string]any{})
	require.Error(t, err)
}
