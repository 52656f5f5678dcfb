package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fluxops-io/fluxops/internal/provider"
)

const assumeRolePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "lambda.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

// createFunction provisions a Lambda function fronted by a function URL,
// together with its execution role. When the unit depends on an object
// store or a secret store, their identifiers are passed to the function
// as environment variables so the serving code can reach them.
func (p *Provider) createFunction(ctx context.Context, name string, params map[string]any, depOutputs map[string]map[string]any) (map[string]any, error) {
	functionName := stringParam(params, "functionName", name)
	runtime := stringParam(params, "runtime", "python3.12")
	handler := stringParam(params, "handler", "app.handler")
	codePath := stringParam(params, "code", "")
	if codePath == "" {
		return nil, fmt.Errorf("compute endpoint %s requires a code parameter", name)
	}

	zipBytes, err := os.ReadFile(codePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read code package %s: %w", codePath, err)
	}

	roleARN, err := p.ensureExecutionRole(ctx, functionName+"-exec")
	if err != nil {
		return nil, err
	}

	env := map[string]string{}
	for _, outputs := range depOutputs {
		if bucket, _ := outputs["bucket"].(string); bucket != "" {
			env["MODEL_BUCKET"] = bucket
		}
		if secret, _ := outputs["secretName"].(string); secret != "" {
			env["SECRET_NAME"] = secret
		}
	}
	if extra, ok := params["environment"].(map[string]any); ok {
		for k, v := range extra {
			if s, ok := v.(string); ok {
				env[k] = s
			}
		}
	}

	createInput := &lambda.CreateFunctionInput{
		FunctionName: aws.String(functionName),
		Runtime:      lambdatypes.Runtime(runtime),
		Handler:      aws.String(handler),
		Role:         aws.String(roleARN),
		Code:         &lambdatypes.FunctionCode{ZipFile: zipBytes},
	}
	if len(env) > 0 {
		createInput.Environment = &lambdatypes.Environment{Variables: env}
	}

	var functionARN string
	resp, err := p.lambdaClient.CreateFunction(ctx, createInput)
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if !errors.As(err, &conflict) {
			return nil, fmt.Errorf("failed to create function %s: %w", functionName, err)
		}
		// Function exists: push the new code instead.
		upd, err := p.lambdaClient.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
			FunctionName: aws.String(functionName),
			ZipFile:      zipBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update function code %s: %w", functionName, err)
		}
		functionARN = aws.ToString(upd.FunctionArn)
	} else {
		functionARN = aws.ToString(resp.FunctionArn)
	}

	url, err := p.ensureFunctionURL(ctx, functionName)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"functionName": functionName,
		"arn":          functionARN,
		"roleArn":      roleARN,
		"url":          url,
		"healthUrl":    url + "/health",
		"predictUrl":   url + "/predict",
	}, nil
}

// ensureExecutionRole creates the Lambda execution role if missing and
// returns its ARN. A freshly created role needs a short settle time
// before Lambda accepts it.
func (p *Provider) ensureExecutionRole(ctx context.Context, roleName string) (string, error) {
	resp, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(assumeRolePolicy),
	})
	if err != nil {
		var exists *iamtypes.EntityAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", fmt.Errorf("failed to create role %s: %w", roleName, err)
		}
		get, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
		if err != nil {
			return "", fmt.Errorf("failed to get role %s: %w", roleName, err)
		}
		return aws.ToString(get.Role.Arn), nil
	}

	_, err = p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String("arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach execution policy to %s: %w", roleName, err)
	}

	// IAM is eventually consistent.
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return aws.ToString(resp.Role.Arn), nil
}

func (p *Provider) ensureFunctionURL(ctx context.Context, functionName string) (string, error) {
	resp, err := p.lambdaClient.CreateFunctionUrlConfig(ctx, &lambda.CreateFunctionUrlConfigInput{
		FunctionName: aws.String(functionName),
		AuthType:     lambdatypes.FunctionUrlAuthTypeNone,
	})
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if !errors.As(err, &conflict) {
			return "", fmt.Errorf("failed to create function url for %s: %w", functionName, err)
		}
		get, err := p.lambdaClient.GetFunctionUrlConfig(ctx, &lambda.GetFunctionUrlConfigInput{
			FunctionName: aws.String(functionName),
		})
		if err != nil {
			return "", fmt.Errorf("failed to get function url for %s: %w", functionName, err)
		}
		return trimTrailingSlash(aws.ToString(get.FunctionUrl)), nil
	}
	return trimTrailingSlash(aws.ToString(resp.FunctionUrl)), nil
}

func trimTrailingSlash(url string) string {
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}

func (p *Provider) destroyFunction(ctx context.Context, name string, lastOutputs map[string]any) error {
	functionName := stringParam(lastOutputs, "functionName", name)

	_, err := p.lambdaClient.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to delete function %s: %w", functionName, err)
		}
	}

	roleName := functionName + "-exec"
	_, err = p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String("arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"),
	})
	if err != nil {
		var noSuch *iamtypes.NoSuchEntityException
		if !errors.As(err, &noSuch) {
			return fmt.Errorf("failed to detach policy from %s: %w", roleName, err)
		}
	}
	_, err = p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		var noSuch *iamtypes.NoSuchEntityException
		if !errors.As(err, &noSuch) {
			return fmt.Errorf("failed to delete role %s: %w", roleName, err)
		}
	}

	return nil
}

func (p *Provider) describeFunction(ctx context.Context, name string) (*provider.UnitStatusReport, error) {
	resp, err := p.lambdaClient.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return &provider.UnitStatusReport{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to get function %s: %w", name, err)
	}

	state := resp.Configuration.State
	if state != lambdatypes.StateActive {
		detail, _ := json.Marshal(map[string]string{"state": string(state)})
		return &provider.UnitStatusReport{Exists: true, Detail: string(detail)}, nil
	}
	return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
}
