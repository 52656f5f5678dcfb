package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/fluxops-io/fluxops/internal/provider"
)

func (p *Provider) createSecret(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	secretName := stringParam(params, "secretName", name)
	value := stringParam(params, "value", "")

	input := &secretsmanager.CreateSecretInput{
		Name: aws.String(secretName),
	}
	if desc := stringParam(params, "description", ""); desc != "" {
		input.Description = aws.String(desc)
	}
	if value != "" {
		input.SecretString = aws.String(value)
	}

	resp, err := p.secretsmanagerClient.CreateSecret(ctx, input)
	if err != nil {
		var exists *smtypes.ResourceExistsException
		if !errors.As(err, &exists) {
			return nil, fmt.Errorf("failed to create secret %s: %w", secretName, err)
		}
		// Already present: update the value in place.
		if value != "" {
			_, err := p.secretsmanagerClient.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
				SecretId:     aws.String(secretName),
				SecretString: aws.String(value),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to update secret %s: %w", secretName, err)
			}
		}
		desc, err := p.secretsmanagerClient.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
			SecretId: aws.String(secretName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe secret %s: %w", secretName, err)
		}
		return map[string]any{
			"secretName": secretName,
			"arn":        aws.ToString(desc.ARN),
		}, nil
	}

	return map[string]any{
		"secretName": secretName,
		"arn":        aws.ToString(resp.ARN),
	}, nil
}

func (p *Provider) destroySecret(ctx context.Context, name string, lastOutputs map[string]any) error {
	secretName := stringParam(lastOutputs, "secretName", name)

	_, err := p.secretsmanagerClient.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(secretName),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete secret %s: %w", secretName, err)
	}
	return nil
}

func (p *Provider) describeSecret(ctx context.Context, name string) (*provider.UnitStatusReport, error) {
	resp, err := p.secretsmanagerClient.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return &provider.UnitStatusReport{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe secret %s: %w", name, err)
	}

	// A secret scheduled for deletion exists but is not healthy.
	if resp.DeletedDate != nil {
		return &provider.UnitStatusReport{Exists: true, Detail: "scheduled for deletion"}, nil
	}
	return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
}
