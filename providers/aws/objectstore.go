package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fluxops-io/fluxops/internal/provider"
)

func (p *Provider) createBucket(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	bucket := stringParam(params, "bucket", name)

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// us-east-1 rejects an explicit LocationConstraint.
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.region),
		}
	}

	_, err := p.s3Client.CreateBucket(ctx, input)
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "BucketAlreadyOwnedByYou" {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		// Already ours: create is idempotent.
	}

	if versioned, _ := params["versioned"].(bool); versioned {
		_, err := p.s3Client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket: aws.String(bucket),
			VersioningConfiguration: &s3types.VersioningConfiguration{
				Status: s3types.BucketVersioningStatusEnabled,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enable versioning on %s: %w", bucket, err)
		}
	}

	return map[string]any{
		"bucket": bucket,
		"arn":    fmt.Sprintf("arn:aws:s3:::%s", bucket),
	}, nil
}

func (p *Provider) destroyBucket(ctx context.Context, name string, lastOutputs map[string]any) error {
	bucket := stringParam(lastOutputs, "bucket", name)

	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "NoSuchBucket" {
			return nil
		}
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	return nil
}

func (p *Provider) describeBucket(ctx context.Context, name string) (*provider.UnitStatusReport, error) {
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && (ae.ErrorCode() == "NotFound" || ae.ErrorCode() == "NoSuchBucket") {
			return &provider.UnitStatusReport{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to check bucket %s: %w", name, err)
	}
	return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
}
