// Package aws maps resource kinds onto AWS services: object stores
// become S3 buckets, secret stores become Secrets Manager secrets,
// compute endpoints become Lambda functions with an execution role,
// telemetry sinks become CloudWatch log groups with an error alarm, and
// network boundaries become EC2 security groups.
package aws

import (
	"context"
	"fmt"
	"os"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/provider"
)

const defaultRegion = "us-east-1"

type Provider struct {
	mu     sync.Mutex
	region string

	s3Client             *s3.Client
	ec2Client            *ec2.Client
	iamClient            *iam.Client
	lambdaClient         *lambda.Client
	secretsmanagerClient *secretsmanager.Client
	cloudwatchClient     *cloudwatch.Client
	cloudwatchlogsClient *cloudwatchlogs.Client
}

func New() *Provider {
	region := os.Getenv("FLUXOPS_AWS_REGION")
	if region == "" {
		region = defaultRegion
	}
	return &Provider{region: region}
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.s3Client != nil {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.s3Client = s3.NewFromConfig(cfg)
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.lambdaClient = lambda.NewFromConfig(cfg)
	p.secretsmanagerClient = secretsmanager.NewFromConfig(cfg)
	p.cloudwatchClient = cloudwatch.NewFromConfig(cfg)
	p.cloudwatchlogsClient = cloudwatchlogs.NewFromConfig(cfg)

	return nil
}

func (p *Provider) Create(ctx context.Context, kind, name string, params map[string]any, depOutputs map[string]map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch kind {
	case ir.KindObjectStore:
		return p.createBucket(ctx, name, params)
	case ir.KindSecretStore:
		return p.createSecret(ctx, name, params)
	case ir.KindComputeEndpoint:
		return p.createFunction(ctx, name, params, depOutputs)
	case ir.KindTelemetrySink:
		return p.createTelemetrySink(ctx, name, params, depOutputs)
	case ir.KindNetworkBoundary:
		return p.createSecurityGroup(ctx, name, params)
	}

	return nil, fmt.Errorf("unknown resource kind: %s", kind)
}

func (p *Provider) Destroy(ctx context.Context, kind, name string, lastOutputs map[string]any) error {
	if err := p.ensureClients(ctx); err != nil {
		return err
	}

	switch kind {
	case ir.KindObjectStore:
		return p.destroyBucket(ctx, name, lastOutputs)
	case ir.KindSecretStore:
		return p.destroySecret(ctx, name, lastOutputs)
	case ir.KindComputeEndpoint:
		return p.destroyFunction(ctx, name, lastOutputs)
	case ir.KindTelemetrySink:
		return p.destroyTelemetrySink(ctx, name, lastOutputs)
	case ir.KindNetworkBoundary:
		return p.destroySecurityGroup(ctx, name, lastOutputs)
	}

	return fmt.Errorf("unknown resource kind: %s", kind)
}

func (p *Provider) Describe(ctx context.Context, kind, name string) (*provider.UnitStatusReport, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch kind {
	case ir.KindObjectStore:
		return p.describeBucket(ctx, name)
	case ir.KindSecretStore:
		return p.describeSecret(ctx, name)
	case ir.KindComputeEndpoint:
		return p.describeFunction(ctx, name)
	case ir.KindTelemetrySink:
		return p.describeTelemetrySink(ctx, name)
	case ir.KindNetworkBoundary:
		return p.describeSecurityGroup(ctx, name)
	}

	return nil, fmt.Errorf("unknown resource kind: %s", kind)
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
