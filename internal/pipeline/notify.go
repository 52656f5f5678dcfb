package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/logging"
)

// snsAPI is the subset of the SNS client the notifier uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes stage transitions to an SNS topic so operators
// can subscribe to pipeline progress (e.g., the approval request for a
// gated deploy).
type SNSNotifier struct {
	client   snsAPI
	topicARN string
}

func NewSNSNotifier(client *sns.Client, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, run *ir.PipelineRun, stage ir.Stage, outcome ir.Outcome) {
	subject := fmt.Sprintf("fluxops %s: %s %s", run.Environment, stage, outcome)
	body := fmt.Sprintf("run=%s environment=%s trigger=%s stage=%s outcome=%s", run.ID, run.Environment, run.Trigger, stage, outcome)
	if run.FailedStep != "" {
		body += fmt.Sprintf(" failedStep=%s error=%s", run.FailedStep, run.Error)
	}

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		// Notifications are advisory; never fail the run over them.
		logging.Warn("failed to publish notification", "topic", n.topicARN, "error", err)
	}
}
