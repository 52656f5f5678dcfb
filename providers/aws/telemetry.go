package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/fluxops-io/fluxops/internal/provider"
)

// createTelemetrySink provisions a CloudWatch log group plus an error
// alarm on the monitored function. When the sink depends on a compute
// endpoint, the alarm tracks that function's Errors metric.
func (p *Provider) createTelemetrySink(ctx context.Context, name string, params map[string]any, depOutputs map[string]map[string]any) (map[string]any, error) {
	logGroup := stringParam(params, "logGroup", "/fluxops/"+name)
	retention := int32(14)
	if v, ok := params["retentionDays"].(int); ok && v > 0 {
		retention = int32(v)
	} else if v, ok := params["retentionDays"].(float64); ok && v > 0 {
		retention = int32(v)
	}

	_, err := p.cloudwatchlogsClient.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(logGroup),
	})
	if err != nil {
		var exists *cwltypes.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return nil, fmt.Errorf("failed to create log group %s: %w", logGroup, err)
		}
	}

	_, err = p.cloudwatchlogsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(logGroup),
		RetentionInDays: aws.Int32(retention),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set retention on %s: %w", logGroup, err)
	}

	outputs := map[string]any{
		"logGroup": logGroup,
	}

	// Alarm on the monitored function's error count when one is wired in.
	var functionName string
	for _, dep := range depOutputs {
		if fn, _ := dep["functionName"].(string); fn != "" {
			functionName = fn
			break
		}
	}
	if functionName != "" {
		alarmName := name + "-errors"
		_, err = p.cloudwatchClient.PutMetricAlarm(ctx, &cloudwatch.PutMetricAlarmInput{
			AlarmName:          aws.String(alarmName),
			Namespace:          aws.String("AWS/Lambda"),
			MetricName:         aws.String("Errors"),
			Statistic:          cwtypes.StatisticSum,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(1),
			Threshold:          aws.Float64(1),
			ComparisonOperator: cwtypes.ComparisonOperatorGreaterThanOrEqualToThreshold,
			TreatMissingData:   aws.String("notBreaching"),
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("FunctionName"), Value: aws.String(functionName)},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to put alarm %s: %w", alarmName, err)
		}
		outputs["alarmName"] = alarmName
	}

	return outputs, nil
}

func (p *Provider) destroyTelemetrySink(ctx context.Context, name string, lastOutputs map[string]any) error {
	if alarmName, _ := lastOutputs["alarmName"].(string); alarmName != "" {
		_, err := p.cloudwatchClient.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{
			AlarmNames: []string{alarmName},
		})
		if err != nil {
			return fmt.Errorf("failed to delete alarm %s: %w", alarmName, err)
		}
	}

	logGroup := stringParam(lastOutputs, "logGroup", "/fluxops/"+name)
	_, err := p.cloudwatchlogsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(logGroup),
	})
	if err != nil {
		var notFound *cwltypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete log group %s: %w", logGroup, err)
	}
	return nil
}

func (p *Provider) describeTelemetrySink(ctx context.Context, name string) (*provider.UnitStatusReport, error) {
	logGroup := "/fluxops/" + name
	resp, err := p.cloudwatchlogsClient.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(logGroup),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe log group %s: %w", logGroup, err)
	}

	for _, lg := range resp.LogGroups {
		if aws.ToString(lg.LogGroupName) == logGroup {
			return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
		}
	}
	return &provider.UnitStatusReport{Exists: false}, nil
}
