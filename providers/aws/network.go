package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/fluxops-io/fluxops/internal/provider"
)

// createSecurityGroup provisions an EC2 security group that admits
// HTTPS from the configured CIDR. The group name doubles as the unit
// name so Describe can find it without stored identifiers.
func (p *Provider) createSecurityGroup(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	groupName := stringParam(params, "groupName", name)
	description := stringParam(params, "description", "managed by fluxops")
	cidr := stringParam(params, "allowCidr", "0.0.0.0/0")

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(groupName),
		Description: aws.String(description),
	}
	if vpcID := stringParam(params, "vpcId", ""); vpcID != "" {
		input.VpcId = aws.String(vpcID)
	}

	var groupID string
	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "InvalidGroup.Duplicate" {
			return nil, fmt.Errorf("failed to create security group %s: %w", groupName, err)
		}
		existing, err := p.findSecurityGroup(ctx, groupName)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("security group %s reported duplicate but not found", groupName)
		}
		groupID = aws.ToString(existing.GroupId)
	} else {
		groupID = aws.ToString(resp.GroupId)
	}

	_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(groupID),
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(443),
				ToPort:     aws.Int32(443),
				IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr)}},
			},
		},
	})
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "InvalidPermission.Duplicate" {
			return nil, fmt.Errorf("failed to authorize ingress on %s: %w", groupName, err)
		}
	}

	return map[string]any{
		"groupName": groupName,
		"groupId":   groupID,
	}, nil
}

func (p *Provider) findSecurityGroup(ctx context.Context, groupName string) (*ec2types.SecurityGroup, error) {
	resp, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{groupName}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe security group %s: %w", groupName, err)
	}
	if len(resp.SecurityGroups) == 0 {
		return nil, nil
	}
	return &resp.SecurityGroups[0], nil
}

func (p *Provider) destroySecurityGroup(ctx context.Context, name string, lastOutputs map[string]any) error {
	input := &ec2.DeleteSecurityGroupInput{}
	if groupID, _ := lastOutputs["groupId"].(string); groupID != "" {
		input.GroupId = aws.String(groupID)
	} else {
		input.GroupName = aws.String(stringParam(lastOutputs, "groupName", name))
	}

	_, err := p.ec2Client.DeleteSecurityGroup(ctx, input)
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidGroup.NotFound" {
			return nil
		}
		return fmt.Errorf("failed to delete security group %s: %w", name, err)
	}
	return nil
}

func (p *Provider) describeSecurityGroup(ctx context.Context, name string) (*provider.UnitStatusReport, error) {
	sg, err := p.findSecurityGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if sg == nil {
		return &provider.UnitStatusReport{Exists: false}, nil
	}
	return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
}
