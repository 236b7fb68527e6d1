package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ Notifier = (*SNSNotifier)(nil)

type SNSNotifier struct {
	client   SNSAPI
	topicArn string
}

func NewSNSNotifier(client SNSAPI, topicArn string) *SNSNotifier {
	return &SNSNotifier{client: client, topicArn: topicArn}
}

func NewSNSNotifierFromConfig(cfg aws.Config, topicArn string) *SNSNotifier {
	return NewSNSNotifier(sns.NewFromConfig(cfg), topicArn)
}

func (s *SNSNotifier) Name() string {
	return "sns:" + s.topicArn
}

func (s *SNSNotifier) Notify(ctx context.Context, n *Notification) error {
	attrs := n.Attributes()

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicArn),
		Subject:  aws.String(n.Subject),
		Message:  aws.String(string(n.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"contract": {
				DataType:    aws.String("String"),
				StringValue: aws.String(attrs["contract"]),
			},
			"contract_version": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(attrs["contract_version"]),
			},
			"run_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(attrs["run_id"]),
			},
		},
	})
	if err != nil {
		return &DeliveryError{Channel: s.Name(), Err: err}
	}
	return nil
}
