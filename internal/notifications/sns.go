package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// snsPublisher is the slice of the SNS client the dispatcher uses.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSDispatcher publishes each event to an SNS topic, from which downstream
// notification transports fan out.
type SNSDispatcher struct {
	client   snsPublisher
	topicARN string
	logger   *zap.Logger
}

// NewSNSDispatcher builds an SNS dispatcher from the ambient AWS configuration.
func NewSNSDispatcher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSDispatcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSDispatcher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

func (d *SNSDispatcher) Dispatch(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.topicARN),
		Subject:  aws.String(fmt.Sprintf("document %s: %s", evt.Number, evt.Action)),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		d.logger.Error("SNS publish failed",
			zap.String("topic_arn", d.topicARN),
			zap.String("event_id", evt.ID.String()),
			zap.Error(err))
		return fmt.Errorf("SNS publish failed: %w", err)
	}
	return nil
}
