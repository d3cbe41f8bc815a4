package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

// SNSNotifier publishes critical alarms to an SNS topic for recipients
// outside the realtime pipeline (on-call email/SMS). Enabled by the
// USE_CLOUD_SERVICES toggle.
type SNSNotifier struct {
	svc      *sns.Client
	topicArn string
}

func NewSNSNotifier(region, topicArn string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &SNSNotifier{
		svc:      sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}, nil
}

func (n *SNSNotifier) NotifyCriticalAlarm(a *domain.Alarm) error {
	subject := fmt.Sprintf("SCADA Critical Alarm: %s", a.DeviceID)
	message := fmt.Sprintf(
		"Critical Alarm\n\n"+
			"Device: %s\n"+
			"Channel: %s\n"+
			"Value: %.2f (threshold %.2f)\n"+
			"Message: %s\n"+
			"Time: %s\n\n"+
			"Please investigate immediately.",
		a.DeviceID,
		a.AlarmType,
		a.Value,
		a.Threshold,
		a.Message,
		time.Now().Format(time.RFC3339),
	)

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}
	if _, err := n.svc.Publish(context.Background(), input); err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}
