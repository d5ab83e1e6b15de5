package databus

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

const (
	sqsMaxTry      = 3
	sqsSendTimeout = 5 * time.Second
	topicAttribute = "topic"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue publishes every event to a single SQS queue. The prefixed topic
// travels as the "topic" message attribute.
type Queue struct {
	client   sqsSender
	queueURL string
	prefix   string
}

func NewSQS(ctx context.Context, region, queueURL, prefix string) (*Queue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	log.Infof("SQS publisher initialized for %s...", queueURL)
	return &Queue{client: sqs.NewFromConfig(cfg), queueURL: queueURL, prefix: prefix}, nil
}

func (q *Queue) Publish(e Event) error {
	body := e.Serialize()
	if len(body) == 0 {
		return nil
	}
	topic := e.Topic()
	if q.prefix != "" {
		topic = q.prefix + "." + topic
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			topicAttribute: {DataType: aws.String("String"), StringValue: aws.String(topic)},
		},
	}
	for i := 0; i < sqsMaxTry; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), sqsSendTimeout)
		_, err := q.client.SendMessage(ctx, input)
		cancel()
		if err != nil {
			log.Warnf("send sqs message to %s (try %d):%v", q.queueURL, i+1, err)
			continue
		}
		return nil
	}
	return errors.ErrorfAndReport("send sqs message to %s max try exceeded", q.queueURL)
}

func (q *Queue) Close() error { return nil }
