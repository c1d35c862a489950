package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/kiranshivaraju/finetunehub/internal/config"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

const (
	sqsMaxMessages = 10
	sqsWaitSeconds = 20
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue is backed by an SQS queue. Unacknowledged messages reappear after
// the queue's visibility timeout.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	wait     int32
}

// NewSQSQueue builds an SQS client from the default AWS config chain.
func NewSQSQueue(ctx context.Context, cfg config.QueueConfig) (*SQSQueue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewSQSQueueFromClient(ctx, client, cfg.Name)
}

// NewSQSQueueFromClient declares the queue called name and resolves its URL.
// Creating an existing queue with the same attributes is a no-op in SQS.
func NewSQSQueueFromClient(ctx context.Context, client SQSAPI, name string) (*SQSQueue, error) {
	out, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &SQSQueue{
		client:   client,
		queueURL: aws.ToString(out.QueueUrl),
		wait:     sqsWaitSeconds,
	}, nil
}

func (q *SQSQueue) Publish(ctx context.Context, msg models.JobMessage) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.queueURL, err)
	}
	return nil
}

func (q *SQSQueue) Consume(ctx context.Context, consumerID string, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: sqsMaxMessages,
			WaitTimeSeconds:     q.wait,
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive from %s: %w", q.queueURL, err)
		}

		for _, m := range out.Messages {
			msg, err := decode([]byte(aws.ToString(m.Body)))
			if err != nil {
				slog.Error("dropping malformed job message", "queue", q.queueURL, "error", err)
				q.ack(ctx, m.ReceiptHandle)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.Warn("job message handler failed, leaving for redelivery",
					"queue", q.queueURL, "consumer", consumerID, "job_id", msg.JobID, "error", err)
				continue
			}
			q.ack(ctx, m.ReceiptHandle)
		}
	}
}

func (q *SQSQueue) ack(ctx context.Context, receiptHandle *string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("ack job message", "queue", q.queueURL, "error", err)
	}
}

// Close is a no-op; the SQS client holds no long-lived connection of its own.
func (q *SQSQueue) Close() error { return nil }

// Compile-time check that SQSQueue implements Queue.
var _ Queue = (*SQSQueue)(nil)
