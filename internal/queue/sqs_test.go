package queue_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/queue"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSQS keeps messages in memory. Received messages stay visible until
// deleted, so an unacknowledged message is returned again on the next receive.
type fakeSQS struct {
	mu        sync.Mutex
	created   []string
	messages  map[string]string
	order     []string
	deleted   []string
	next      int
	createErr error
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{messages: make(map[string]string)}
}

func (f *fakeSQS) CreateQueue(_ context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, aws.ToString(in.QueueName))
	return &sqs.CreateQueueOutput{QueueUrl: aws.String("https://sqs.local/000000000000/" + aws.ToString(in.QueueName))}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	handle := "rh-" + strconv.Itoa(f.next)
	f.messages[handle] = aws.ToString(in.MessageBody)
	f.order = append(f.order, handle)
	return &sqs.SendMessageOutput{MessageId: aws.String(handle)}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	var out []types.Message
	for _, h := range f.order {
		body, ok := f.messages[h]
		if !ok {
			continue
		}
		out = append(out, types.Message{ReceiptHandle: aws.String(h), Body: aws.String(body)})
		if int32(len(out)) == in.MaxNumberOfMessages {
			break
		}
	}
	f.mu.Unlock()

	if len(out) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := aws.ToString(in.ReceiptHandle)
	delete(f.messages, h)
	f.deleted = append(f.deleted, h)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestSQSQueue_DeclaresQueue(t *testing.T) {
	fake := newFakeSQS()
	_, err := queue.NewSQSQueueFromClient(context.Background(), fake, "fine-tuning-jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"fine-tuning-jobs"}, fake.created)
}

func TestSQSQueue_DeclareError(t *testing.T) {
	fake := newFakeSQS()
	fake.createErr = errors.New("access denied")
	_, err := queue.NewSQSQueueFromClient(context.Background(), fake, "fine-tuning-jobs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestSQSQueue_PublishConsumeAck(t *testing.T) {
	fake := newFakeSQS()
	q, err := queue.NewSQSQueueFromClient(context.Background(), fake, "fine-tuning-jobs")
	require.NoError(t, err)

	msg := models.JobMessage{
		JobID:          uuid.New(),
		FineTuningType: "text-generation",
		Status:         models.JobStatusPending,
		ModelID:        "gpt2",
		Params:         map[string]any{"epochs": "3"},
	}
	require.NoError(t, q.Publish(context.Background(), msg))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan models.JobMessage, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "miner-1", func(_ context.Context, m models.JobMessage) error {
			got <- m
			return nil
		})
	}()

	select {
	case m := <-got:
		assert.Equal(t, msg.JobID, m.JobID)
		assert.Equal(t, "gpt2", m.ModelID)
		assert.Equal(t, "3", m.Params["epochs"])
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	require.Eventually(t, func() bool { return fake.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSQSQueue_FailedHandlerIsRedelivered(t *testing.T) {
	fake := newFakeSQS()
	q, err := queue.NewSQSQueueFromClient(context.Background(), fake, "fine-tuning-jobs")
	require.NoError(t, err)
	require.NoError(t, q.Publish(context.Background(), models.JobMessage{JobID: uuid.New()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	go func() {
		_ = q.Consume(ctx, "miner-1", func(context.Context, models.JobMessage) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return errors.New("miner busy")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return fake.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestSQSQueue_MalformedMessageIsDropped(t *testing.T) {
	fake := newFakeSQS()
	q, err := queue.NewSQSQueueFromClient(context.Background(), fake, "fine-tuning-jobs")
	require.NoError(t, err)
	_, err = fake.SendMessage(context.Background(), &sqs.SendMessageInput{MessageBody: aws.String("{not json")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	go func() {
		_ = q.Consume(ctx, "miner-1", func(context.Context, models.JobMessage) error {
			called <- struct{}{}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return fake.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, called)
}
