package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"ocean-platform/ocean-api/domain"
)

// QueueMessage is a dequeued catch report message.
type QueueMessage struct {
	ID         string
	PopReceipt string
	Text       string
	Dequeued   int64
}

// ReportQueue carries submitted catch reports to the report processor.
type ReportQueue struct {
	client *azqueue.QueueClient
}

// NewReportQueue creates a queue client for the named queue.
func NewReportQueue(connStr, name string) (*ReportQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &ReportQueue{client: client}, nil
}

// Create creates the queue if it does not exist yet.
func (q *ReportQueue) Create(ctx context.Context) error {
	if _, err := q.client.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}

// Enqueue sends one catch report envelope.
func (q *ReportQueue) Enqueue(ctx context.Context, env domain.CatchEnvelope) error {
	data, err := sonic.MarshalString(env)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueMessage(ctx, data, nil)
	return err
}

// Dequeue receives up to n messages, hiding them for visibility.
func (q *ReportQueue) Dequeue(ctx context.Context, n int32, visibility time.Duration) ([]QueueMessage, error) {
	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  to.Ptr(n),
		VisibilityTimeout: to.Ptr(int32(visibility / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]QueueMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		msg := QueueMessage{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.MessageText != nil {
			msg.Text = *m.MessageText
		}
		if m.DequeueCount != nil {
			msg.Dequeued = *m.DequeueCount
		}
		out = append(out, msg)
	}
	return out, nil
}

// Delete removes a processed message from the queue.
func (q *ReportQueue) Delete(ctx context.Context, id, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// DecodeEnvelope parses a queue message body.
func DecodeEnvelope(text string) (domain.CatchEnvelope, error) {
	var env domain.CatchEnvelope
	if err := sonic.UnmarshalString(text, &env); err != nil {
		return domain.CatchEnvelope{}, err
	}
	if env.Report.ID == "" {
		return domain.CatchEnvelope{}, errors.New("envelope has no report id")
	}
	return env, nil
}
