package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/storage"
)

const (
	defaultBatch      = 16
	defaultVisibility = 60 * time.Second
	defaultBackoff    = time.Second
)

type messageQueue interface {
	Dequeue(ctx context.Context, n int32, visibility time.Duration) ([]storage.QueueMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

type reportStore interface {
	SaveCatchReport(ctx context.Context, r domain.CatchReport) error
}

// processor moves catch reports from the report queue into the store.
type processor struct {
	queue   messageQueue
	store   reportStore
	redis   *redis.Client
	channel string
	log     *log.Logger

	batch      int32
	visibility time.Duration
	backoff    time.Duration
}

func newProcessor(q messageQueue, store reportStore, rc *redis.Client, channel string, logger *log.Logger) *processor {
	return &processor{
		queue:      q,
		store:      store,
		redis:      rc,
		channel:    channel,
		log:        logger,
		batch:      defaultBatch,
		visibility: defaultVisibility,
		backoff:    defaultBackoff,
	}
}

// run polls until ctx is done. Empty polls and dequeue errors wait backoff.
func (p *processor) run(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := p.poll(ctx)
		if err != nil && ctx.Err() == nil {
			p.log.Errorf("dequeue: %v", err)
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
			}
		}
	}
}

// poll handles one batch and returns the number of messages received.
func (p *processor) poll(ctx context.Context) (int, error) {
	msgs, err := p.queue.Dequeue(ctx, p.batch, p.visibility)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		if err := p.handle(ctx, msg); err != nil {
			p.log.WithFields(log.Fields{
				"message_id": msg.ID,
				"dequeued":   msg.Dequeued,
			}).Errorf("process catch report: %v", err)
		}
	}
	return len(msgs), nil
}

var errPoison = errors.New("undecodable message")

// handle processes one message. The message is deleted once the report is
// stored, or right away when it cannot be decoded; otherwise it becomes
// visible again after the visibility timeout.
func (p *processor) handle(ctx context.Context, msg storage.QueueMessage) error {
	env, err := storage.DecodeEnvelope(msg.Text)
	if err != nil {
		if derr := p.queue.Delete(ctx, msg.ID, msg.PopReceipt); derr != nil {
			return fmt.Errorf("delete poison message: %w", derr)
		}
		return fmt.Errorf("%w: %v", errPoison, err)
	}

	if err := p.store.SaveCatchReport(ctx, env.Report); err != nil {
		return fmt.Errorf("save report %s: %w", env.Report.ID, err)
	}

	if p.redis != nil {
		storage.Evict(ctx, p.redis, storage.DatasetCatch)
		p.publish(ctx, env.Report)
	}

	if err := p.queue.Delete(ctx, msg.ID, msg.PopReceipt); err != nil {
		return fmt.Errorf("delete message for %s: %w", env.Report.ID, err)
	}
	p.log.WithFields(log.Fields{
		"report_id": env.Report.ID,
		"user_id":   env.UserID,
		"lag_ms":    time.Since(env.EnqueuedAt).Milliseconds(),
	}).Debug("catch report stored")
	return nil
}

func (p *processor) publish(ctx context.Context, r domain.CatchReport) {
	payload, err := sonic.MarshalString(r)
	if err != nil {
		p.log.Errorf("marshal report %s: %v", r.ID, err)
		return
	}
	if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Errorf("Unable to publish catch report %s to %s: %v", r.ID, p.channel, err)
	}
}
