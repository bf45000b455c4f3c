package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/storage"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  [][]storage.QueueMessage
	deleted  []string
	err      error
	dequeues int
}

func (q *fakeQueue) Dequeue(ctx context.Context, n int32, visibility time.Duration) ([]storage.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dequeues++
	if q.err != nil {
		return nil, q.err
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	batch := q.pending[0]
	q.pending = q.pending[1:]
	return batch, nil
}

func (q *fakeQueue) Delete(ctx context.Context, id, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, id)
	return nil
}

func (q *fakeQueue) Deleted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type fakeStore struct {
	mu    sync.Mutex
	saved []domain.CatchReport
	err   error
}

func (s *fakeStore) SaveCatchReport(ctx context.Context, r domain.CatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, r)
	return nil
}

func message(t *testing.T, id, reportID string) storage.QueueMessage {
	t.Helper()
	env := domain.CatchEnvelope{
		UserID:     "skipper",
		Report:     domain.CatchReport{ID: reportID, Species: "Sardinella longiceps", CatchWeight: 40},
		EnqueuedAt: time.Now(),
	}
	text, err := sonic.MarshalString(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return storage.QueueMessage{ID: id, PopReceipt: "pr-" + id, Text: text, Dequeued: 1}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return m, rc
}

func TestPollStoresPublishesAndDeletes(t *testing.T) {
	m, rc := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	pubsub := rc.Subscribe(ctx, "catch-reports")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	done := make(chan string, 1)
	go func() {
		msg := <-pubsub.Channel()
		done <- msg.Payload
	}()

	q := &fakeQueue{pending: [][]storage.QueueMessage{{message(t, "m1", "r1")}}}
	store := &fakeStore{}
	p := newProcessor(q, store, rc, "catch-reports", logger)

	n, err := p.poll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("poll = %d, %v", n, err)
	}
	if len(store.saved) != 1 || store.saved[0].ID != "r1" {
		t.Fatalf("report not saved: %#v", store.saved)
	}
	if got := q.Deleted(); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("message not deleted: %v", got)
	}

	select {
	case payload := <-done:
		var r domain.CatchReport
		if err := sonic.UnmarshalString(payload, &r); err != nil || r.ID != "r1" {
			t.Fatalf("unexpected payload %s (%v)", payload, err)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}

	gen, err := m.Get("ocean:" + storage.DatasetCatch + ":gen")
	if err != nil || gen != "1" {
		t.Fatalf("expected catch cache generation bump, got %q (%v)", gen, err)
	}
}

func TestPollDeletesPoisonMessages(t *testing.T) {
	logger, hook := test.NewNullLogger()
	q := &fakeQueue{pending: [][]storage.QueueMessage{{
		{ID: "bad", PopReceipt: "pr", Text: "{not json"},
		{ID: "noid", PopReceipt: "pr", Text: `{"user_id":"u","report":{}}`},
	}}}
	store := &fakeStore{}
	p := newProcessor(q, store, nil, "catch-reports", logger)

	if _, err := p.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := q.Deleted(); len(got) != 2 {
		t.Fatalf("expected both poison messages deleted, got %v", got)
	}
	if len(store.saved) != 0 {
		t.Fatalf("poison messages must not be saved")
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("expected one error log per poison message, got %d", len(hook.AllEntries()))
	}
}

func TestPollKeepsMessageWhenSaveFails(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{pending: [][]storage.QueueMessage{{message(t, "m1", "r1")}}}
	store := &fakeStore{err: errors.New("table throttled")}
	p := newProcessor(q, store, nil, "catch-reports", logger)

	if _, err := p.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := q.Deleted(); len(got) != 0 {
		t.Fatalf("message must stay for retry, deleted %v", got)
	}
}

func TestRunBacksOffOnErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{err: errors.New("queue unavailable")}
	p := newProcessor(q, &fakeStore{}, nil, "catch-reports", logger)
	p.backoff = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	p.run(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dequeues < 2 || q.dequeues > 4 {
		t.Fatalf("expected a few backed-off dequeues, got %d", q.dequeues)
	}
}

func TestRunDrainsAllBatches(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{pending: [][]storage.QueueMessage{
		{message(t, "m1", "r1"), message(t, "m2", "r2")},
		{message(t, "m3", "r3")},
	}}
	store := &fakeStore{}
	p := newProcessor(q, store, nil, "catch-reports", logger)
	p.backoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(q.Deleted()) < 3 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()
	p.run(ctx)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saved) != 3 {
		t.Fatalf("expected 3 saved reports, got %d", len(store.saved))
	}
}
