package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
)

// SenderConfig sizes the report sender.
type SenderConfig struct {
	Workers int
	Buffer  int
	// Timeout bounds one enqueue call.
	Timeout time.Duration
	// Handoff is how long a handler waits for buffer space before
	// enqueueing inline.
	Handoff time.Duration
}

// DefaultSenderConfig returns the defaults used when nothing is configured.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{Workers: 8, Buffer: 1024, Timeout: 30 * time.Second, Handoff: 15 * time.Millisecond}
}

type sendJob struct {
	env domain.CatchEnvelope
	// dedupeKey is released when the enqueue fails.
	dedupeKey string
}

// ReportSender enqueues catch reports from a bounded buffer drained by a
// fixed set of workers.
type ReportSender struct {
	queue   ReportQueue
	deduper Deduper
	log     *log.Logger
	cfg     SenderConfig

	mu     sync.RWMutex
	jobs   chan sendJob
	closed bool
	wg     sync.WaitGroup
}

// NewReportSender starts the workers.
func NewReportSender(queue ReportQueue, deduper Deduper, logger *log.Logger, cfg SenderConfig) *ReportSender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	def := DefaultSenderConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	s := &ReportSender{
		queue:   queue,
		deduper: deduper,
		log:     logger,
		cfg:     cfg,
		jobs:    make(chan sendJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("report sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.Handoff)
	return s
}

func (s *ReportSender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		if err := s.send(j.env); err != nil {
			s.rollback(j)
			s.log.WithFields(log.Fields{
				"report_id": j.env.Report.ID,
				"user":      j.env.UserID,
				"worker":    id,
			}).WithError(err).Error("report.enqueue.failed")
		}
	}
}

func (s *ReportSender) send(env domain.CatchEnvelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	return s.queue.Enqueue(ctx, env)
}

func (s *ReportSender) rollback(j sendJob) {
	if j.dedupeKey == "" || s.deduper == nil {
		return
	}
	if err := s.deduper.Release(context.Background(), j.env.UserID, j.dedupeKey); err != nil {
		s.log.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", err, j.dedupeKey, j.env.UserID)
	}
}

// Submit hands the envelope to a worker, waiting at most the handoff
// timeout for buffer space. When the buffer stays full it enqueues inline and
// returns the enqueue error; the caller then owns the dedupe rollback.
func (s *ReportSender) Submit(env domain.CatchEnvelope, dedupeKey string) error {
	job := sendJob{env: env, dedupeKey: dedupeKey}
	if s.tryHandoff(job) {
		return nil
	}
	s.log.Warn("report sender buffer saturated; enqueueing inline")
	return s.send(env)
}

func (s *ReportSender) tryHandoff(job sendJob) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.jobs <- job:
		return true
	default:
	}
	if s.cfg.Handoff <= 0 {
		return false
	}

	timer := time.NewTimer(s.cfg.Handoff)
	defer timer.Stop()
	select {
	case s.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs and waits for the buffered ones to be sent.
func (s *ReportSender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}
