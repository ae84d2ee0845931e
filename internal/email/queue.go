package email

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull    = errors.New("email queue is full")
	ErrQueueStopped = errors.New("email queue is stopped")
)

// Sender delivers a single invitation. *Service implements it.
type Sender interface {
	SendFamilyInvitation(ctx context.Context, to string, data FamilyInvitationData) error
}

// QueueConfig sizes the queue. Zero fields take the defaults below.
type QueueConfig struct {
	Workers int
	Size    int
	// MaxRetries below zero disables retries.
	MaxRetries  int
	Backoff     time.Duration
	SendTimeout time.Duration
}

const (
	defaultQueueWorkers = 2
	defaultQueueSize    = 1000
	defaultMaxRetries   = 3
	defaultBackoff      = time.Second
	defaultSendTimeout  = 30 * time.Second
)

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Workers <= 0 {
		c.Workers = defaultQueueWorkers
	}
	if c.Size <= 0 {
		c.Size = defaultQueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Queue sends invitation emails from a fixed pool of workers. A failed send
// is retried after 2s, 4s, 6s (scaled by Backoff) before it is dropped.
type Queue struct {
	sender Sender
	cfg    QueueConfig
	jobs   chan *queuedInvitation

	mu       sync.RWMutex
	stopped  bool
	stopping chan struct{}

	workers sync.WaitGroup
	pending sync.WaitGroup
}

type queuedInvitation struct {
	to   string
	data FamilyInvitationData
}

// NewQueue starts cfg.Workers workers draining into sender.
func NewQueue(sender Sender, cfg QueueConfig) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		sender:   sender,
		cfg:      cfg,
		jobs:     make(chan *queuedInvitation, cfg.Size),
		stopping: make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules an invitation email without blocking.
func (q *Queue) Enqueue(to string, data FamilyInvitationData) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}

	q.pending.Add(1)
	select {
	case q.jobs <- &queuedInvitation{to: to, data: data}:
		return nil
	default:
		q.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every enqueued email has been sent or given up on.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Stop refuses new work and drains what is queued. Retries still run while
// draining, but without the backoff pause.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopping)
	close(q.jobs)
	q.mu.Unlock()

	q.workers.Wait()
}

func (q *Queue) worker() {
	defer q.workers.Done()
	for job := range q.jobs {
		q.deliver(job)
		q.pending.Done()
	}
}

func (q *Queue) deliver(job *queuedInvitation) {
	for attempt := 0; ; attempt++ {
		err := q.send(job)
		if err == nil {
			slog.Info("invitation email sent", "family", job.data.FamilyName, "attempts", attempt+1)
			return
		}
		if attempt >= q.cfg.MaxRetries {
			slog.Error("invitation email dropped", "family", job.data.FamilyName, "attempts", attempt+1, "error", err)
			return
		}
		slog.Warn("invitation email failed, retrying", "family", job.data.FamilyName, "attempt", attempt+1, "error", err)
		q.pause(attempt + 1)
	}
}

func (q *Queue) send(job *queuedInvitation) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SendTimeout)
	defer cancel()
	return q.sender.SendFamilyInvitation(ctx, job.to, job.data)
}

func (q *Queue) pause(retry int) {
	t := time.NewTimer(q.cfg.Backoff * time.Duration(retry*2))
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.stopping:
	}
}
