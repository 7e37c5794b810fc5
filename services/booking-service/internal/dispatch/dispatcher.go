// Package dispatch runs fire-and-forget side effects (staff notifications,
// event emission) off the request path. Every task retries with backoff
// under its own deadline, and a task that still fails is logged and handed
// to a FailureLog; the caller never sees the outcome.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	otelx "github.com/itaybe6/barber-English-sub002/libs/otel"
)

var ErrClosed = errors.New("dispatcher closed")

type Failure struct {
	Task       string
	BusinessID string
	Attempts   int
	Err        string
	FailedAt   time.Time
}

type FailureLog interface {
	RecordFailure(ctx context.Context, f Failure) error
}

type Config struct {
	Workers        int
	QueueSize      int
	Timeout        time.Duration
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

type task struct {
	ctx        context.Context
	name       string
	businessID string
	run        func(context.Context) error
}

type Dispatcher struct {
	cfg      Config
	logger   *slog.Logger
	failures FailureLog

	mu     sync.RWMutex
	closed bool
	queue  chan task
	drops  chan task
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, failures FailureLog, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		failures: failures,
		queue:    make(chan task, cfg.QueueSize),
		drops:    make(chan task, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.wg.Add(1)
	go d.recordDrops()
	return d
}

// Dispatch queues fn and returns immediately. It reports false when the task
// was dropped because the queue is full or the dispatcher is closed.
// fn runs detached from ctx's cancellation but keeps its trace.
func (d *Dispatcher) Dispatch(ctx context.Context, name, businessID string, fn func(context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatch after close", "task", name, "business_id", businessID)
		return false
	}
	t := task{ctx: otelx.Detached(ctx), name: name, businessID: businessID, run: fn}
	select {
	case d.queue <- t:
		return true
	default:
		d.logger.Error("dispatch queue full, task dropped", "task", name, "business_id", businessID)
		select {
		case d.drops <- t:
		default:
		}
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	close(d.drops)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.execute(t)
	}
}

// recordDrops logs tasks a full queue rejected, off the caller's path.
func (d *Dispatcher) recordDrops() {
	defer d.wg.Done()
	for t := range d.drops {
		d.recordFailure(t, 0, errors.New("queue full"))
	}
}

func (d *Dispatcher) execute(t task) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(t.ctx, func() (struct{}, error) {
		attempts++
		ctx, cancel := context.WithTimeout(t.ctx, d.cfg.Timeout)
		defer cancel()
		return struct{}{}, d.runSafe(ctx, t)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("dispatch task retry", "task", t.name, "business_id", t.businessID, "err", err, "retry_in", next)
		}),
	)
	if err != nil {
		d.logger.Error("dispatch task failed", "task", t.name, "business_id", t.businessID, "attempts", attempts, "err", err)
		d.recordFailure(t, attempts, err)
	}
}

func (d *Dispatcher) runSafe(ctx context.Context, t task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = backoff.Permanent(errors.New("task panicked"))
			d.logger.Error("dispatch task panic", "task", t.name, "panic", rec)
		}
	}()
	return t.run(ctx)
}

func (d *Dispatcher) recordFailure(t task, attempts int, err error) {
	if d.failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := d.failures.RecordFailure(ctx, Failure{
		Task:       t.name,
		BusinessID: t.businessID,
		Attempts:   attempts,
		Err:        err.Error(),
		FailedAt:   time.Now().UTC(),
	}); ferr != nil {
		d.logger.Error("dispatch failure log write failed", "task", t.name, "err", ferr)
	}
}
