// Package sender delivers outbound Telegram calls from a bounded worker pool with retries,
// so slow Bot API responses never hold up update handling.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/metrics"
	"github.com/m3rciful/scenariobot/core/netutil"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one job including retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher runs queued jobs on a fixed set of workers.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run. run may be called more than once when retries are enabled.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns how many jobs were given up on.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Queued replies still go out when the update that produced them is done.
	deadline, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			logger.Debug(ctx, component, "send.success",
				slog.String("status", "ok"),
				slog.String("action", j.action),
				slog.Int("attempt", attempt),
				slog.Duration("took", logger.Took(start)),
			)
			return
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		delay := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(ctx, component, "send.retry",
			slog.String("status", "retry"),
			slog.String("action", j.action),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if !sleep(deadline, delay) {
			err = errors.Join(err, deadline.Err())
			break
		}
	}

	d.errs.Add(1)
	kind := classifyError(err)
	metrics.TelegramSendFailed(kind)
	logger.Error(ctx, component, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", j.action),
		slog.String("err", redact(err)),
		slog.String("err_kind", kind),
		slog.Int("attempts", attempts),
		slog.Duration("took", logger.Took(start)),
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
