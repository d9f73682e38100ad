package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/iedlink/iedlink-go/pkg/connection"
	"github.com/iedlink/iedlink-go/pkg/report"
)

// Forwarder defaults.
const (
	DefaultQueueSize  = 256
	DefaultWorkers    = 1
	DefaultMaxRetries = 3
)

// ErrStopped is returned by Stop on a second call.
var ErrStopped = errors.New("forwarder stopped")

// Config configures a Forwarder.
type Config struct {
	// QueueSize bounds the events waiting to be published.
	QueueSize int

	// Workers is the number of publishing goroutines. With more than one
	// worker, messages may reach a sink out of order.
	Workers int

	// MaxRetries is the number of attempts per sink and message.
	MaxRetries int

	// Backoff paces the retries.
	Backoff connection.BackoffConfig

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger
}

// Forwarder publishes report events to a set of sinks. Handle never
// blocks, so it can run on the report dispatcher goroutine.
type Forwarder struct {
	config Config
	logger *slog.Logger
	sinks  []Sink

	queue  chan *Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a forwarder and starts its workers.
func New(config Config, sinks ...Sink) *Forwarder {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		config: config,
		logger: logger,
		sinks:  sinks,
		queue:  make(chan *Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < config.Workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

// Handler returns Handle as a report handler.
func (f *Forwarder) Handler() report.Handler {
	return f.Handle
}

// Handle queues a report event. When the queue is full the event is
// dropped and counted.
func (f *Forwarder) Handle(ev *report.Event) {
	f.Enqueue(NewMessage(ev))
}

// Enqueue queues a prepared message. It reports whether the message was
// accepted.
func (f *Forwarder) Enqueue(msg *Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		f.dropped.Add(1)
		return false
	}
	select {
	case f.queue <- msg:
		return true
	default:
		n := f.dropped.Add(1)
		f.logger.Warn("forward queue full, dropping report",
			"reportID", msg.ReportID, "seqNum", msg.SeqNum, "dropped", n)
		return false
	}
}

// Published returns the number of successful sink publishes.
func (f *Forwarder) Published() uint64 { return f.published.Load() }

// Failed returns the number of sink publishes that gave up.
func (f *Forwarder) Failed() uint64 { return f.failed.Load() }

// Dropped returns the number of messages rejected by a full queue.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

func (f *Forwarder) worker() {
	defer f.wg.Done()
	for msg := range f.queue {
		for _, sink := range f.sinks {
			f.publish(sink, msg)
		}
	}
}

func (f *Forwarder) publish(sink Sink, msg *Message) {
	b := connection.NewBackoffWithConfig(f.config.Backoff)
	onRetry := func(attempt int, err error) {
		f.logger.Debug("publish failed, retrying",
			"sink", sink.Name(), "reportID", msg.ReportID, "attempt", attempt, "error", err)
	}
	err := connection.Retry(f.ctx, b, f.config.MaxRetries, onRetry, func(ctx context.Context) error {
		return sink.Publish(ctx, msg)
	})
	if err != nil {
		f.failed.Add(1)
		f.logger.Warn("publish failed",
			"sink", sink.Name(), "reportID", msg.ReportID, "seqNum", msg.SeqNum, "error", err)
		return
	}
	f.published.Add(1)
}

// Stop stops accepting messages, drains the queue until ctx is done, then
// closes every sink. Messages still queued when ctx expires are abandoned.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStopped
	}
	f.stopped = true
	close(f.queue)
	f.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(drained)
	}()

	var errs []error
	select {
	case <-drained:
	case <-ctx.Done():
		f.cancel()
		<-drained
		errs = append(errs, fmt.Errorf("drain: %w", ctx.Err()))
	}
	f.cancel()

	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
