package report

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// DefaultQueueSize is the default number of report frames buffered ahead
// of the dispatcher goroutine.
const DefaultQueueSize = 256

// ErrDispatcherClosed is returned when registering on a closed dispatcher.
var ErrDispatcherClosed = errors.New("report dispatcher closed")

// LayoutFunc returns the known member list of a dataset.
type LayoutFunc func(dataSet model.ObjectReference) ([]model.ObjectReference, bool)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the frames waiting for dispatch (default 256).
	QueueSize int

	// Layout annotates events with dataset members. Optional.
	Layout LayoutFunc

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives decoded report events and decode failures.
	// Optional.
	ProtocolLogger log.Logger

	// ConnID tags protocol log events.
	ConnID string
}

type registration struct {
	rcbRef  model.ObjectReference
	handler Handler

	// Frames are delivered while active and only if they were queued
	// after the gate last opened.
	active bool
	since  uint64
}

type queued struct {
	seq   uint64
	frame []byte
}

// Dispatcher routes inbound report frames to the handler registered for
// their report ID. Frames are decoded and dispatched on one goroutine, so
// handlers of a session never run concurrently.
type Dispatcher struct {
	config DispatcherConfig
	logger *slog.Logger
	plog   log.Logger

	queue chan queued
	seq   atomic.Uint64

	mu   sync.Mutex
	regs map[string]*registration

	dropped   atomic.Uint64
	delivered atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewDispatcher creates a dispatcher and starts its goroutine.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		queue:  make(chan queued, config.QueueSize),
		regs:   make(map[string]*registration),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Register binds handler to reportID, replacing any previous binding.
// The gate of a new registration is open.
func (d *Dispatcher) Register(reportID string, rcbRef model.ObjectReference, handler Handler) error {
	if reportID == "" {
		return fmt.Errorf("register: empty report ID")
	}
	if handler == nil {
		return fmt.Errorf("register %s: nil handler", reportID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return ErrDispatcherClosed
	}
	d.regs[reportID] = &registration{rcbRef: rcbRef, handler: handler, active: true}
	d.logger.Debug("report handler registered", "reportID", reportID, "ref", rcbRef)
	return nil
}

// Unregister removes the binding for reportID. It reports whether one
// existed.
func (d *Dispatcher) Unregister(reportID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.regs[reportID]
	delete(d.regs, reportID)
	return ok
}

// Registered reports whether a handler is bound to reportID.
func (d *Dispatcher) Registered(reportID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.regs[reportID]
	return ok
}

// SetActive opens or closes the gate of reportID. Once closed, frames
// dequeued afterwards are dropped. Opening the gate admits only frames
// delivered after the call.
func (d *Dispatcher) SetActive(reportID string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.regs[reportID]
	if !ok || reg.active == active {
		return
	}
	reg.active = active
	if active {
		reg.since = d.seq.Load()
	}
}

// Deliver enqueues one raw report frame. It never blocks: when the queue
// is full the frame is dropped and counted.
func (d *Dispatcher) Deliver(frame []byte) bool {
	if d.isClosed() {
		return false
	}

	item := queued{seq: d.seq.Add(1), frame: frame}
	select {
	case d.queue <- item:
		return true
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("report queue full, dropping frame", "dropped", n, "queueSize", cap(d.queue))
		return false
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Delivered returns the number of events handed to handlers.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

// Close removes all registrations and stops the dispatcher goroutine.
// It does not wait for a running handler, so a handler may close its own
// session. Use Done to wait for the goroutine to exit.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.regs = make(map[string]*registration)
		close(d.closed)
		d.mu.Unlock()
	})
}

// Done is closed when the dispatcher goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.closed:
			return
		case item := <-d.queue:
			d.dispatch(item)
		}
	}
}

func (d *Dispatcher) dispatch(item queued) {
	rpt, err := wire.DecodeReport(item.frame)
	if err != nil {
		d.logger.Warn("dropping malformed report", "error", err)
		d.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: d.config.ConnID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryError,
			LocalRole:    log.RoleClient,
			Error: &log.ErrorEventData{
				Layer:   log.LayerWire,
				Message: err.Error(),
				Context: "decode report",
			},
		})
		return
	}
	d.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.config.ConnID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Message:      log.ReportMessage(rpt),
	})

	d.mu.Lock()
	reg, ok := d.regs[rpt.ReportID]
	var handler Handler
	var rcbRef model.ObjectReference
	if ok && reg.active && item.seq > reg.since {
		handler = reg.handler
		rcbRef = reg.rcbRef
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("no handler for report", "reportID", rpt.ReportID)
		return
	}
	if handler == nil {
		d.logger.Debug("report gate closed", "reportID", rpt.ReportID, "seqNum", rpt.SeqNum)
		return
	}

	ev := eventFromWire(rpt)
	if ev.RCBReference == "" {
		ev.RCBReference = rcbRef
	}
	if d.config.Layout != nil && ev.DataSet != "" {
		if entries, known := d.config.Layout(ev.DataSet); known {
			if len(entries) != len(ev.Values) {
				d.logger.Warn("dropping report with wrong entry count",
					"reportID", rpt.ReportID, "dataSet", ev.DataSet,
					"values", len(ev.Values), "entries", len(entries))
				return
			}
			ev.Entries = entries
		}
	}

	d.invoke(handler, ev)
}

func (d *Dispatcher) invoke(handler Handler, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("report handler panicked", "reportID", ev.ReportID, "panic", r)
		}
	}()
	d.delivered.Add(1)
	handler(ev)
}
