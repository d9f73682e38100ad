package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iedlink/iedlink-go/pkg/interaction"
	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// State is the session state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Session is one logical connection to a device. Requests from any
// goroutine are queued and served one at a time; reports are routed to
// the session's dispatcher while requests are in flight.
type Session struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	connectMu sync.Mutex

	mu         sync.RWMutex
	state      State
	endpoint   Endpoint
	lastErr    error
	connID     string
	conn       Conn
	client     *interaction.Client
	dispatcher *report.Dispatcher
	readerDone chan struct{}

	layoutMu sync.RWMutex
	layouts  map[model.ObjectReference][]model.ObjectReference
}

// NewSession creates a disconnected session.
func NewSession(config Config) *Session {
	config.applyDefaults()
	return &Session{
		config:  config,
		logger:  config.Logger,
		plog:    log.OrNoop(config.ProtocolLogger),
		layouts: make(map[model.ObjectReference][]model.ObjectReference),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Endpoint returns the endpoint of the current or last connection.
func (s *Session) Endpoint() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// LastError returns the error that ended the last connection, if any.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ConnID returns the identifier of the current connection.
func (s *Session) ConnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connID
}

// Connect opens the session. On failure the session is left unchanged and
// a *ConnectError is returned.
func (s *Session) Connect(ctx context.Context, ep Endpoint) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if st := s.State(); st != StateDisconnected {
		return &ConnectError{Kind: ConnectAlreadyConnected, Endpoint: ep}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	connID := uuid.New().String()
	dialer := s.config.Dialer
	if dialer == nil {
		td, err := newTransportDialer(&s.config, connID)
		if err != nil {
			return &ConnectError{Kind: ConnectOther, Endpoint: ep, Err: err}
		}
		dialer = td
	}

	conn, err := dialer.Dial(ctx, ep.String())
	if err != nil {
		kind := classifyDialError(err)
		s.logger.Warn("connect failed", "endpoint", ep.String(), "kind", kind.String(), "error", err)
		return &ConnectError{Kind: kind, Endpoint: ep, Err: err}
	}

	client := interaction.NewClient(conn, interaction.Config{
		Timeout:        s.config.RequestTimeout,
		QueueSize:      s.config.RequestQueueSize,
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
		ConnID:         connID,
	})
	dispatcher := report.NewDispatcher(report.DispatcherConfig{
		QueueSize:      s.config.ReportQueueSize,
		Layout:         s.layout,
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
		ConnID:         connID,
	})
	readerDone := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.client = client
	s.dispatcher = dispatcher
	s.readerDone = readerDone
	s.endpoint = ep
	s.connID = connID
	s.lastErr = nil
	s.setState(StateConnected, "connected to "+ep.String())
	s.mu.Unlock()

	go s.readLoop(conn, client, dispatcher, readerDone)
	return nil
}

// Close disconnects the session. Outstanding requests fail with
// ErrNotConnected and all report registrations and cached dataset
// layouts are released. Close is idempotent and may be called from a
// report handler.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.setState(StateClosing, "close requested")
	conn, client, dispatcher, readerDone := s.conn, s.client, s.dispatcher, s.readerDone
	s.mu.Unlock()

	client.Abort(ErrNotConnected)
	dispatcher.Close()
	err := conn.Close()
	<-readerDone
	_ = client.CloseWithError(ErrNotConnected)

	s.clearLayouts()

	s.mu.Lock()
	s.conn = nil
	s.client = nil
	s.dispatcher = nil
	s.setState(StateDisconnected, "closed")
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// connectionLost tears down a connection the device or network closed.
func (s *Session) connectionLost(conn Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	client, dispatcher := s.client, s.dispatcher
	s.conn = nil
	s.client = nil
	s.dispatcher = nil
	s.lastErr = fmt.Errorf("connection lost: %w", cause)
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		LocalRole:    log.RoleClient,
		RemoteAddr:   s.endpoint.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: cause.Error(),
			Context: "read frame",
		},
	})
	s.setState(StateDisconnected, s.lastErr.Error())
	s.mu.Unlock()

	s.logger.Warn("connection lost", "error", cause)
	client.Abort(ErrNotConnected)
	dispatcher.Close()
	_ = conn.Close()
	s.clearLayouts()
}

func (s *Session) readLoop(conn Conn, client *interaction.Client, dispatcher *report.Dispatcher, done chan struct{}) {
	defer close(done)

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			s.connectionLost(conn, err)
			return
		}

		typ, err := wire.PeekMessageType(data)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", "frameSize", len(data), "error", err)
			continue
		}

		switch typ {
		case wire.MessageTypeReport:
			dispatcher.Deliver(data)
		case wire.MessageTypeResponse:
			resp, err := wire.DecodeResponse(data)
			if err != nil {
				s.logger.Warn("dropping malformed response", "error", err)
				continue
			}
			_ = client.HandleResponse(resp)
		default:
			s.logger.Warn("dropping unexpected frame", "msgType", typ.String())
		}
	}
}

// exchange returns the request client of a connected session.
func (s *Session) exchange() (*interaction.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Dispatcher returns the report dispatcher of the current connection.
func (s *Session) Dispatcher() (*report.Dispatcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected {
		return nil, ErrNotConnected
	}
	return s.dispatcher, nil
}

// setState records a transition. Callers hold mu.
func (s *Session) setState(newState State, reason string) {
	old := s.state
	if old == newState {
		return
	}
	s.state = newState
	s.logger.Info("session state changed", "connID", s.connID, "oldState", old.String(), "newState", newState.String(), "reason", reason)
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		RemoteAddr:   s.endpoint.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}

// ReadObject reads one object under a functional constraint.
func (s *Session) ReadObject(ctx context.Context, ref model.ObjectReference, fc model.FC) (model.Value, error) {
	if err := validateAccess(ref, fc); err != nil {
		return model.Value{}, err
	}
	c, err := s.exchange()
	if err != nil {
		return model.Value{}, err
	}
	return c.Read(ctx, ref, fc)
}

// WriteObject writes one object under a functional constraint.
func (s *Session) WriteObject(ctx context.Context, ref model.ObjectReference, fc model.FC, value model.Value) error {
	if err := validateAccess(ref, fc); err != nil {
		return err
	}
	c, err := s.exchange()
	if err != nil {
		return err
	}
	return c.Write(ctx, ref, fc, value)
}

func validateAccess(ref model.ObjectReference, fc model.FC) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if _, _, hasFC := ref.SplitFC(); hasFC {
		return fmt.Errorf("%w: %q: pass the functional constraint separately", model.ErrInvalidReference, ref)
	}
	if !fc.IsValid() {
		return fmt.Errorf("%w: unknown functional constraint %q", model.ErrInvalidReference, fc)
	}
	return nil
}

// GetRCBValues reads a report control block. It lets a Session serve as
// the report.RCBService of its subscriptions.
func (s *Session) GetRCBValues(ctx context.Context, ref model.ObjectReference) (*wire.RCBValues, error) {
	c, err := s.exchange()
	if err != nil {
		return nil, err
	}
	return c.GetRCBValues(ctx, ref)
}

// SetRCBValues writes the selected fields of a report control block.
func (s *Session) SetRCBValues(ctx context.Context, ref model.ObjectReference, values *wire.RCBValues) error {
	c, err := s.exchange()
	if err != nil {
		return err
	}
	return c.SetRCBValues(ctx, ref, values)
}

// Report returns a subscription for the report control block at ref.
// The subscription is tied to the current connection.
func (s *Session) Report(ref model.ObjectReference) (*report.Subscription, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected {
		return nil, ErrNotConnected
	}
	return report.NewSubscription(ref, s, s.dispatcher, report.SubscriptionConfig{
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
		ConnID:         s.connID,
	}), nil
}

var _ report.RCBService = (*Session)(nil)
