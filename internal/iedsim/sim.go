package iedsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/transport"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Config configures a Simulator.
type Config struct {
	// Logger receives diagnostics (optional).
	Logger *slog.Logger

	// ProtocolLogger captures frames and decoded messages on the device
	// side (optional).
	ProtocolLogger log.Logger

	// Clock stamps reports. Defaults to time.Now.
	Clock func() time.Time
}

// Simulator is an in-memory device that serves the wire protocol.
// The model is built with the Add* methods before or while serving.
// A Simulator serves any number of connections.
type Simulator struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	mu       sync.Mutex
	devices  []*logicalDevice
	sessions map[*session]struct{}
	requests map[wire.Service]int
}

// New creates an empty simulator.
func New(cfg Config) *Simulator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Simulator{
		config:   cfg,
		logger:   logger,
		plog:     log.OrNoop(cfg.ProtocolLogger),
		sessions: make(map[*session]struct{}),
		requests: make(map[wire.Service]int),
	}
}

// session is one client connection.
type session struct {
	id     string
	conn   transport.FrameConn
	stopCh chan struct{}
	once   sync.Once
}

func (s *session) stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Handler returns a transport.Server connection handler.
func (s *Simulator) Handler() func(ctx context.Context, conn *transport.Conn) {
	return func(ctx context.Context, conn *transport.Conn) {
		if err := s.ServeConn(ctx, conn, conn.ConnID()); err != nil {
			s.logger.Debug("iedsim: session ended", "conn", conn.ConnID(), "error", err)
		}
	}
}

// Serve wraps nc in a framed connection and serves it until the peer
// disconnects or ctx is done.
func (s *Simulator) Serve(ctx context.Context, nc net.Conn) error {
	id := uuid.New().String()
	conn := transport.NewConn(nc, transport.ConnConfig{
		Logger: s.config.ProtocolLogger,
		ConnID: id,
	})
	defer conn.Close()
	return s.ServeConn(ctx, conn, id)
}

// Pipe starts serving one end of an in-memory connection and returns the
// other end.
func (s *Simulator) Pipe(ctx context.Context) net.Conn {
	client, device := net.Pipe()
	go func() {
		_ = s.Serve(ctx, device)
	}()
	return client
}

// ServeConn serves a framed connection. It returns nil when the peer
// closes the connection.
func (s *Simulator) ServeConn(ctx context.Context, conn transport.FrameConn, id string) error {
	sess := &session{id: id, conn: conn, stopCh: make(chan struct{})}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("iedsim: session opened", "conn", id)

	defer func() {
		sess.stop()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.releaseRCBs(sess)
		s.mu.Unlock()
		s.logger.Info("iedsim: session closed", "conn", id)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sess.stopCh:
		}
	}()

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-sess.stopCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			s.logger.Warn("iedsim: dropping malformed request", "conn", id, "error", err)
			continue
		}
		s.logMessage(id, log.DirectionIn, log.RequestMessage(req))

		resp, reports := s.handleRequest(sess, req)
		if err := s.send(sess, resp); err != nil {
			return err
		}
		s.push(reports)
	}
}

// DropConnections closes every served connection.
func (s *Simulator) DropConnections() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
		_ = sess.conn.Close()
	}
}

// Sessions returns the number of open sessions.
func (s *Simulator) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RequestCount returns how many requests of the given service were served.
func (s *Simulator) RequestCount(svc wire.Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[svc]
}

// TotalRequests returns how many requests were served.
func (s *Simulator) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

func (s *Simulator) send(sess *session, resp *wire.Response) error {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := sess.conn.Send(data); err != nil {
		return err
	}
	s.logMessage(sess.id, log.DirectionOut, log.ResponseMessage(resp, 0))
	return nil
}

func (s *Simulator) sendReport(sess *session, rpt *wire.Report) error {
	data, err := wire.EncodeReport(rpt)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := sess.conn.Send(data); err != nil {
		return err
	}
	s.logMessage(sess.id, log.DirectionOut, log.ReportMessage(rpt))
	return nil
}

func (s *Simulator) logMessage(connID string, dir log.Direction, msg *log.MessageEvent) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleDevice,
		Message:      msg,
	})
}
