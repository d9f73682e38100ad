package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Default client settings.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultQueueSize = 64
)

// Sender writes one encoded request frame to the device.
type Sender interface {
	Send(data []byte) error
}

// Config configures a Client.
type Config struct {
	// Timeout bounds the wait for one response (default 10s).
	Timeout time.Duration

	// QueueSize is the number of requests that may wait behind the one in
	// flight before submitters block (default 64).
	QueueSize int

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives decoded request/response events. Optional.
	ProtocolLogger log.Logger

	// ConnID tags protocol log events.
	ConnID string
}

// Client runs request/response exchanges with a device. At most one
// request is outstanding at a time: submissions are queued FIFO and served
// by a single exchange goroutine, so concurrent callers complete in the
// order they were submitted.
//
// Responses are fed back by the connection reader through HandleResponse.
type Client struct {
	sender Sender
	config Config
	logger *slog.Logger
	plog   log.Logger

	queue chan *exchange

	// In-flight exchange.
	pendingMu sync.Mutex
	pendingID uint32
	pendingCh chan *wire.Response

	nextID uint32

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	wg        sync.WaitGroup
}

type exchange struct {
	ctx  context.Context
	req  *wire.Request
	done chan exchangeResult
}

type exchangeResult struct {
	resp *wire.Response
	err  error
}

func (ex *exchange) finish(resp *wire.Response, err error) {
	select {
	case ex.done <- exchangeResult{resp: resp, err: err}:
	default:
	}
}

// NewClient creates a client and starts its exchange goroutine.
func NewClient(sender Sender, config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		sender: sender,
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		queue:  make(chan *exchange, config.QueueSize),
		closed: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// Close fails the in-flight and queued requests with ErrClientClosed and
// stops the exchange goroutine.
func (c *Client) Close() error {
	return c.CloseWithError(ErrClientClosed)
}

// CloseWithError is like Close but fails pending requests with err.
// Only the first call sets the error.
func (c *Client) CloseWithError(err error) error {
	c.Abort(err)
	c.wg.Wait()
	return nil
}

// Abort fails pending requests with err without waiting for the exchange
// goroutine. Use it before closing a connection whose Send may block.
func (c *Client) Abort(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
}

// Done is closed once the client has been closed or aborted.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Queued returns the number of requests waiting behind the in-flight one.
func (c *Client) Queued() int {
	return len(c.queue)
}

// Do submits a request and waits for its response. The message ID is
// assigned by the client. A canceled ctx abandons the wait but not the
// exchange: the request is still answered before the next one is sent.
func (c *Client) Do(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	ex := &exchange{ctx: ctx, req: req, done: make(chan exchangeResult, 1)}

	select {
	case <-c.closed:
		return nil, c.closeErr
	default:
	}

	select {
	case c.queue <- ex:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closeErr
	}

	select {
	case r := <-ex.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closeErr
	}
}

// HandleResponse should be called by the connection reader for every
// response frame.
func (c *Client) HandleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pendingCh == nil || resp.MessageID != c.pendingID {
		c.logger.Debug("unexpected response", "msgID", resp.MessageID, "status", resp.Status)
		return ErrUnexpectedReply
	}

	select {
	case c.pendingCh <- resp:
	default:
		return ErrUnexpectedReply
	}
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closed:
			c.drain()
			return
		case ex := <-c.queue:
			c.serve(ex)
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case ex := <-c.queue:
			ex.finish(nil, c.closeErr)
		default:
			return
		}
	}
}

func (c *Client) messageID() uint32 {
	c.nextID++
	if c.nextID == wire.ReportMessageID {
		c.nextID++
	}
	return c.nextID
}

func (c *Client) serve(ex *exchange) {
	if err := ex.ctx.Err(); err != nil {
		ex.finish(nil, err)
		return
	}

	req := ex.req
	req.MessageID = c.messageID()
	data, err := wire.EncodeRequest(req)
	if err != nil {
		ex.finish(nil, err)
		return
	}

	respCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pendingID = req.MessageID
	c.pendingCh = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		c.pendingID = 0
		c.pendingCh = nil
		c.pendingMu.Unlock()
	}()

	c.logMessage(log.DirectionOut, log.RequestMessage(req))
	c.logger.Debug("request", "msgID", req.MessageID, "service", req.Service, "ref", req.Reference)

	start := time.Now()
	if err := c.sender.Send(data); err != nil {
		select {
		case <-c.closed:
			ex.finish(nil, c.closeErr)
		default:
			ex.finish(nil, fmt.Errorf("send %s: %w", req.Service, err))
		}
		return
	}

	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		rtt := time.Since(start)
		c.logMessage(log.DirectionIn, log.ResponseMessage(resp, rtt))
		c.logger.Debug("response", "msgID", resp.MessageID, "status", resp.Status, "roundTrip", rtt)
		ex.finish(resp, nil)
	case <-timer.C:
		c.logger.Warn("request timed out", "msgID", req.MessageID, "service", req.Service)
		ex.finish(nil, fmt.Errorf("%s: %w", req.Service, ErrRequestTimeout))
	case <-c.closed:
		ex.finish(nil, c.closeErr)
	}
}

func (c *Client) logMessage(dir log.Direction, msg *log.MessageEvent) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.config.ConnID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Message:      msg,
	})
}
