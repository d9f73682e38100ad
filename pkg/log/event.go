package log

import (
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the capture was taken on the client or
	// on a (simulated) device.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the session layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (request/response/report).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of the session captured the event.
type Role uint8

const (
	// RoleClient is the client engine.
	RoleClient Role = 0
	// RoleDevice is a device or device simulator.
	RoleDevice Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const MaxFrameCapture = 4096

// NewFrameEvent captures a frame, truncating its data to MaxFrameCapture.
func NewFrameEvent(frame []byte) *FrameEvent {
	ev := &FrameEvent{Size: len(frame) + 4}
	if len(frame) > MaxFrameCapture {
		ev.Data = append([]byte(nil), frame[:MaxFrameCapture]...)
		ev.Truncated = true
	} else {
		ev.Data = append([]byte(nil), frame...)
	}
	return ev
}

// MessageEvent captures a decoded protocol message at the wire layer.
type MessageEvent struct {
	// Type distinguishes request/response/report.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates request/response pairs (0 for reports).
	MessageID uint32 `cbor:"2,keyasint"`

	// For requests: the service being invoked.
	Service *wire.Service `cbor:"3,keyasint,omitempty"`

	// For requests: the target object reference.
	Reference model.ObjectReference `cbor:"4,keyasint,omitempty"`

	// For requests: the functional constraint.
	FC model.FC `cbor:"5,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"6,keyasint,omitempty"`

	// For reports: the report ID and sequence number.
	ReportID string  `cbor:"7,keyasint,omitempty"`
	SeqNum   *uint32 `cbor:"8,keyasint,omitempty"`

	// For reports: number of values carried.
	ValueCount int `cbor:"9,keyasint,omitempty"`

	// RoundTrip is the time from request send to response receipt
	// (responses only). Stored as nanoseconds.
	RoundTrip *time.Duration `cbor:"10,keyasint,omitempty"`
}

// MessageType distinguishes request/response/report.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
	// MessageTypeReport indicates a report message.
	MessageTypeReport MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeReport:
		return "REPORT"
	default:
		return "UNKNOWN"
	}
}

// RequestMessage describes a request.
func RequestMessage(req *wire.Request) *MessageEvent {
	svc := req.Service
	return &MessageEvent{
		Type:      MessageTypeRequest,
		MessageID: req.MessageID,
		Service:   &svc,
		Reference: req.Reference,
		FC:        req.FC,
	}
}

// ResponseMessage describes a response and its round trip time.
func ResponseMessage(resp *wire.Response, roundTrip time.Duration) *MessageEvent {
	status := resp.Status
	ev := &MessageEvent{
		Type:      MessageTypeResponse,
		MessageID: resp.MessageID,
		Status:    &status,
	}
	if roundTrip > 0 {
		ev.RoundTrip = &roundTrip
	}
	return ev
}

// ReportMessage describes a report frame.
func ReportMessage(rpt *wire.Report) *MessageEvent {
	seq := rpt.SeqNum
	return &MessageEvent{
		Type:       MessageTypeReport,
		ReportID:   rpt.ReportID,
		Reference:  rpt.RCBRef,
		SeqNum:     &seq,
		ValueCount: len(rpt.Values),
	}
}

// StateChangeEvent captures session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 1
	// StateEntitySubscription indicates a report subscription state change.
	StateEntitySubscription StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
