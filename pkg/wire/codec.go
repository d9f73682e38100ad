package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Decoder limits. Each structured value level takes two CBOR levels.
const (
	maxNestedLevels = 256
	maxArrayLength  = 1 << 16
	maxMapPairs     = 1 << 12
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR encoder mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	// Unknown and duplicate keys are tolerated so newer devices can add
	// fields without breaking older clients.
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyQuiet,
		IndefLength:      cbor.IndefLengthAllowed,
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayLength,
		MaxMapPairs:      maxMapPairs,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR decoder mode: %v", err))
	}
	return dm
}

// Marshal encodes v with the protocol's canonical CBOR settings.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type validator interface {
	Validate() error
}

func encode(kind string, msg validator) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", kind, err)
	}
	return Marshal(msg)
}

func decode[T any, P interface {
	*T
	validator
}](kind string, data []byte) (*T, error) {
	var msg T
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := P(&msg).Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", kind, err)
	}
	return &msg, nil
}

// EncodeRequest validates and encodes a request.
func EncodeRequest(req *Request) ([]byte, error) {
	return encode("request", req)
}

// DecodeRequest decodes and validates a request.
func DecodeRequest(data []byte) (*Request, error) {
	return decode[Request]("request", data)
}

// EncodeResponse encodes a response. Responses carry whatever the device
// produced, so they are not validated.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes a response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// EncodeReport encodes a report frame. Its message ID is forced to
// ReportMessageID.
func EncodeReport(rpt *Report) ([]byte, error) {
	rpt.MessageID = ReportMessageID
	return encode("report", rpt)
}

// DecodeReport decodes and validates a report frame.
func DecodeReport(data []byte) (*Report, error) {
	return decode[Report]("report", data)
}

// MessageType classifies a frame on the session stream.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeReport
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	case MessageTypeReport:
		return "report"
	default:
		return "unknown"
	}
}

// ErrNoMessageID is returned by PeekMessageType for a frame without key 1.
var ErrNoMessageID = errors.New("message without messageId")

// envelope holds the keys that tell the message kinds apart.
type envelope struct {
	MessageID *uint32 `cbor:"1,keyasint"`
	Service   *uint8  `cbor:"2,keyasint"`
	Status    *uint8  `cbor:"7,keyasint"`
}

// PeekMessageType classifies a frame from its envelope keys: message ID 0
// is a report, a service key makes a request and a status key a
// response.
func PeekMessageType(data []byte) (MessageType, error) {
	var env envelope
	if err := Unmarshal(data, &env); err != nil {
		return MessageTypeUnknown, fmt.Errorf("peek message: %w", err)
	}

	switch {
	case env.MessageID == nil:
		return MessageTypeUnknown, ErrNoMessageID
	case *env.MessageID == ReportMessageID:
		return MessageTypeReport, nil
	case env.Service != nil:
		return MessageTypeRequest, nil
	case env.Status != nil:
		return MessageTypeResponse, nil
	default:
		return MessageTypeUnknown, nil
	}
}
