package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/iedlink/iedlink-go/pkg/model"
)

// CBOR map keys for message encoding.
// Keys are unique across message kinds, so the kind of a frame can be
// determined from the keys it carries.
const (
	KeyMessageID = 1

	// Request keys
	KeyService   = 2
	KeyReference = 3
	KeyFC        = 4
	KeyClass     = 5
	KeyPayload   = 6

	// Response keys
	KeyStatus          = 7
	KeyResponsePayload = 8

	// Report keys (messageId=0)
	KeyReportID = 9
)

// ReportMessageID is reserved to indicate a report frame.
const ReportMessageID uint32 = 0

// ErrNoPayload is returned when decoding a payload that was not sent.
var ErrNoPayload = errors.New("message has no payload")

// Request represents a service request from client to device.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, never 0
//	  2: service,      // uint8
//	  3: reference,    // text: object reference (service dependent)
//	  4: fc,           // text: functional constraint (Read/Write)
//	  5: class,        // uint8: object class (GetLogicalNodeDirectory)
//	  6: payload       // service-specific data
//	}
type Request struct {
	MessageID uint32                `cbor:"1,keyasint"`
	Service   Service               `cbor:"2,keyasint"`
	Reference model.ObjectReference `cbor:"3,keyasint,omitempty"`
	FC        model.FC              `cbor:"4,keyasint,omitempty"`
	Class     model.NodeClass       `cbor:"5,keyasint,omitempty"`
	Payload   cbor.RawMessage       `cbor:"6,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == ReportMessageID {
		return fmt.Errorf("messageId 0 is reserved for reports")
	}
	if !r.Service.IsValid() {
		return fmt.Errorf("invalid service: %d", r.Service)
	}
	return nil
}

// SetPayload encodes v as the request payload.
func (r *Request) SetPayload(v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", r.Service, err)
	}
	r.Payload = data
	return nil
}

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return ErrNoPayload
	}
	return Unmarshal(r.Payload, v)
}

// Response represents a device response to a request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  7: status,       // uint8: 0=success, or error code
//	  8: payload       // service-specific data (success) or ErrorPayload
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"7,keyasint"`
	Payload   cbor.RawMessage `cbor:"8,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// SetPayload encodes v as the response payload.
func (r *Response) SetPayload(v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}
	r.Payload = data
	return nil
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return ErrNoPayload
	}
	return Unmarshal(r.Payload, v)
}

// ErrorMessage returns the human-readable message of an error response.
func (r *Response) ErrorMessage() string {
	if r.IsSuccess() || len(r.Payload) == 0 {
		return ""
	}
	var ep ErrorPayload
	if err := Unmarshal(r.Payload, &ep); err != nil {
		return ""
	}
	return ep.Message
}

// Report is a device-initiated report frame for an enabled report
// control block.
//
// CBOR encoding:
//
//	{
//	  1: 0,            // messageId 0 = report
//	  9: reportId,     // text
//	  10: rcbRef,      // text
//	  11: dataSet,     // text
//	  12: seqNum,      // uint32
//	  13: entryId,     // bytes (buffered only)
//	  14: timestamp,   // int: unix milliseconds
//	  15: confRev,     // uint32
//	  16: values,      // array of values, dataset entry order
//	  17: reasons      // array of uint8, one per value
//	}
type Report struct {
	MessageID uint32                `cbor:"1,keyasint"`
	ReportID  string                `cbor:"9,keyasint"`
	RCBRef    model.ObjectReference `cbor:"10,keyasint,omitempty"`
	DataSet   model.ObjectReference `cbor:"11,keyasint,omitempty"`
	SeqNum    uint32                `cbor:"12,keyasint,omitempty"`
	EntryID   []byte                `cbor:"13,keyasint,omitempty"`
	Timestamp int64                 `cbor:"14,keyasint,omitempty"`
	ConfRev   uint32                `cbor:"15,keyasint,omitempty"`
	Values    []model.Value         `cbor:"16,keyasint"`
	Reasons   []uint8               `cbor:"17,keyasint"`
}

// Validate checks the structural invariants of a report frame.
func (r *Report) Validate() error {
	if r.MessageID != ReportMessageID {
		return fmt.Errorf("not a report message: messageId=%d", r.MessageID)
	}
	if r.ReportID == "" {
		return fmt.Errorf("report without reportId")
	}
	if len(r.Values) != len(r.Reasons) {
		return fmt.Errorf("report %s: %d values but %d reasons", r.ReportID, len(r.Values), len(r.Reasons))
	}
	return nil
}

// NameList is the payload of the directory services: child names in
// server order.
type NameList struct {
	Names []string `cbor:"1,keyasint"`
}

// DataSetPayload carries a dataset definition. It is the payload of
// CreateDataSet requests and GetDataSetDirectory responses.
type DataSetPayload struct {
	Entries   []model.ObjectReference `cbor:"1,keyasint"`
	Deletable bool                    `cbor:"2,keyasint,omitempty"`
}

// ValueList is the payload of a ReadDataSet response.
type ValueList struct {
	Values []model.Value `cbor:"1,keyasint"`
}

// RCBValues carries report control block attributes. A nil field is absent
// from the message: GetRCBValues responses fill every field, SetRCBValues
// requests carry only the fields to write.
//
// CBOR encoding:
//
//	{
//	  1: rptId,        // text
//	  2: datSet,       // text
//	  3: confRev,      // uint32 (read-only)
//	  4: buffered,     // bool (read-only)
//	  5: rptEna,       // bool
//	  6: trgOps,       // uint8 bitset
//	  7: intgPd,       // uint32 ms
//	  8: bufTm,        // uint32 ms
//	  9: gi            // bool
//	}
type RCBValues struct {
	ReportID        *string                `cbor:"1,keyasint,omitempty"`
	DataSet         *model.ObjectReference `cbor:"2,keyasint,omitempty"`
	ConfRev         *uint32                `cbor:"3,keyasint,omitempty"`
	Buffered        *bool                  `cbor:"4,keyasint,omitempty"`
	Enabled         *bool                  `cbor:"5,keyasint,omitempty"`
	TriggerOptions  *uint8                 `cbor:"6,keyasint,omitempty"`
	IntegrityPeriod *uint32                `cbor:"7,keyasint,omitempty"`
	BufferTime      *uint32                `cbor:"8,keyasint,omitempty"`
	GI              *bool                  `cbor:"9,keyasint,omitempty"`
}

// IsEmpty returns true if no field is set.
func (v *RCBValues) IsEmpty() bool {
	return v.ReportID == nil && v.DataSet == nil && v.ConfRev == nil && v.Buffered == nil &&
		v.Enabled == nil && v.TriggerOptions == nil && v.IntegrityPeriod == nil &&
		v.BufferTime == nil && v.GI == nil
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding:
//
//	{
//	  1: message  // string: human-readable error message
//	}
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// Ptr returns a pointer to v. It keeps RCBValues literals short.
func Ptr[T any](v T) *T {
	return &v
}
