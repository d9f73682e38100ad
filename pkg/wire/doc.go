// Package wire defines the CBOR wire format of the device access protocol.
//
// Messages are CBOR (RFC 8949) maps with integer keys, carried in
// length-prefixed frames (see package transport).
//
// # Message Types
//
// There are three message types:
//   - Request: client to device, one service per request
//   - Response: device to client, correlated by messageId
//   - Report: device to client, unsolicited, messageId 0
//
// Keys are unique across the three shapes, so PeekMessageType can classify
// a frame without decoding it fully.
//
// # Payloads
//
// Request and response payloads are carried as raw CBOR and decoded on
// demand with DecodePayload into the service's payload type (NameList,
// model.Value, DataSetPayload, ValueList, RCBValues).
//
// # Absent vs Present
//
// RCBValues uses pointer fields. A nil field is absent from the encoded
// map, which is how SetRCBValues writes only a subset of fields.
package wire
