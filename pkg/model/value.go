package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueType is the type tag of a data attribute value.
type ValueType uint8

const (
	TypeUnknown ValueType = iota
	TypeBoolean
	TypeInteger
	TypeUnsigned
	TypeFloat
	TypeVisibleString
	TypeOctetString
	TypeBitString
	TypeUTCTime
	TypeStructure
	TypeArray
	TypeDataAccessError
)

// String returns the type name.
func (t ValueType) String() string {
	names := []string{
		"unknown", "boolean", "integer", "unsigned", "float", "visible-string",
		"octet-string", "bit-string", "utc-time", "structure", "array", "access-error",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// DataAccessError is the per-slot failure code a device returns in place of
// a value it could not read.
type DataAccessError int8

const (
	AccessErrorUnknown                     DataAccessError = -3
	AccessErrorNoResponse                  DataAccessError = -2
	AccessErrorNone                        DataAccessError = -1
	AccessErrorObjectInvalidated           DataAccessError = 0
	AccessErrorHardwareFault               DataAccessError = 1
	AccessErrorTemporarilyUnavailable      DataAccessError = 2
	AccessErrorObjectAccessDenied          DataAccessError = 3
	AccessErrorObjectUndefined             DataAccessError = 4
	AccessErrorInvalidAddress              DataAccessError = 5
	AccessErrorTypeUnsupported             DataAccessError = 6
	AccessErrorTypeInconsistent            DataAccessError = 7
	AccessErrorObjectAttributeInconsistent DataAccessError = 8
	AccessErrorObjectAccessUnsupported     DataAccessError = 9
	AccessErrorObjectNonExistent           DataAccessError = 10
	AccessErrorObjectValueInvalid          DataAccessError = 11
	AccessErrorTimeout                     DataAccessError = 12
)

// String returns a short description of the access error.
func (e DataAccessError) String() string {
	switch e {
	case AccessErrorNoResponse:
		return "no response"
	case AccessErrorNone:
		return "none"
	case AccessErrorObjectInvalidated:
		return "object invalidated"
	case AccessErrorHardwareFault:
		return "hardware fault"
	case AccessErrorTemporarilyUnavailable:
		return "temporarily unavailable"
	case AccessErrorObjectAccessDenied:
		return "access denied"
	case AccessErrorObjectUndefined:
		return "object undefined"
	case AccessErrorInvalidAddress:
		return "invalid address"
	case AccessErrorTypeUnsupported:
		return "type unsupported"
	case AccessErrorTypeInconsistent:
		return "type inconsistent"
	case AccessErrorObjectAttributeInconsistent:
		return "attribute inconsistent"
	case AccessErrorObjectAccessUnsupported:
		return "access unsupported"
	case AccessErrorObjectNonExistent:
		return "object non-existent"
	case AccessErrorObjectValueInvalid:
		return "value invalid"
	case AccessErrorTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Value is a self-describing attribute value. Only the payload fields
// matching Type are meaningful.
type Value struct {
	Type     ValueType       `cbor:"1,keyasint"`
	Bool     bool            `cbor:"2,keyasint,omitempty"`
	Int      int64           `cbor:"3,keyasint,omitempty"`
	Uint     uint64          `cbor:"4,keyasint,omitempty"`
	Float    float64         `cbor:"5,keyasint,omitempty"`
	Str      string          `cbor:"6,keyasint,omitempty"`
	Bytes    []byte          `cbor:"7,keyasint,omitempty"`
	BitSize  int             `cbor:"8,keyasint,omitempty"`
	Elements []Value         `cbor:"9,keyasint,omitempty"`
	Error    DataAccessError `cbor:"10,keyasint,omitempty"`
}

// ValueCollection holds values in dataset entry order.
type ValueCollection []Value

// Constructors.

func BoolValue(b bool) Value { return Value{Type: TypeBoolean, Bool: b} }
func IntValue(i int64) Value { return Value{Type: TypeInteger, Int: i} }
func UintValue(u uint64) Value { return Value{Type: TypeUnsigned, Uint: u} }
func FloatValue(f float64) Value { return Value{Type: TypeFloat, Float: f} }
func StringValue(s string) Value { return Value{Type: TypeVisibleString, Str: s} }
func OctetsValue(b []byte) Value { return Value{Type: TypeOctetString, Bytes: b} }
func StructValue(e ...Value) Value { return Value{Type: TypeStructure, Elements: e} }
func ArrayValue(e ...Value) Value { return Value{Type: TypeArray, Elements: e} }
func ErrorValue(e DataAccessError) Value {
	return Value{Type: TypeDataAccessError, Error: e}
}

// BitStringValue packs size bits, most significant bit of the first byte first.
func BitStringValue(bits []byte, size int) Value {
	return Value{Type: TypeBitString, Bytes: bits, BitSize: size}
}

// TimeValue stores t with millisecond precision.
func TimeValue(t time.Time) Value {
	return Value{Type: TypeUTCTime, Int: t.UnixMilli()}
}

// IsError reports whether the slot holds a data access error.
func (v Value) IsError() bool {
	return v.Type == TypeDataAccessError
}

// AsFloat converts numeric values to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case TypeFloat:
		return v.Float, true
	case TypeInteger:
		return float64(v.Int), true
	case TypeUnsigned:
		return float64(v.Uint), true
	default:
		return math.NaN(), false
	}
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.Type != TypeBoolean {
		return false, false
	}
	return v.Bool, true
}

// AsTime returns the UTC time payload.
func (v Value) AsTime() (time.Time, bool) {
	if v.Type != TypeUTCTime {
		return time.Time{}, false
	}
	return time.UnixMilli(v.Int).UTC(), true
}

// Element returns the i-th element of a structure or array.
func (v Value) Element(i int) (Value, bool) {
	if v.Type != TypeStructure && v.Type != TypeArray {
		return Value{}, false
	}
	if i < 0 || i >= len(v.Elements) {
		return Value{}, false
	}
	return v.Elements[i], true
}

// Bit reports whether bit i of a bit string is set.
func (v Value) Bit(i int) bool {
	if v.Type != TypeBitString || i < 0 || i >= v.BitSize || i/8 >= len(v.Bytes) {
		return false
	}
	return v.Bytes[i/8]&(0x80>>(i%8)) != 0
}

// Equal reports whether two values have the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeInteger, TypeUTCTime:
		return v.Int == o.Int
	case TypeUnsigned:
		return v.Uint == o.Uint
	case TypeFloat:
		return v.Float == o.Float
	case TypeVisibleString:
		return v.Str == o.Str
	case TypeOctetString:
		return string(v.Bytes) == string(o.Bytes)
	case TypeBitString:
		return v.BitSize == o.BitSize && string(v.Bytes) == string(o.Bytes)
	case TypeStructure, TypeArray:
		if len(v.Elements) != len(o.Elements) {
			return false
		}
		for i := range v.Elements {
			if !v.Elements[i].Equal(o.Elements[i]) {
				return false
			}
		}
		return true
	case TypeDataAccessError:
		return v.Error == o.Error
	default:
		return true
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Type {
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	case TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case TypeUnsigned:
		return strconv.FormatUint(v.Uint, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case TypeVisibleString:
		return strconv.Quote(v.Str)
	case TypeOctetString:
		return fmt.Sprintf("%x", v.Bytes)
	case TypeBitString:
		var b strings.Builder
		for i := 0; i < v.BitSize; i++ {
			if v.Bit(i) {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		return b.String()
	case TypeUTCTime:
		t, _ := v.AsTime()
		return t.Format(time.RFC3339Nano)
	case TypeStructure, TypeArray:
		parts := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			parts[i] = e.String()
		}
		if v.Type == TypeArray {
			return "[" + strings.Join(parts, ", ") + "]"
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeDataAccessError:
		return "<error: " + v.Error.String() + ">"
	default:
		return "<unknown>"
	}
}

// ParseValue parses text into a value of the given type. Only primitive
// types are supported.
func ParseValue(t ValueType, s string) (Value, error) {
	switch t {
	case TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return BoolValue(b), nil
	case TypeInteger:
		i, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return IntValue(i), nil
	case TypeUnsigned:
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return UintValue(u), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return FloatValue(f), nil
	case TypeVisibleString:
		return StringValue(s), nil
	case TypeUTCTime:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s: %w", t, err)
		}
		return TimeValue(ts), nil
	default:
		return Value{}, fmt.Errorf("parse: unsupported type %s", t)
	}
}

// ParseValueType maps a type name as printed by ValueType.String.
func ParseValueType(name string) (ValueType, bool) {
	for t := TypeBoolean; t <= TypeDataAccessError; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return TypeUnknown, false
}
