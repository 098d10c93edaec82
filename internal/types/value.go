package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Value is a runtime-typed, nullable value.
//
// The payload is one of:
//   - bool                      (bool)
//   - int64                     (int2, int4, int8)
//   - float64                   (float4, float8)
//   - string                    (text, varchar, bpchar, unknown, json)
//   - []byte                    (bytea)
//   - time.Time                 (date, timestamp, timestamptz)
//   - uuid.UUID                 (uuid)
//   - []Value                   (record)
//
// Domain-typed values carry the domain OID and the base type's payload.
type Value struct {
	typ  OID
	null bool
	data any
}

// Null returns the NULL value of type t.
func Null(t OID) Value { return Value{typ: t, null: true} }

func Bool(b bool) Value         { return Value{typ: BoolOID, data: b} }
func Int2(i int16) Value        { return Value{typ: Int2OID, data: int64(i)} }
func Int4(i int32) Value        { return Value{typ: Int4OID, data: int64(i)} }
func Int8(i int64) Value        { return Value{typ: Int8OID, data: i} }
func Float4(f float32) Value    { return Value{typ: Float4OID, data: float64(f)} }
func Float8(f float64) Value    { return Value{typ: Float8OID, data: f} }
func Text(s string) Value       { return Value{typ: TextOID, data: s} }
func Varchar(s string) Value    { return Value{typ: VarcharOID, data: s} }
func Bpchar(s string) Value     { return Value{typ: BpcharOID, data: s} }
func Bytea(b []byte) Value      { return Value{typ: ByteaOID, data: b} }
func UUID(u uuid.UUID) Value    { return Value{typ: UUIDOID, data: u} }
func Date(t time.Time) Value    { return Value{typ: DateOID, data: truncateDay(t)} }
func Timestamp(t time.Time) Value {
	return Value{typ: TimestampOID, data: t}
}
func TimestampTz(t time.Time) Value {
	return Value{typ: TimestamptzOID, data: t}
}

// Unknown is an untyped literal, the equivalent of a quoted constant whose
// type has not been resolved yet.
func Unknown(s string) Value { return Value{typ: UnknownOID, data: s} }

// JSON wraps an already encoded JSON document.
func JSON(doc string) Value { return Value{typ: JSONOID, data: doc} }

// Record builds an anonymous composite value.
func Record(fields ...Value) Value { return Value{typ: RecordOID, data: fields} }

// WithType relabels v as type t without touching the payload. It is used for
// binary-compatible casts and for domains over a base type.
func (v Value) WithType(t OID) Value {
	v.typ = t
	return v
}

func (v Value) Type() OID    { return v.typ }
func (v Value) IsNull() bool { return v.null }

// Interface returns the payload, nil for NULL.
func (v Value) Interface() any {
	if v.null {
		return nil
	}
	return v.data
}

func (v Value) Int64() (int64, bool) {
	i, ok := v.data.(int64)
	return i, ok && !v.null
}

func (v Value) Float64() (float64, bool) {
	f, ok := v.data.(float64)
	return f, ok && !v.null
}

func (v Value) Str() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && !v.null
}

func (v Value) BoolValue() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok && !v.null
}

func (v Value) Bytes() ([]byte, bool) {
	b, ok := v.data.([]byte)
	return b, ok && !v.null
}

func (v Value) Time() (time.Time, bool) {
	t, ok := v.data.(time.Time)
	return t, ok && !v.null
}

func (v Value) UUIDValue() (uuid.UUID, bool) {
	u, ok := v.data.(uuid.UUID)
	return u, ok && !v.null
}

func (v Value) Fields() ([]Value, bool) {
	f, ok := v.data.([]Value)
	return f, ok && !v.null
}

// Clone returns a copy that shares no memory with v.
func (v Value) Clone() Value {
	switch x := v.data.(type) {
	case []byte:
		v.data = append([]byte(nil), x...)
	case []Value:
		out := make([]Value, len(x))
		for i := range x {
			out[i] = x[i].Clone()
		}
		v.data = out
	}
	return v
}

// Release drops a by-reference payload so that it can be collected even if
// the container itself stays reachable. By-value payloads are left alone.
func (v *Value) Release() {
	switch v.data.(type) {
	case []byte, []Value, string:
		v.data = nil
	}
}

// Equal reports whether both values have the same type, nullness and payload.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch a := v.data.(type) {
	case []byte:
		b, ok := o.data.([]byte)
		return ok && string(a) == string(b)
	case []Value:
		b, ok := o.data.([]Value)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case time.Time:
		b, ok := o.data.(time.Time)
		return ok && a.Equal(b)
	default:
		return v.data == o.data
	}
}

func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch x := v.data.(type) {
	case string:
		return x
	case []byte:
		return byteaOut(x)
	case time.Time:
		return formatTime(v.typ, x)
	default:
		return fmt.Sprint(x)
	}
}

// FromGo wraps a native Go value, inferring its type.
func FromGo(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(UnknownOID), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int8(int64(v)), nil
	case int8:
		return Int2(int16(v)), nil
	case int16:
		return Int2(v), nil
	case int32:
		return Int4(v), nil
	case int64:
		return Int8(v), nil
	case uint8:
		return Int2(int16(v)), nil
	case uint16:
		return Int4(int32(v)), nil
	case uint32:
		return Int8(int64(v)), nil
	case float32:
		return Float4(v), nil
	case float64:
		return Float8(v), nil
	case string:
		return Text(v), nil
	case []byte:
		return Bytea(append([]byte(nil), v...)), nil
	case json.RawMessage:
		return JSON(string(v)), nil
	case time.Time:
		return TimestampTz(v), nil
	case uuid.UUID:
		return UUID(v), nil
	case []Value:
		return Record(v...), nil
	default:
		return Value{}, errors.Errorf("types: cannot wrap Go value of type %T", x)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
