package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FromDriver converts a value produced by a database/sql driver into a Value
// of type oid. When oid is InvalidOID the type is inferred from the payload.
func FromDriver(cat Catalog, oid OID, x any) (Value, error) {
	if oid == InvalidOID {
		v, err := FromGo(x)
		if err != nil {
			return Value{}, err
		}
		if v.Type() == UnknownOID {
			return Null(TextOID), nil
		}
		return v, nil
	}
	if x == nil {
		return Null(oid), nil
	}
	base := cat.BaseType(oid)
	switch v := x.(type) {
	case []byte:
		if base == ByteaOID {
			return Bytea(append([]byte(nil), v...)).WithType(oid), nil
		}
		return cat.Input(oid, string(v), -1)
	case string:
		return cat.Input(oid, v, -1)
	case int64:
		switch base {
		case Int2OID, Int4OID, Int8OID:
			iv, err := intOf(base, v)
			return iv.WithType(oid), err
		case BoolOID:
			return Bool(v != 0).WithType(oid), nil
		case Float4OID:
			return Float4(float32(v)).WithType(oid), nil
		case Float8OID:
			return Float8(float64(v)).WithType(oid), nil
		}
	case float64:
		switch base {
		case Float4OID:
			return Float4(float32(v)).WithType(oid), nil
		case Float8OID:
			return Float8(v).WithType(oid), nil
		}
	case bool:
		if base == BoolOID {
			return Bool(v).WithType(oid), nil
		}
	case time.Time:
		switch base {
		case DateOID:
			return Date(v).WithType(oid), nil
		case TimestampOID:
			return Timestamp(v).WithType(oid), nil
		case TimestamptzOID:
			return TimestampTz(v).WithType(oid), nil
		}
	}
	// Anything else goes through its text form.
	gv, err := FromGo(x)
	if err != nil {
		return Value{}, err
	}
	s, err := cat.Output(gv)
	if err != nil {
		return Value{}, err
	}
	return cat.Input(oid, s, -1)
}

// ToDriver converts v into an argument accepted by database/sql.
func ToDriver(v Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch x := v.Interface().(type) {
	case []Value:
		return nil, errors.New("types: record values cannot be sent as parameters")
	case []byte:
		return append([]byte(nil), x...), nil
	default:
		return x, nil
	}
}

// Decode builds a Value from a loosely typed wire representation, as found in
// JSON or YAML documents. typeName selects the target type; an empty name
// infers it from raw.
func Decode(cat Catalog, typeName string, raw any) (Value, error) {
	if typeName == "" {
		switch x := raw.(type) {
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				return Int8(int64(x)), nil
			}
			return Float8(x), nil
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return Int8(i), nil
			}
			f, err := x.Float64()
			if err != nil {
				return Value{}, errors.Wrapf(ErrInvalidText, "number %q", x.String())
			}
			return Float8(f), nil
		case map[string]any, []any:
			b, err := json.Marshal(x)
			if err != nil {
				return Value{}, errors.WithStack(err)
			}
			return JSON(string(b)), nil
		}
		return FromGo(raw)
	}
	oid, ok := cat.TypeByName(typeName)
	if !ok {
		return Value{}, errors.Wrapf(ErrUnknownType, "%q", typeName)
	}
	if raw == nil {
		return Null(oid), nil
	}
	var s string
	switch x := raw.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		s = x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return Value{}, errors.WithStack(err)
		}
		s = string(b)
	default:
		s = fmt.Sprint(x)
	}
	return cat.Input(oid, s, -1)
}

// Encode is the inverse of Decode: it returns the type name and a JSON
// friendly payload.
func Encode(cat Catalog, v Value) (string, any, error) {
	name := "unknown"
	if t, err := cat.Type(v.Type()); err == nil {
		name = t.Name
	}
	if v.IsNull() {
		return name, nil, nil
	}
	switch x := v.Interface().(type) {
	case bool, int64, string:
		return name, x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			s, err := cat.Output(v)
			return name, s, err
		}
		return name, x, nil
	}
	s, err := cat.Output(v)
	return name, s, err
}
