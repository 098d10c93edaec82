package types

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	dateLayout        = "2006-01-02"
	timestampLayout   = "2006-01-02 15:04:05.999999"
	timestamptzLayout = "2006-01-02 15:04:05.999999-07"
)

// output renders v in its canonical text form; base is v's base type.
func output(base OID, v Value) (string, error) {
	switch base {
	case BoolOID:
		b, _ := v.BoolValue()
		if b {
			return "t", nil
		}
		return "f", nil
	case Int2OID, Int4OID, Int8OID:
		i, _ := v.Int64()
		return strconv.FormatInt(i, 10), nil
	case Float4OID:
		f, _ := v.Float64()
		return formatFloat(f, 32), nil
	case Float8OID:
		f, _ := v.Float64()
		return formatFloat(f, 64), nil
	case TextOID, VarcharOID, BpcharOID, UnknownOID, JSONOID:
		s, _ := v.Str()
		return s, nil
	case ByteaOID:
		b, _ := v.Bytes()
		return byteaOut(b), nil
	case DateOID, TimestampOID, TimestamptzOID:
		t, _ := v.Time()
		return formatTime(base, t), nil
	case UUIDOID:
		u, _ := v.UUIDValue()
		return u.String(), nil
	case RecordOID:
		fields, _ := v.Fields()
		var sb strings.Builder
		sb.WriteByte('(')
		for i, f := range fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			if f.IsNull() {
				continue
			}
			s, err := output(f.Type(), f)
			if err != nil {
				return "", err
			}
			sb.WriteString(quoteRecordField(s))
		}
		sb.WriteByte(')')
		return sb.String(), nil
	default:
		return "", errors.Wrapf(ErrUnknownType, "no output function for oid %d", base)
	}
}

// input parses s as a value of the base type.
func input(base OID, s string) (Value, error) {
	invalid := func(name string) error {
		return errors.Wrapf(ErrInvalidText, "for type %s: %q", name, s)
	}
	switch base {
	case BoolOID:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "t", "true", "y", "yes", "on", "1":
			return Bool(true), nil
		case "f", "false", "n", "no", "off", "0":
			return Bool(false), nil
		}
		return Value{}, invalid("boolean")
	case Int2OID, Int4OID, Int8OID:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return Value{}, errors.Wrapf(ErrOutOfRange, "%q", s)
			}
			return Value{}, invalid("integer")
		}
		return intOf(base, i)
	case Float4OID, Float8OID:
		f, err := parseFloat(strings.TrimSpace(s))
		if err != nil {
			return Value{}, invalid("double precision")
		}
		if base == Float4OID {
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return Value{}, errors.Wrapf(ErrOutOfRange, "%q is out of range for type real", s)
			}
			return Float4(float32(f)), nil
		}
		return Float8(f), nil
	case TextOID:
		return Text(s), nil
	case VarcharOID:
		return Varchar(s), nil
	case BpcharOID:
		return Bpchar(s), nil
	case UnknownOID:
		return Unknown(s), nil
	case JSONOID:
		if !json.Valid([]byte(s)) {
			return Value{}, invalid("json")
		}
		return JSON(s), nil
	case ByteaOID:
		if strings.HasPrefix(s, `\x`) {
			b, err := hex.DecodeString(s[2:])
			if err != nil {
				return Value{}, invalid("bytea")
			}
			return Bytea(b), nil
		}
		return Bytea([]byte(s)), nil
	case DateOID, TimestampOID, TimestamptzOID:
		t, err := parseTime(strings.TrimSpace(s))
		if err != nil {
			return Value{}, invalid("timestamp")
		}
		switch base {
		case DateOID:
			return Date(t), nil
		case TimestampOID:
			return Timestamp(t), nil
		}
		return TimestampTz(t), nil
	case UUIDOID:
		u, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return Value{}, invalid("uuid")
		}
		return UUID(u), nil
	default:
		return Value{}, errors.Wrapf(ErrUnknownType, "no input function for oid %d", base)
	}
}

func intOf(base OID, i int64) (Value, error) {
	switch base {
	case Int2OID:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return Value{}, errors.Wrap(ErrOutOfRange, "smallint out of range")
		}
		return Int2(int16(i)), nil
	case Int4OID:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return Value{}, errors.Wrap(ErrOutOfRange, "integer out of range")
		}
		return Int4(int32(i)), nil
	default:
		return Int8(i), nil
	}
}

func parseFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "nan":
		return math.NaN(), nil
	case "infinity", "inf", "+infinity":
		return math.Inf(1), nil
	case "-infinity", "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func formatTime(oid OID, t time.Time) string {
	switch oid {
	case DateOID:
		return t.Format(dateLayout)
	case TimestampOID:
		return t.Format(timestampLayout)
	default:
		return t.Format(timestamptzLayout)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	timestamptzLayout,
	"2006-01-02 15:04:05.999999-07:00",
	timestampLayout,
	"2006-01-02T15:04:05.999999",
	dateLayout,
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func byteaOut(b []byte) string {
	return `\x` + hex.EncodeToString(b)
}

func quoteRecordField(s string) string {
	if s == "" || strings.ContainsAny(s, `(),"\ `) {
		return `"` + strings.NewReplacer(`"`, `""`, `\`, `\\`).Replace(s) + `"`
	}
	return s
}
