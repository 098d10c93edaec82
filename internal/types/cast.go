package types

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// relabelPairs are binary-compatible (source, target) pairs.
var relabelPairs = map[[2]OID]bool{
	{TextOID, VarcharOID}:    true,
	{VarcharOID, TextOID}:    true,
	{UnknownOID, TextOID}:    true,
	{UnknownOID, VarcharOID}: true,
	{TextOID, BpcharOID}:     true,
	{VarcharOID, BpcharOID}:  true,
}

// castFuncs are the assignment casts that need a conversion function.
var castFuncs = map[[2]OID]CastFunc{
	{Int2OID, Int4OID}: intCast(Int4OID),
	{Int2OID, Int8OID}: intCast(Int8OID),
	{Int4OID, Int2OID}: intCast(Int2OID),
	{Int4OID, Int8OID}: intCast(Int8OID),
	{Int8OID, Int2OID}: intCast(Int2OID),
	{Int8OID, Int4OID}: intCast(Int4OID),

	{Int2OID, Float4OID}: intToFloat(Float4OID),
	{Int2OID, Float8OID}: intToFloat(Float8OID),
	{Int4OID, Float4OID}: intToFloat(Float4OID),
	{Int4OID, Float8OID}: intToFloat(Float8OID),
	{Int8OID, Float4OID}: intToFloat(Float4OID),
	{Int8OID, Float8OID}: intToFloat(Float8OID),

	{Float4OID, Int2OID}:   floatToInt(Int2OID),
	{Float4OID, Int4OID}:   floatToInt(Int4OID),
	{Float4OID, Int8OID}:   floatToInt(Int8OID),
	{Float8OID, Int2OID}:   floatToInt(Int2OID),
	{Float8OID, Int4OID}:   floatToInt(Int4OID),
	{Float8OID, Int8OID}:   floatToInt(Int8OID),
	{Float4OID, Float8OID}: floatCast(Float8OID),
	{Float8OID, Float4OID}: floatCast(Float4OID),

	{BpcharOID, TextOID}:    bpcharToText(TextOID),
	{BpcharOID, VarcharOID}: bpcharToText(VarcharOID),

	{DateOID, TimestampOID}:        timeCast(TimestampOID),
	{DateOID, TimestamptzOID}:      timeCast(TimestamptzOID),
	{TimestampOID, DateOID}:        timeCast(DateOID),
	{TimestamptzOID, DateOID}:      timeCast(DateOID),
	{TimestampOID, TimestamptzOID}: timeCast(TimestamptzOID),
	{TimestamptzOID, TimestampOID}: timeCast(TimestampOID),
}

func intCast(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		i, ok := v.Int64()
		if !ok {
			return Value{}, errors.Errorf("types: expected an integer payload, got %T", v.Interface())
		}
		return intOf(dst, i)
	}
}

func intToFloat(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		i, ok := v.Int64()
		if !ok {
			return Value{}, errors.Errorf("types: expected an integer payload, got %T", v.Interface())
		}
		if dst == Float4OID {
			return Float4(float32(i)), nil
		}
		return Float8(float64(i)), nil
	}
}

func floatToInt(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		f, ok := v.Float64()
		if !ok {
			return Value{}, errors.Errorf("types: expected a float payload, got %T", v.Interface())
		}
		r := math.RoundToEven(f)
		if math.IsNaN(r) || r < math.MinInt64 || r >= math.MaxInt64 {
			return Value{}, errors.Wrap(ErrOutOfRange, "bigint out of range")
		}
		return intOf(dst, int64(r))
	}
}

func floatCast(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		f, ok := v.Float64()
		if !ok {
			return Value{}, errors.Errorf("types: expected a float payload, got %T", v.Interface())
		}
		if dst == Float4OID {
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return Value{}, errors.Wrap(ErrOutOfRange, "value out of range for type real")
			}
			return Float4(float32(f)), nil
		}
		return Float8(f), nil
	}
}

func bpcharToText(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		s, _ := v.Str()
		return Value{typ: dst, data: strings.TrimRight(s, " ")}, nil
	}
}

func timeCast(dst OID) CastFunc {
	return func(v Value) (Value, error) {
		t, ok := v.Time()
		if !ok {
			return Value{}, errors.Errorf("types: expected a time payload, got %T", v.Interface())
		}
		switch dst {
		case DateOID:
			return Date(t), nil
		case TimestampOID:
			return Timestamp(t.UTC()), nil
		default:
			return TimestampTz(t.In(time.UTC)), nil
		}
	}
}

// charLen counts characters the way a length modifier sees them: code points
// of the NFC normalised text.
func charLen(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// truncateChars cuts s after n characters of its NFC form.
func truncateChars(s string, n int) string {
	s = norm.NFC.String(s)
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// varcharTypmod enforces character varying(n) under assignment rules:
// excess characters are an error unless they are all spaces.
func varcharTypmod(v Value, typmod int32) (Value, error) {
	s, _ := v.Str()
	n := int(typmod)
	if typmod < 0 || charLen(s) <= n {
		return v, nil
	}
	cut := truncateChars(s, n)
	if strings.TrimRight(norm.NFC.String(s)[len(cut):], " ") != "" {
		return Value{}, errors.Wrapf(ErrValueTooLong, "for type character varying(%d)", n)
	}
	return Value{typ: v.typ, data: cut}, nil
}

// bpcharTypmod enforces character(n): short values are blank padded, long
// values follow the varchar rule.
func bpcharTypmod(v Value, typmod int32) (Value, error) {
	s, _ := v.Str()
	n := int(typmod)
	if typmod < 0 {
		return v, nil
	}
	l := charLen(s)
	if l < n {
		return Value{typ: v.typ, data: norm.NFC.String(s) + strings.Repeat(" ", n-l)}, nil
	}
	if l == n {
		return v, nil
	}
	cut := truncateChars(s, n)
	if strings.TrimRight(norm.NFC.String(s)[len(cut):], " ") != "" {
		return Value{}, errors.Wrapf(ErrValueTooLong, "for type character(%d)", n)
	}
	return Value{typ: v.typ, data: cut}, nil
}
