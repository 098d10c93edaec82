package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGo(t *testing.T) {
	tests := []struct {
		in   any
		want OID
	}{
		{nil, UnknownOID},
		{true, BoolOID},
		{1, Int8OID},
		{int32(1), Int4OID},
		{int16(1), Int2OID},
		{1.5, Float8OID},
		{float32(1.5), Float4OID},
		{"x", TextOID},
		{[]byte("x"), ByteaOID},
		{time.Now(), TimestamptzOID},
		{json.RawMessage(`[]`), JSONOID},
		{[]Value{Int4(1)}, RecordOID},
	}
	for _, tt := range tests {
		v, err := FromGo(tt.in)
		require.NoError(t, err)
		assert.Equalf(t, tt.want, v.Type(), "%T", tt.in)
	}
	_, err := FromGo(struct{}{})
	assert.Error(t, err)
}

func TestCloneDoesNotShareMemory(t *testing.T) {
	b := []byte("abc")
	v := Bytea(b)
	c := v.Clone()
	b[0] = 'z'
	got, _ := c.Bytes()
	assert.Equal(t, "abc", string(got))

	c.Release()
	_, ok := c.Bytes()
	assert.False(t, ok)
}

func TestArraySlice(t *testing.T) {
	a := &Array{Elem: Int4OID, Lower: 0, Elems: []Value{Int4(10), Int4(20), Int4(30), Int4(40)}}
	assert.Equal(t, 3, a.Upper())
	s := a.Slice(1, 2)
	assert.Equal(t, 1, s.Lower)
	require.Equal(t, 2, s.Len())
	v, ok := s.At(1)
	require.True(t, ok)
	assert.True(t, v.Equal(Int4(20)))
	_, ok = s.At(3)
	assert.False(t, ok)
	assert.Equal(t, "{20,30}", s.String())
}

func TestDecodeAndEncode(t *testing.T) {
	c := NewBuiltin()

	v, err := Decode(c, "", float64(5))
	require.NoError(t, err)
	assert.True(t, v.Equal(Int8(5)))

	v, err = Decode(c, "int4", "5")
	require.NoError(t, err)
	assert.True(t, v.Equal(Int4(5)))

	v, err = Decode(c, "varchar", nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, VarcharOID, v.Type())

	v, err = Decode(c, "json", map[string]any{"a": float64(1)})
	require.NoError(t, err)
	s, _ := v.Str()
	assert.JSONEq(t, `{"a":1}`, s)

	_, err = Decode(c, "nosuchtype", 1)
	assert.Error(t, err)

	name, payload, err := Encode(c, Int4(7))
	require.NoError(t, err)
	assert.Equal(t, "integer", name)
	assert.Equal(t, int64(7), payload)

	name, payload, err = Encode(c, Date(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "date", name)
	assert.Equal(t, "2020-01-02", payload)
}

func TestFromDriver(t *testing.T) {
	c := NewBuiltin()
	v, err := FromDriver(c, Int4OID, int64(3))
	require.NoError(t, err)
	assert.True(t, v.Equal(Int4(3)))

	v, err = FromDriver(c, TextOID, []byte("hi"))
	require.NoError(t, err)
	assert.True(t, v.Equal(Text("hi")))

	v, err = FromDriver(c, BoolOID, int64(1))
	require.NoError(t, err)
	assert.True(t, v.Equal(Bool(true)))

	v, err = FromDriver(c, InvalidOID, int64(9))
	require.NoError(t, err)
	assert.True(t, v.Equal(Int8(9)))

	v, err = FromDriver(c, InvalidOID, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = FromDriver(c, Float8OID, int64(2))
	require.NoError(t, err)
	assert.True(t, v.Equal(Float8(2)))
}
