package cursor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/dynsql/internal/engine/enginetest"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// executeOne defines column 1 from sample, executes against a single-column
// result and positions on the first row.
func executeOne(t *testing.T, cat types.Catalog, src types.OID, sample types.Value, size int, rows ...types.Value) (*Registry, ID) {
	t.Helper()
	res := &enginetest.Result{Columns: []types.OID{src}}
	for _, v := range rows {
		res.Rows = append(res.Rows, []types.Value{v})
	}
	r := NewRegistry(enginetest.Returning(res), WithCatalog(cat))
	id := openParsed(t, r, "select c from t")
	require.NoError(t, r.DefineColumn(id, 1, sample, size))
	_, err := r.Execute(ctx(), id)
	require.NoError(t, err)
	n, err := r.FetchRows(ctx(), id)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return r, id
}

func TestCoercionPlanBuiltOncePerExecution(t *testing.T) {
	cat := &countingCatalog{Catalog: types.NewBuiltin()}
	res := &enginetest.Result{Columns: []types.OID{types.Int8OID}, Rows: [][]types.Value{
		{types.Int8(1)}, {types.Int8(2)}, {types.Int8(3)},
	}}
	r := NewRegistry(enginetest.Returning(res), WithCatalog(cat))
	id := openParsed(t, r, "select v from t")
	require.NoError(t, r.DefineColumn(id, 1, types.Int4(0), -1))

	_, err := r.Execute(ctx(), id)
	require.NoError(t, err)
	for i := int32(1); i <= 3; i++ {
		n, err := r.FetchRows(ctx(), id)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		for k := 0; k < 2; k++ {
			v, err := r.ColumnValue(id, 1, types.Int4OID)
			require.NoError(t, err)
			requireValue(t, types.Int4(i), v)
		}
	}
	assert.Equal(t, 1, cat.lookups)

	_, err = r.Execute(ctx(), id)
	require.NoError(t, err)
	_, err = r.FetchRows(ctx(), id)
	require.NoError(t, err)
	_, err = r.ColumnValue(id, 1, types.Int4OID)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.lookups, "re-execution rebuilds the plan")
}

func TestSameTypeNeedsNoLookup(t *testing.T) {
	cat := &countingCatalog{Catalog: types.NewBuiltin()}
	r, id := executeOne(t, cat, types.TextOID, types.Text(""), -1, types.Text("abc"))
	v, err := r.ColumnValue(id, 1, types.TextOID)
	require.NoError(t, err)
	requireValue(t, types.Text("abc"), v)
	assert.Equal(t, 0, cat.lookups)
}

func TestColumnValueChecks(t *testing.T) {
	res := &enginetest.Result{Columns: []types.OID{types.Int4OID, types.Int4OID}, Rows: [][]types.Value{{types.Int4(1), types.Int4(2)}}}
	r := NewRegistry(enginetest.Returning(res))
	id := openParsed(t, r, "select a, b from t")
	require.NoError(t, r.DefineColumn(id, 1, types.Int4(0), -1))
	require.NoError(t, r.DefineColumn(id, 2, types.Int4(0), -1))

	_, err := r.ColumnValue(id, 1, types.Int4OID)
	assert.True(t, errors.Is(err, ErrNotExecuted))
	_, err = r.Execute(ctx(), id)
	require.NoError(t, err)
	_, err = r.ColumnValue(id, 1, types.Int4OID)
	assert.True(t, errors.Is(err, ErrNoActiveBatch))

	_, err = r.FetchRows(ctx(), id)
	require.NoError(t, err)
	for _, pos := range []int{0, 3} {
		_, err = r.ColumnValue(id, pos, types.Int4OID)
		assert.Truef(t, errors.Is(err, ErrInvalidPosition), "position %d", pos)
	}
	_, err = r.ColumnValue(id, 2, types.TextOID)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	v, err := r.ColumnValue(id, 2, types.InvalidOID)
	require.NoError(t, err)
	requireValue(t, types.Int4(2), v)
}

func TestTextRoundTrip(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.TextOID, types.Int4(0), -1, types.Text("42"))
	v, err := r.ColumnValue(id, 1, types.Int4OID)
	require.NoError(t, err)
	requireValue(t, types.Int4(42), v)

	r, id = executeOne(t, types.NewBuiltin(), types.TextOID, types.Int4(0), -1, types.Text("forty-two"))
	_, err = r.ColumnValue(id, 1, types.Int4OID)
	assert.True(t, errors.Is(err, types.ErrInvalidText))
}

func TestUnsupportedCast(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.RecordOID, types.Int4(0), -1, types.Record(types.Int4(1)))
	_, err := r.ColumnValue(id, 1, types.Int4OID)
	assert.True(t, errors.Is(err, ErrUnsupportedCast))
}

func TestDynamicallyTypedEngine(t *testing.T) {
	// No reported column type: the plan follows the first value and later
	// values of another type go through text.
	res := &enginetest.Result{Columns: []types.OID{types.InvalidOID}, Rows: [][]types.Value{
		{types.Int8(7)}, {types.Text("8")},
	}}
	r := NewRegistry(enginetest.Returning(res))
	id := openParsed(t, r, "select v from t")
	require.NoError(t, r.DefineColumn(id, 1, types.Int4(0), -1))
	_, err := r.Execute(ctx(), id)
	require.NoError(t, err)
	for _, want := range []int32{7, 8} {
		_, err = r.FetchRows(ctx(), id)
		require.NoError(t, err)
		v, err := r.ColumnValue(id, 1, types.Int4OID)
		require.NoError(t, err)
		requireValue(t, types.Int4(want), v)
	}
}

func TestVarcharSizeBecomesTypmod(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.TextOID, types.Varchar(""), 3, types.Text("ab"))
	v, err := r.ColumnValue(id, 1, types.VarcharOID)
	require.NoError(t, err)
	requireValue(t, types.Varchar("ab"), v)

	r, id = executeOne(t, types.NewBuiltin(), types.TextOID, types.Varchar(""), 3, types.Text("abcdef"))
	_, err = r.ColumnValue(id, 1, types.VarcharOID)
	assert.True(t, errors.Is(err, types.ErrValueTooLong))

	r, id = executeOne(t, types.NewBuiltin(), types.VarcharOID, types.Bpchar(""), 4, types.Varchar("ab"))
	v, err = r.ColumnValue(id, 1, types.BpcharOID)
	require.NoError(t, err)
	requireValue(t, types.Bpchar("ab  "), v)
}

func TestSizeIgnoredForNonStringColumns(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.Int4OID, types.Int4(0), 3, types.Int4(123456))
	v, err := r.ColumnValue(id, 1, types.Int4OID)
	require.NoError(t, err)
	requireValue(t, types.Int4(123456), v)
}

func TestDomainCheckAfterCast(t *testing.T) {
	cat := types.NewBuiltin()
	positive, err := cat.CreateDomain("positive_int", types.Int4OID, true, types.DomainCheck{
		Name: "positive",
		Fn: func(v types.Value) bool {
			i, _ := v.Int64()
			return i > 0
		},
	})
	require.NoError(t, err)
	sample := types.Int4(1).WithType(positive)

	r, id := executeOne(t, cat, types.Int8OID, sample, -1, types.Int8(5))
	v, err := r.ColumnValue(id, 1, positive)
	require.NoError(t, err)
	assert.Equal(t, positive, v.Type())
	i, _ := v.Int64()
	assert.Equal(t, int64(5), i)

	r, id = executeOne(t, cat, types.Int8OID, sample, -1, types.Int8(-1))
	_, err = r.ColumnValue(id, 1, positive)
	assert.True(t, errors.Is(err, ErrConstraintViolation))

	r, id = executeOne(t, cat, types.Int8OID, sample, -1, types.Null(types.Int8OID))
	_, err = r.ColumnValue(id, 1, positive)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "NOT NULL domain")
}

func TestNullSkipsCast(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.Int8OID, types.Int4(0), -1, types.Null(types.Int8OID))
	v, err := r.ColumnValue(id, 1, types.Int4OID)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, types.Int4OID, v.Type())
}

func TestColumnValueDoesNotAliasBatch(t *testing.T) {
	r, id := executeOne(t, types.NewBuiltin(), types.ByteaOID, types.Bytea(nil), -1, types.Bytea([]byte{1, 2}))
	v, err := r.ColumnValue(id, 1, types.ByteaOID)
	require.NoError(t, err)
	b, _ := v.Bytes()
	b[0] = 9
	again, err := r.ColumnValue(id, 1, types.ByteaOID)
	require.NoError(t, err)
	requireValue(t, types.Bytea([]byte{1, 2}), again)
}
