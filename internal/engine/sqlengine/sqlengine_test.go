package sqlengine

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

func openSQLite(t *testing.T) *sql.Conn {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestExecAndQueryBatches(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	e := New(conn, types.NewBuiltin(), engine.PlaceholderQuestion)

	_, err := e.Exec(ctx, "create table t (id integer, name text, score real)", nil)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		n, err := e.Exec(ctx, "insert into t values (?1, ?2, ?3)",
			[]types.Value{types.Int4(int32(i)), types.Text("n"), types.Float8(float64(i) / 2)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	p, err := e.Query(ctx, "select id, name, score from t where id >= ?1 order by id", []types.Value{types.Int8(2)})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, []types.OID{types.Int8OID, types.TextOID, types.Float8OID}, p.Columns())

	rows, err := p.Fetch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0][0].Equal(types.Int8(2)))
	assert.True(t, rows[2][2].Equal(types.Float8(2)))

	rows, err = p.Fetch(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = p.Fetch(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNullParameterAndResult(t *testing.T) {
	ctx := context.Background()
	e := New(openSQLite(t), types.NewBuiltin(), engine.PlaceholderQuestion)
	p, err := e.Query(ctx, "select ?1", []types.Value{types.Null(types.TextOID)})
	require.NoError(t, err)
	defer p.Close()
	rows, err := p.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0][0].IsNull())
}

func TestColumnOID(t *testing.T) {
	e := New(nil, types.NewBuiltin(), engine.PlaceholderDollar)
	tests := map[string]types.OID{
		"INTEGER":     types.Int8OID,
		"INT4":        types.Int4OID,
		"VARCHAR(20)": types.VarcharOID,
		"TIMESTAMPTZ": types.TimestamptzOID,
		"BLOB":        types.ByteaOID,
		"":            types.InvalidOID,
		"GEOMETRY":    types.InvalidOID,
		"uuid":        types.UUIDOID,
		"DATETIME":    types.TimestampOID,
		" DOUBLE ":    types.Float8OID,
	}
	for in, want := range tests {
		assert.Equalf(t, want, e.ColumnOID(in), "%q", in)
	}
	assert.Equal(t, "$4", e.Placeholder(4))
}

func TestRecordParameterRejected(t *testing.T) {
	e := New(openSQLite(t), types.NewBuiltin(), engine.PlaceholderQuestion)
	_, err := e.Exec(context.Background(), "select ?1", []types.Value{types.Record(types.Int4(1))})
	assert.Error(t, err)
}
