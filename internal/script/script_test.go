package script

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/dynsql"
)

func newRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	s, err := dynsql.Open(context.Background(), "sqlite", ":memory:", dynsql.WithFetchBatch(2))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	var out bytes.Buffer
	return NewRunner(s, &out, nil), &out
}

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			sc, err := Load(f)
			require.NoError(t, err)
			r, _ := newRunner(t)
			require.NoError(t, r.Run(context.Background(), sc))
			assert.Zero(t, r.Session.OpenCursors())
		})
	}
}

func TestUnknownOp(t *testing.T) {
	_, err := Parse([]byte("steps:\n  - op: explode\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step 1: unknown op "explode"`)
}

func TestMismatchNamesStep(t *testing.T) {
	sc, err := Parse([]byte(`
name: mismatch
steps:
  - {op: open, cursor: c}
  - {op: parse, cursor: c, sql: "select 1"}
  - {op: execute, cursor: c}
  - {op: fetch, cursor: c, expect: 2}
`))
	require.NoError(t, err)
	r, _ := newRunner(t)
	err = r.Run(context.Background(), sc)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Index)
	assert.Equal(t, "fetch", se.Op)
	assert.True(t, errors.Is(err, ErrMismatch))
}

func TestExpectedErrorMustOccur(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - {op: open, cursor: c}
  - {op: parse, cursor: c, sql: "select :a", error: anything}
`))
	require.NoError(t, err)
	r, _ := newRunner(t)
	err = r.Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `expected error containing "anything"`)
}

func TestUnopenedCursor(t *testing.T) {
	sc, err := Parse([]byte("steps:\n  - {op: fetch, cursor: nope}\n"))
	require.NoError(t, err)
	r, _ := newRunner(t)
	err = r.Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cursor "nope" is not opened`)
}

func TestNullExpectationAndOutput(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - {op: open, cursor: c}
  - {op: parse, cursor: c, sql: "select :v"}
  - {op: bind, cursor: c, name: v, type: int4, value: null}
  - {op: define, cursor: c, position: 1, type: int4}
  - {op: execute, cursor: c}
  - {op: fetch, cursor: c, expect: 1}
  - {op: value, cursor: c, position: 1, expect: null}
`))
	require.NoError(t, err)
	r, out := newRunner(t)
	require.NoError(t, r.Run(context.Background(), sc))
	assert.Contains(t, out.String(), "c: fetched 1")
	assert.Contains(t, out.String(), "c[1] = NULL")
}
