package cursor

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/engine/enginetest"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// countingCatalog counts coercion lookups.
type countingCatalog struct {
	types.Catalog
	lookups int
}

func (c *countingCatalog) FindCoercion(src, dst types.OID) (types.CoercionPath, types.CastFunc) {
	c.lookups++
	return c.Catalog.FindCoercion(src, dst)
}

// questionEngine renders placeholders as ?n.
type questionEngine struct {
	*enginetest.Engine
}

func (questionEngine) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

var _ engine.Placeholderer = questionEngine{}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromCore(core), logs
}

func openParsed(t *testing.T, r *Registry, query string) ID {
	t.Helper()
	id, err := r.Open()
	require.NoError(t, err)
	require.NoError(t, r.Parse(id, query))
	return id
}

func int4Rows(vals ...int32) [][]types.Value {
	rows := make([][]types.Value, len(vals))
	for i, v := range vals {
		rows[i] = []types.Value{types.Int4(v)}
	}
	return rows
}

func requireValue(t *testing.T, want, got types.Value) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %v (%d), got %v (%d)", want, want.Type(), got, got.Type())
}

func ctx() context.Context { return context.Background() }
