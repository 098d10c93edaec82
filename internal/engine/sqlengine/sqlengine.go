// Package sqlengine runs cursor statements through database/sql.
//
// What: An engine.Engine over any *sql.DB, *sql.Conn or *sql.Tx. Parameters
// are converted from tagged values to driver arguments; result columns are
// typed from the driver's reported database type names and converted back.
// How: Query keeps the *sql.Rows open as the portal and scans at most n rows
// per Fetch call, so batches are pulled on demand.
// Why: Any database with a database/sql driver can host dynamic SQL cursors.
package sqlengine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used here.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Engine adapts a Querier to engine.Engine.
type Engine struct {
	q     Querier
	cat   types.Catalog
	style engine.PlaceholderStyle
}

// New returns an engine that runs statements on q. Column types are resolved
// against cat.
func New(q Querier, cat types.Catalog, style engine.PlaceholderStyle) *Engine {
	return &Engine{q: q, cat: cat, style: style}
}

// Use switches the statement target, e.g. to a transaction and back.
func (e *Engine) Use(q Querier) { e.q = q }

// Placeholder implements engine.Placeholderer.
func (e *Engine) Placeholder(n int) string { return e.style.Format(n) }

func driverArgs(params []types.Value) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		a, err := types.ToDriver(p)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i+1)
		}
		args[i] = a
	}
	return args, nil
}

// Exec implements engine.Engine.
func (e *Engine) Exec(ctx context.Context, query string, params []types.Value) (int64, error) {
	args, err := driverArgs(params)
	if err != nil {
		return 0, err
	}
	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "sqlengine: exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Drivers without row counts report none.
		return 0, nil
	}
	return n, nil
}

// Query implements engine.Engine.
func (e *Engine) Query(ctx context.Context, query string, params []types.Value) (engine.Portal, error) {
	args, err := driverArgs(params)
	if err != nil {
		return nil, err
	}
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlengine: query")
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "sqlengine: column types")
	}
	cols := make([]types.OID, len(cts))
	for i, ct := range cts {
		cols[i] = e.ColumnOID(ct.DatabaseTypeName())
	}
	return &portal{rows: rows, cols: cols, cat: e.cat}, nil
}

// typeAliases maps database type names that differ from catalog names.
var typeAliases = map[string]types.OID{
	"INTEGER":           types.Int8OID,
	"INT":               types.Int8OID,
	"BIGINT":            types.Int8OID,
	"SMALLINT":          types.Int2OID,
	"REAL":              types.Float8OID,
	"DOUBLE":            types.Float8OID,
	"DOUBLE PRECISION":  types.Float8OID,
	"FLOAT":             types.Float8OID,
	"NUMERIC":           types.Float8OID,
	"DECIMAL":           types.Float8OID,
	"CLOB":              types.TextOID,
	"STRING":            types.TextOID,
	"CHAR":              types.BpcharOID,
	"BLOB":              types.ByteaOID,
	"BOOLEAN":           types.BoolOID,
	"DATETIME":          types.TimestampOID,
	"JSONB":             types.JSONOID,
	"CHARACTER VARYING": types.VarcharOID,
}

// ColumnOID resolves a driver database type name; InvalidOID when the name is
// empty or unknown.
func (e *Engine) ColumnOID(dbType string) types.OID {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return types.InvalidOID
	}
	if oid, ok := typeAliases[name]; ok {
		return oid
	}
	if oid, ok := e.cat.TypeByName(strings.ToLower(name)); ok {
		return oid
	}
	return types.InvalidOID
}

type portal struct {
	rows *sql.Rows
	cols []types.OID
	cat  types.Catalog
	done bool
}

func (p *portal) Columns() []types.OID { return p.cols }

func (p *portal) Fetch(ctx context.Context, n int) ([][]types.Value, error) {
	if p.done || n <= 0 {
		return nil, nil
	}
	raw := make([]any, len(p.cols))
	dest := make([]any, len(p.cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	var out [][]types.Value
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !p.rows.Next() {
			p.done = true
			if err := p.rows.Err(); err != nil {
				return out, errors.Wrap(err, "sqlengine: fetch")
			}
			break
		}
		if err := p.rows.Scan(dest...); err != nil {
			return out, errors.Wrap(err, "sqlengine: scan")
		}
		row := make([]types.Value, len(raw))
		for i, x := range raw {
			v, err := types.FromDriver(p.cat, p.cols[i], x)
			if err != nil {
				return out, errors.Wrapf(err, "column %d", i+1)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func (p *portal) Close() error {
	p.done = true
	return p.rows.Close()
}
