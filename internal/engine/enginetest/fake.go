// Package enginetest provides a scripted engine.Engine for tests.
package enginetest

import (
	"context"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Result is the outcome of a scripted query.
type Result struct {
	Columns []types.OID
	Rows    [][]types.Value
}

// Call records one statement sent to the engine.
type Call struct {
	Query  bool
	SQL    string
	Params []types.Value
}

// Engine answers Exec and Query from ExecFunc and QueryFunc and records every
// call. A nil ExecFunc reports one affected row; a nil QueryFunc fails.
type Engine struct {
	ExecFunc  func(sql string, params []types.Value) (int64, error)
	QueryFunc func(sql string, params []types.Value) (*Result, error)

	Calls   []Call
	Portals []*Portal
}

// Returning builds an engine whose queries all yield res.
func Returning(res *Result) *Engine {
	return &Engine{QueryFunc: func(string, []types.Value) (*Result, error) { return res, nil }}
}

func (e *Engine) record(query bool, sql string, params []types.Value) {
	cp := make([]types.Value, len(params))
	for i, p := range params {
		cp[i] = p.Clone()
	}
	e.Calls = append(e.Calls, Call{Query: query, SQL: sql, Params: cp})
}

// Exec implements engine.Engine.
func (e *Engine) Exec(_ context.Context, sql string, params []types.Value) (int64, error) {
	e.record(false, sql, params)
	if e.ExecFunc == nil {
		return 1, nil
	}
	return e.ExecFunc(sql, params)
}

// Query implements engine.Engine.
func (e *Engine) Query(_ context.Context, sql string, params []types.Value) (engine.Portal, error) {
	e.record(true, sql, params)
	if e.QueryFunc == nil {
		return nil, errors.New("enginetest: no query function")
	}
	res, err := e.QueryFunc(sql, params)
	if err != nil {
		return nil, err
	}
	p := &Portal{res: res}
	e.Portals = append(e.Portals, p)
	return p, nil
}

// LastPortal returns the most recently opened portal or nil.
func (e *Engine) LastPortal() *Portal {
	if len(e.Portals) == 0 {
		return nil
	}
	return e.Portals[len(e.Portals)-1]
}

// Portal serves copies of the rows of a Result and counts Fetch calls.
type Portal struct {
	res     *Result
	pos     int
	Fetches int
	Closed  bool
}

func (p *Portal) Columns() []types.OID { return p.res.Columns }

func (p *Portal) Fetch(_ context.Context, n int) ([][]types.Value, error) {
	if p.Closed {
		return nil, errors.New("enginetest: fetch on closed portal")
	}
	p.Fetches++
	end := p.pos + n
	if end > len(p.res.Rows) {
		end = len(p.res.Rows)
	}
	var rows [][]types.Value
	for _, src := range p.res.Rows[p.pos:end] {
		row := make([]types.Value, len(src))
		for i, v := range src {
			row[i] = v.Clone()
		}
		rows = append(rows, row)
	}
	p.pos = end
	return rows, nil
}

func (p *Portal) Close() error {
	p.Closed = true
	return nil
}
