package cursor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Execute runs the parsed statement. Without column definitions the
// statement is run to completion and the affected row count is returned;
// bulk binds run it once per array element and sum the counts. With column
// definitions a portal is opened for FetchRows and 0 is returned.
//
// Every call starts a fresh execution scope.
func (r *Registry) Execute(ctx context.Context, id ID) (int64, error) {
	c, err := r.parsedCursor(id)
	if err != nil {
		return 0, err
	}
	if err := c.endExecution(); err != nil {
		r.log.Warn("closing previous portal", "cursor", id, "error", err)
	}
	if c.maxPos == 0 {
		return r.executeDML(ctx, c)
	}
	return 0, r.executeQuery(ctx, c)
}

// bulkCount returns the common element count of the bound arrays, 0 when
// there are none.
func (c *Cursor) bulkCount() (int, error) {
	n := 0
	for _, v := range c.vars {
		if v.array == nil {
			continue
		}
		if n != 0 && v.array.count() != n {
			return 0, errorf(ErrArraySizeMismatch, c.id, "%q has %d elements, expected %d", v.name, v.array.count(), n)
		}
		n = v.array.count()
	}
	return n, nil
}

// params assembles the positional parameters for bulk row i, or for a
// single-row execution when i < 0.
func (c *Cursor) params(i int) ([]types.Value, error) {
	ps := make([]types.Value, len(c.vars))
	for k, v := range c.vars {
		switch {
		case i >= 0 && v.array != nil:
			ps[k] = v.array.elems[i]
		case v.bound:
			ps[k] = v.value
		default:
			return nil, errorf(ErrUnboundVariable, c.id, "%q", v.name)
		}
	}
	return ps, nil
}

func (r *Registry) executeDML(ctx context.Context, c *Cursor) (int64, error) {
	n, err := c.bulkCount()
	if err != nil {
		return 0, err
	}
	var total int64
	if n == 0 {
		ps, err := c.params(-1)
		if err != nil {
			return 0, err
		}
		total, err = r.eng.Exec(ctx, c.parsed, ps)
		if err != nil {
			return 0, errors.Wrapf(err, "cursor %d: execute", c.id)
		}
	} else {
		// Validate every row before the first statement runs.
		rows := make([][]types.Value, n)
		for i := range rows {
			if rows[i], err = c.params(i); err != nil {
				return 0, err
			}
		}
		for i, ps := range rows {
			affected, err := r.eng.Exec(ctx, c.parsed, ps)
			if err != nil {
				return 0, errors.Wrapf(err, "cursor %d: execute bulk row %d", c.id, i+1)
			}
			total += affected
		}
	}
	c.exec = &execution{dml: true, affected: total}
	c.state = StateExecuted
	r.log.Debug("statement executed", "cursor", c.id, "affected", total, "bulk", n)
	return total, nil
}

// checkColumns verifies that positions 1..maxPos are all defined and
// returns the bulk row count, 0 for single-row columns.
func (c *Cursor) checkColumns() (int, error) {
	rowCount, arrays := 0, 0
	for i, col := range c.cols {
		if col == nil {
			return 0, errorf(ErrUndefinedColumn, c.id, "position %d", i+1)
		}
		if col.array == nil {
			continue
		}
		if arrays > 0 && col.array.rowCount != rowCount {
			return 0, errorf(ErrMixedBulk, c.id, "array columns with %d and %d rows", rowCount, col.array.rowCount)
		}
		rowCount = col.array.rowCount
		arrays++
	}
	if arrays > 0 && arrays != len(c.cols) {
		return 0, errorf(ErrMixedBulk, c.id, "array and scalar column definitions")
	}
	return rowCount, nil
}

func (r *Registry) executeQuery(ctx context.Context, c *Cursor) error {
	rowCount, err := c.checkColumns()
	if err != nil {
		return err
	}
	if n, err := c.bulkCount(); err != nil {
		return err
	} else if n > 0 {
		return errorf(ErrMixedBulk, c.id, "bind arrays on a query")
	}
	ps, err := c.params(-1)
	if err != nil {
		return err
	}
	portal, err := r.eng.Query(ctx, c.parsed, ps)
	if err != nil {
		return errors.Wrapf(err, "cursor %d: execute", c.id)
	}
	cols := portal.Columns()
	if len(cols) != c.maxPos {
		if cerr := portal.Close(); cerr != nil {
			r.log.Warn("closing rejected portal", "cursor", c.id, "error", cerr)
		}
		return errorf(ErrColumnCountMismatch, c.id, "statement returns %d columns, %d defined", len(cols), c.maxPos)
	}
	c.exec = &execution{
		portal:   portal,
		colTypes: cols,
		plans:    make([]*coercionPlan, c.maxPos),
		batch:    fetchBatch{bulk: rowCount},
	}
	c.state = StateExecuted
	r.log.Debug("portal opened", "cursor", c.id, "columns", len(cols), "bulk", rowCount)
	return nil
}
