package cursor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// fetchBatch buffers the rows last pulled from the portal. In single-row mode
// nread is the number of rows handed out so far and rows[nread-1] is the
// current row. In bulk mode every fetched row is current.
type fetchBatch struct {
	rows      [][]types.Value
	nread     int
	processed int
	done      bool
	bulk      int
}

func (b *fetchBatch) release() {
	for _, row := range b.rows {
		for i := range row {
			row[i].Release()
		}
	}
	b.rows = nil
	b.nread, b.processed = 0, 0
}

// current returns the current row in single-row mode.
func (b *fetchBatch) current() ([]types.Value, bool) {
	if b.bulk > 0 || b.nread == 0 || b.nread > b.processed {
		return nil, false
	}
	return b.rows[b.nread-1], true
}

func (r *Registry) executed(id ID) (*Cursor, error) {
	c, err := r.get(id, true)
	if err != nil {
		return nil, err
	}
	if c.state != StateExecuted || c.exec == nil {
		return nil, errorf(ErrNotExecuted, id, "")
	}
	return c, nil
}

// FetchRows advances to the next row and returns 1, or 0 when the result is
// exhausted. For array columns it fetches up to the defined row count and
// returns the number of rows fetched. A statement without result columns
// yields 0.
func (r *Registry) FetchRows(ctx context.Context, id ID) (int, error) {
	c, err := r.executed(id)
	if err != nil {
		return 0, err
	}
	e := c.exec
	if e.dml {
		return 0, nil
	}
	b := &e.batch
	if b.bulk > 0 {
		return r.fetchBulk(ctx, c)
	}
	if b.nread == b.processed {
		if b.done {
			return 0, nil
		}
		rows, err := e.portal.Fetch(ctx, r.batch)
		if err != nil {
			return 0, errors.Wrapf(err, "cursor %d: fetch", id)
		}
		b.release()
		b.rows = rows
		b.processed = len(rows)
		if len(rows) == 0 {
			b.done = true
		}
		r.log.Debug("fetch batch", "cursor", id, "rows", len(rows))
	}
	if b.nread < b.processed {
		b.nread++
		e.fetched++
		return 1, nil
	}
	return 0, nil
}

func (r *Registry) fetchBulk(ctx context.Context, c *Cursor) (int, error) {
	b := &c.exec.batch
	if b.done {
		b.release()
		return 0, nil
	}
	rows, err := c.exec.portal.Fetch(ctx, b.bulk)
	if err != nil {
		return 0, errors.Wrapf(err, "cursor %d: fetch", c.id)
	}
	b.release()
	b.rows = rows
	b.processed = len(rows)
	b.nread = len(rows)
	c.exec.fetched += int64(len(rows))
	if len(rows) == 0 {
		b.done = true
	}
	r.log.Debug("fetch bulk", "cursor", c.id, "rows", len(rows))
	return len(rows), nil
}

// LastRowCount returns the number of rows handed out by the current
// execution: rows fetched so far, or rows affected by a DML statement.
func (r *Registry) LastRowCount(id ID) (int64, error) {
	c, err := r.executed(id)
	if err != nil {
		return 0, err
	}
	if c.exec.dml {
		return c.exec.affected, nil
	}
	return c.exec.fetched, nil
}
