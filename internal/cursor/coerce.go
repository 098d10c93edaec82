package cursor

import (
	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

type castKind int

const (
	castNone castKind = iota
	castRelabel
	castFunc
	castViaIO
)

func (k castKind) String() string {
	switch k {
	case castRelabel:
		return "relabel"
	case castFunc:
		return "function"
	case castViaIO:
		return "io"
	default:
		return "none"
	}
}

// coercionPlan converts values of one column from the engine's type to the
// defined type. It is built on first access and kept for the execution.
type coercionPlan struct {
	kind        castKind
	src, dst    types.OID
	fn          types.CastFunc
	typmod      int32
	typmodFn    types.TypmodFunc
	checkDomain bool
}

func newCoercionPlan(cat types.Catalog, src types.OID, col *column) (*coercionPlan, error) {
	p := &coercionPlan{src: src, dst: col.typ, typmod: col.typmod}
	if ti, err := cat.Type(col.typ); err == nil {
		p.checkDomain = ti.IsDomain()
	}
	if src == col.typ && col.typmod < 0 {
		p.kind = castNone
		return p, nil
	}
	path, fn := cat.FindCoercion(src, col.typ)
	switch path {
	case types.PathRelabel:
		p.kind = castRelabel
	case types.PathFunc:
		p.kind, p.fn = castFunc, fn
	default:
		if !hasIO(cat, src) || !hasIO(cat, col.typ) {
			return nil, errors.Wrapf(ErrUnsupportedCast, "%s to %s",
				cat.FormatType(src, -1), cat.FormatType(col.typ, col.typmod))
		}
		p.kind = castViaIO
	}
	if col.typmod >= 0 {
		p.typmodFn = cat.TypmodCoercion(cat.BaseType(col.typ))
	}
	return p, nil
}

func hasIO(cat types.Catalog, oid types.OID) bool {
	ti, err := cat.Type(oid)
	return err == nil && ti.HasIO
}

// apply converts v. A value whose tag differs from the planned source type,
// as dynamically typed engines produce, takes the text round trip.
func (p *coercionPlan) apply(cat types.Catalog, v types.Value) (types.Value, error) {
	if v.IsNull() {
		out := types.Null(p.dst)
		if p.checkDomain {
			if err := cat.CheckDomain(p.dst, out); err != nil {
				return types.Value{}, err
			}
		}
		return out, nil
	}
	kind := p.kind
	if v.Type() != p.src {
		kind = castViaIO
	}
	var (
		out types.Value
		err error
	)
	switch kind {
	case castNone:
		return v.Clone(), nil
	case castRelabel:
		out = v.Clone()
	case castFunc:
		if out, err = p.fn(v); err != nil {
			return types.Value{}, err
		}
	case castViaIO:
		s, err := cat.Output(v)
		if err != nil {
			return types.Value{}, err
		}
		if out, err = cat.Input(p.dst, s, -1); err != nil {
			return types.Value{}, err
		}
	}
	out = out.WithType(p.dst)
	if p.typmodFn != nil {
		if out, err = p.typmodFn(out, p.typmod); err != nil {
			return types.Value{}, err
		}
		out = out.WithType(p.dst)
	}
	if p.checkDomain {
		if err := cat.CheckDomain(p.dst, out); err != nil {
			return types.Value{}, err
		}
	}
	return out, nil
}

// plan returns the cached plan for column pos, building it for the source
// type observed in v when the engine reported none.
func (r *Registry) plan(c *Cursor, pos int, v types.Value) (*coercionPlan, error) {
	e := c.exec
	if p := e.plans[pos-1]; p != nil {
		return p, nil
	}
	src := e.colTypes[pos-1]
	if src == types.InvalidOID {
		src = v.Type()
	}
	p, err := newCoercionPlan(r.cat, src, c.cols[pos-1])
	if err != nil {
		return nil, errorf(err, c.id, "column %d", pos)
	}
	e.plans[pos-1] = p
	r.log.Debug("coercion plan built", "cursor", c.id, "position", pos, "cast", p.kind.String(), "domain", p.checkDomain)
	return p, nil
}

func (r *Registry) column(c *Cursor, pos int, target types.OID) (*column, error) {
	if pos < 1 || pos > c.maxPos || pos > len(c.exec.plans) {
		return nil, errorf(ErrInvalidPosition, c.id, "position %d of %d", pos, len(c.exec.plans))
	}
	col := c.cols[pos-1]
	if col == nil {
		return nil, errorf(ErrUndefinedColumn, c.id, "position %d", pos)
	}
	if target != types.InvalidOID && target != col.typ {
		return nil, errorf(ErrTypeMismatch, c.id, "column %d is %s, requested %s", pos,
			r.cat.FormatType(col.typ, col.typmod), r.cat.FormatType(target, -1))
	}
	return col, nil
}

// ColumnValue returns column pos of the current row converted to the type it
// was defined with. target is types.InvalidOID or that defined type.
func (r *Registry) ColumnValue(id ID, pos int, target types.OID) (types.Value, error) {
	c, err := r.executed(id)
	if err != nil {
		return types.Value{}, err
	}
	row, ok := c.exec.batch.current()
	if !ok {
		if c.exec.batch.bulk > 0 {
			return types.Value{}, errorf(ErrMixedBulk, id, "use ColumnArray for array columns")
		}
		return types.Value{}, errorf(ErrNoActiveBatch, id, "")
	}
	if _, err := r.column(c, pos, target); err != nil {
		return types.Value{}, err
	}
	p, err := r.plan(c, pos, row[pos-1])
	if err != nil {
		return types.Value{}, err
	}
	out, err := p.apply(r.cat, row[pos-1])
	if err != nil {
		return types.Value{}, errors.Wrapf(err, "cursor %d: column %d", id, pos)
	}
	return out, nil
}

// ColumnArray returns column pos of every row of the last bulk fetch as an
// array numbered from the defined index base.
func (r *Registry) ColumnArray(id ID, pos int, target types.OID) (*types.Array, error) {
	c, err := r.executed(id)
	if err != nil {
		return nil, err
	}
	b := &c.exec.batch
	if b.bulk == 0 {
		return nil, errorf(ErrMixedBulk, id, "use ColumnValue for single-row columns")
	}
	if b.processed == 0 {
		return nil, errorf(ErrNoActiveBatch, id, "")
	}
	col, err := r.column(c, pos, target)
	if err != nil {
		return nil, err
	}
	arr := &types.Array{Elem: col.typ, Lower: col.array.indexBase, Elems: make([]types.Value, 0, b.processed)}
	for i, row := range b.rows[:b.processed] {
		p, err := r.plan(c, pos, row[pos-1])
		if err != nil {
			return nil, err
		}
		v, err := p.apply(r.cat, row[pos-1])
		if err != nil {
			return nil, errors.Wrapf(err, "cursor %d: column %d row %d", id, pos, i+1)
		}
		arr.Elems = append(arr.Elems, v)
	}
	return arr, nil
}
