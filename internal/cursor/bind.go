package cursor

import (
	"strings"

	"github.com/SimonWaldherr/dynsql/internal/parser"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

func (c *Cursor) variable(name string) (*variable, error) {
	name = parser.FoldName(strings.TrimPrefix(name, ":"))
	v, ok := c.byName[name]
	if !ok {
		return nil, errorf(ErrUnknownVariable, c.id, "%q", name)
	}
	return v, nil
}

// bindValue normalises a value for binding: composites are rejected, domains
// are bound as their base type and untyped literals as text.
func (r *Registry) bindValue(id ID, v types.Value) (types.Value, error) {
	if v.Type() == types.RecordOID {
		return types.Value{}, errorf(ErrUnsupportedType, id, "cannot bind a value of record type")
	}
	t := r.cat.BaseType(v.Type())
	if t == types.UnknownOID {
		t = types.TextOID
	}
	return v.Clone().WithType(t), nil
}

// BindVariable assigns value to the placeholder name (with or without the
// leading colon, case-insensitive). Rebinding replaces the previous value and
// any bulk payload.
func (r *Registry) BindVariable(id ID, name string, value types.Value) error {
	c, err := r.parsedCursor(id)
	if err != nil {
		return err
	}
	v, err := c.variable(name)
	if err != nil {
		return err
	}
	nv, err := r.bindValue(id, value)
	if err != nil {
		return err
	}
	if v.bound || v.array != nil {
		r.log.Warn("bind variable is assigned already", "cursor", id, "variable", v.name)
	}
	v.release()
	v.value = nv
	v.bound = true
	return nil
}

// BindArray binds every element of arr to name for a bulk execution.
func (r *Registry) BindArray(id ID, name string, arr *types.Array) error {
	if arr == nil || arr.Len() == 0 {
		return errorf(ErrInvalidRange, id, "empty bind array for %q", name)
	}
	return r.BindArrayRange(id, name, arr, arr.Lower, arr.Upper())
}

// BindArrayRange binds elements lo..hi of arr, inclusive and in arr's own
// index space, to name for a bulk execution.
func (r *Registry) BindArrayRange(id ID, name string, arr *types.Array, lo, hi int) error {
	c, err := r.parsedCursor(id)
	if err != nil {
		return err
	}
	v, err := c.variable(name)
	if err != nil {
		return err
	}
	if arr == nil || arr.Len() == 0 {
		return errorf(ErrInvalidRange, id, "empty bind array for %q", v.name)
	}
	if hi < lo || lo < arr.Lower || hi > arr.Upper() {
		return errorf(ErrInvalidRange, id, "[%d, %d] outside [%d, %d]", lo, hi, arr.Lower, arr.Upper())
	}
	if r.cat.BaseType(arr.Elem) == types.RecordOID {
		return errorf(ErrUnsupportedType, id, "cannot bind an array of record type")
	}
	elems := make([]types.Value, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		e, _ := arr.At(i)
		ne, err := r.bindValue(id, e)
		if err != nil {
			return err
		}
		elems = append(elems, ne)
	}
	if v.bound || v.array != nil {
		r.log.Warn("bind variable is assigned already", "cursor", id, "variable", v.name)
	}
	v.release()
	v.array = &bindArray{lo: lo, hi: hi, elems: elems}
	return nil
}

// defineColumn registers the column at pos with the type of sample.
func (r *Registry) defineColumn(id ID, pos int, sample types.Value, size int) (*column, error) {
	c, err := r.parsedCursor(id)
	if err != nil {
		return nil, err
	}
	if pos < 1 {
		return nil, errorf(ErrInvalidPosition, id, "position %d", pos)
	}
	if size < -1 {
		return nil, errorf(ErrInvalidRange, id, "column %d: size %d", pos, size)
	}
	typ := sample.Type()
	if typ == types.UnknownOID {
		typ = types.TextOID
	}
	ti, err := r.cat.Type(typ)
	if err != nil {
		return nil, errorf(ErrUnsupportedType, id, "column %d: %v", pos, err)
	}
	if ti.IsComposite() {
		return nil, errorf(ErrUnsupportedType, id, "cannot define a column of record type")
	}
	col := &column{
		pos:      pos,
		typ:      typ,
		typmod:   -1,
		typLen:   ti.Len,
		byVal:    ti.ByVal,
		isString: ti.Category == types.CategoryString,
	}
	if col.isString && size != -1 {
		col.typmod = int32(size)
	}
	if c.exec != nil {
		r.log.Debug("define ends the current execution", "cursor", id, "position", pos)
		if err := c.endExecution(); err != nil {
			r.log.Warn("closing portal on define", "cursor", id, "error", err)
		}
	}
	for len(c.cols) < pos {
		c.cols = append(c.cols, nil)
	}
	if c.cols[pos-1] != nil {
		r.log.Warn("column is defined already", "cursor", id, "position", pos)
	}
	c.cols[pos-1] = col
	if pos > c.maxPos {
		c.maxPos = pos
	}
	return col, nil
}

// DefineColumn declares the type of result column pos (1-based) from sample.
// For string types a size other than -1 becomes the length modifier; sizes
// below -1 are rejected. Defining a column of an executed cursor discards the
// execution, so the statement has to be executed again.
func (r *Registry) DefineColumn(id ID, pos int, sample types.Value, size int) error {
	_, err := r.defineColumn(id, pos, sample, size)
	return err
}

// DefineArray declares column pos for bulk fetch: each fetch returns up to
// rowCount rows and ColumnArray numbers them from indexBase (0 or 1).
func (r *Registry) DefineArray(id ID, pos int, sample types.Value, rowCount, indexBase int) error {
	if rowCount < 1 {
		return errorf(ErrInvalidRange, id, "row count %d", rowCount)
	}
	if indexBase != 0 && indexBase != 1 {
		return errorf(ErrInvalidRange, id, "index base %d", indexBase)
	}
	col, err := r.defineColumn(id, pos, sample, -1)
	if err != nil {
		return err
	}
	col.array = &arrayColumn{rowCount: rowCount, indexBase: indexBase}
	return nil
}
