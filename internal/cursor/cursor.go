package cursor

import (
	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/parser"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Cursor is one slot's parse scope. It is reached through its Registry.
type Cursor struct {
	id    ID
	reg   *Registry
	state State

	original string
	parsed   string

	vars   []*variable
	byName map[string]*variable

	// cols is indexed by position-1; nil entries are undefined positions.
	cols   []*column
	maxPos int

	exec *execution
}

type variable struct {
	name    string
	ordinal int
	value   types.Value
	bound   bool
	array   *bindArray
}

// bindArray is the bulk payload of a variable: elements lo..hi of the caller's
// array, copied.
type bindArray struct {
	lo, hi int
	elems  []types.Value
}

func (b *bindArray) count() int { return len(b.elems) }

type column struct {
	pos      int
	typ      types.OID
	typmod   int32
	typLen   int16
	byVal    bool
	isString bool
	array    *arrayColumn
}

type arrayColumn struct {
	rowCount  int
	indexBase int
}

// execution is the scope of one execute call.
type execution struct {
	dml      bool
	affected int64
	fetched  int64
	portal   engine.Portal
	colTypes []types.OID
	plans    []*coercionPlan
	batch    fetchBatch
}

// reset returns the cursor to the freshly opened state.
func (c *Cursor) reset() error {
	err := c.endExecution()
	for _, v := range c.vars {
		v.release()
	}
	c.original, c.parsed = "", ""
	c.vars, c.byName = nil, nil
	c.cols, c.maxPos = nil, 0
	c.state = StateOpen
	return err
}

// endExecution discards the execution scope and closes its portal.
func (c *Cursor) endExecution() error {
	if c.exec == nil {
		return nil
	}
	var err error
	if c.exec.portal != nil {
		err = c.exec.portal.Close()
	}
	c.exec.batch.release()
	c.exec = nil
	if c.state == StateExecuted {
		c.state = StateParsed
	}
	return err
}

func (v *variable) release() {
	v.value.Release()
	v.bound = false
	if v.array != nil {
		for i := range v.array.elems {
			v.array.elems[i].Release()
		}
		v.array = nil
	}
}

// Parse rewrites query and registers its placeholders as variables. A cursor
// that was parsed before is reset first.
func (r *Registry) Parse(id ID, query string) error {
	c, err := r.get(id, true)
	if err != nil {
		return err
	}
	if c.state != StateOpen {
		if err := c.reset(); err != nil {
			r.log.Warn("closing portal on reparse", "cursor", id, "error", err)
		}
	}
	p := parser.Rewrite(query, engine.PlaceholderFunc(r.eng))
	c.original = p.Original
	c.parsed = p.Text
	c.byName = make(map[string]*variable, len(p.Names))
	for i, name := range p.Names {
		v := &variable{name: name, ordinal: i + 1}
		c.vars = append(c.vars, v)
		c.byName[name] = v
	}
	c.state = StateParsed
	r.log.Debug("statement parsed", "cursor", id, "variables", len(c.vars))
	return nil
}

// ParsedQuery returns the rewritten statement of a parsed cursor.
func (r *Registry) ParsedQuery(id ID) (string, error) {
	c, err := r.parsedCursor(id)
	if err != nil {
		return "", err
	}
	return c.parsed, nil
}

// Variables returns the placeholder names of a parsed cursor in ordinal order.
func (r *Registry) Variables(id ID) ([]string, error) {
	c, err := r.parsedCursor(id)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(c.vars))
	for i, v := range c.vars {
		names[i] = v.name
	}
	return names, nil
}

func (r *Registry) parsedCursor(id ID) (*Cursor, error) {
	c, err := r.get(id, true)
	if err != nil {
		return nil, err
	}
	if c.state < StateParsed {
		return nil, errorf(ErrNotParsed, id, "")
	}
	return c, nil
}
