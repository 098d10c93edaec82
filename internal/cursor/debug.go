package cursor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Debug describes the cursor in a few lines of text and logs each of them at
// info level. A free slot is reported, not rejected.
func (r *Registry) Debug(id ID) (string, error) {
	c, err := r.get(id, false)
	if err != nil {
		return "", err
	}
	var lines []string
	add := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		lines = append(lines, line)
		r.log.Info(line, "cursor", id)
	}
	if c == nil {
		add("cursor is not assigned")
		return strings.Join(lines, "\n"), nil
	}
	add("state: %s", c.state)
	if c.state >= StateParsed {
		add("orig query: %q", c.original)
		add("parsed query: %q", c.parsed)
	}
	for _, v := range c.vars {
		switch {
		case v.array != nil:
			elems := make([]string, len(v.array.elems))
			for i, e := range v.array.elems {
				elems[i] = r.output(e)
			}
			add("variable %q is assigned to array [%d..%d] {%s}", v.name, v.array.lo, v.array.hi, strings.Join(elems, ","))
		case v.bound:
			add("variable %q is assigned to %s", v.name, r.output(v.value))
		default:
			add("variable %q is not assigned", v.name)
		}
	}
	for i, col := range c.cols {
		if col == nil {
			add("column definition for position %d is missing", i+1)
			continue
		}
		typ := r.cat.FormatType(col.typ, col.typmod)
		if col.array != nil {
			add("column definition for position %d is %s[] (%d rows, index base %d)", col.pos, typ, col.array.rowCount, col.array.indexBase)
		} else {
			add("column definition for position %d is %s", col.pos, typ)
		}
	}
	if e := c.exec; e != nil {
		if e.dml {
			add("executed: %d rows affected", e.affected)
		} else {
			add("fetch position %d of %d, %d rows fetched, end of data %t", e.batch.nread, e.batch.processed, e.fetched, e.batch.done)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Registry) output(v types.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	s, err := r.cat.Output(v)
	if err != nil {
		s = v.String()
	}
	return strconv.Quote(s)
}
