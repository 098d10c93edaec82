package script

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// ErrMismatch is returned when a step result differs from its expectation.
var ErrMismatch = errors.New("unexpected result")

func (r *Runner) check(st *Step, got any) error {
	switch g := got.(type) {
	case int64:
		var want int64
		if err := st.Expect.Decode(&want); err != nil {
			return errors.Wrap(err, "expect")
		}
		if want != g {
			return errors.Wrapf(ErrMismatch, "got %d, want %d", g, want)
		}
	case string:
		if st.Op == "debug" {
			return checkLines(st, g)
		}
		var want string
		if err := st.Expect.Decode(&want); err != nil {
			return errors.Wrap(err, "expect")
		}
		if want != g {
			return errors.Wrapf(ErrMismatch, "got %q, want %q", g, want)
		}
	case types.Value:
		var raw any
		if err := st.Expect.Decode(&raw); err != nil {
			return errors.Wrap(err, "expect")
		}
		return r.checkValue(g, raw)
	case *types.Array:
		var raw []any
		if err := st.Expect.Decode(&raw); err != nil {
			return errors.Wrap(err, "expect")
		}
		if len(raw) != g.Len() {
			return errors.Wrapf(ErrMismatch, "got %d elements %v, want %d", g.Len(), g, len(raw))
		}
		for i, x := range raw {
			if err := r.checkValue(g.Elems[i], x); err != nil {
				return errors.Wrapf(err, "element %d", g.Lower+i)
			}
		}
	default:
		return errors.Errorf("op %s has no result to compare", st.Op)
	}
	return nil
}

// checkValue decodes raw as the type of got and compares. A nil raw expects
// NULL.
func (r *Runner) checkValue(got types.Value, raw any) error {
	if raw == nil {
		if !got.IsNull() {
			return errors.Wrapf(ErrMismatch, "got %v, want NULL", got)
		}
		return nil
	}
	cat := r.Session.Catalog()
	ti, err := cat.Type(got.Type())
	if err != nil {
		return err
	}
	want, err := types.Decode(cat, ti.Name, raw)
	if err != nil {
		return errors.Wrap(err, "expect")
	}
	if !want.Equal(got) {
		return errors.Wrapf(ErrMismatch, "got %v, want %v", got, want)
	}
	return nil
}

// checkLines requires every expected line, a string or a list of strings, to
// appear in the debug output.
func checkLines(st *Step, out string) error {
	var lines []string
	if st.Expect.Kind == yaml.ScalarNode {
		var s string
		if err := st.Expect.Decode(&s); err != nil {
			return errors.Wrap(err, "expect")
		}
		lines = []string{s}
	} else if err := st.Expect.Decode(&lines); err != nil {
		return errors.Wrap(err, "expect")
	}
	for _, l := range lines {
		if !strings.Contains(out, l) {
			return errors.Wrapf(ErrMismatch, "debug output lacks %q:\n%s", l, out)
		}
	}
	return nil
}
