// Package script runs cursor scenarios written in YAML.
//
// A scenario is a list of steps, each naming a cursor operation, its
// arguments and optionally the expected outcome:
//
//	name: bulk insert
//	steps:
//	  - op: exec_sql
//	    sql: create table t (a integer)
//	  - {op: open, cursor: c}
//	  - {op: parse, cursor: c, sql: "insert into t values (:a)"}
//	  - {op: bind_array, cursor: c, name: a, type: int4, values: [1, 2, 3]}
//	  - {op: execute, cursor: c, expect: 3}
//
// Values are decoded with types.Decode: type names the catalog type, an empty
// type infers it from the YAML scalar. A step whose error field is set must
// fail with an error containing that text.
package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/dynsql"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Script is one scenario.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation of a scenario. Fields not used by Op are ignored.
type Step struct {
	Op     string `yaml:"op" json:"op,omitempty"`
	Cursor string `yaml:"cursor" json:"cursor,omitempty"`
	SQL    string `yaml:"sql" json:"sql,omitempty"`
	Name   string `yaml:"name" json:"name,omitempty"`
	Type   string `yaml:"type" json:"type,omitempty"`
	Value  any    `yaml:"value" json:"value,omitempty"`
	Values []any  `yaml:"values" json:"values,omitempty"`
	// Lower is the lower bound of a bind array (default 1).
	Lower *int `yaml:"lower" json:"lower,omitempty"`
	// Range restricts a bind array to [lo, hi].
	Range     []int `yaml:"range" json:"range,omitempty"`
	Position  int   `yaml:"position" json:"position,omitempty"`
	Size      *int  `yaml:"size" json:"size,omitempty"`
	Rows      int   `yaml:"rows" json:"rows,omitempty"`
	IndexBase int   `yaml:"index_base" json:"index_base,omitempty"`

	Expect yaml.Node `yaml:"expect" json:"-"`
	Error  string    `yaml:"error" json:"-"`
}

func (s *Step) hasExpect() bool { return s.Expect.Kind != 0 }

// Parse decodes a scenario document.
func Parse(data []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "script: parse")
	}
	for i, st := range sc.Steps {
		if _, ok := ops[st.Op]; !ok {
			return nil, errors.Errorf("script: step %d: unknown op %q", i+1, st.Op)
		}
	}
	return &sc, nil
}

// Load reads and parses a scenario file. An unnamed scenario is named after
// the file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "script: read %s", path)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// StepError reports the failing step of a scenario.
type StepError struct {
	Script string
	Index  int
	Op     string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %v", e.Script, e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes scenarios against a session. Results of fetch, value,
// array and debug steps are written to Out when it is set.
type Runner struct {
	Session *dynsql.Session
	Out     io.Writer
	Log     *logger.Logger

	cursors map[string]dynsql.CursorID
}

// NewRunner returns a runner over s.
func NewRunner(s *dynsql.Session, out io.Writer, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{Session: s, Out: out, Log: log, cursors: make(map[string]dynsql.CursorID)}
}

type opFunc func(ctx context.Context, r *Runner, st *Step) (any, error)

var ops = map[string]opFunc{
	"open":         opOpen,
	"close":        opClose,
	"parse":        opParse,
	"bind":         opBind,
	"bind_array":   opBindArray,
	"define":       opDefine,
	"define_array": opDefineArray,
	"execute":      opExecute,
	"fetch":        opFetch,
	"value":        opValue,
	"array":        opArray,
	"debug":        opDebug,
	"row_count":    opRowCount,
	"begin":        opBegin,
	"commit":       opCommit,
	"rollback":     opRollback,
	"exec_sql":     opExecSQL,
}

// Run executes every step of sc and stops at the first failure. Cursors the
// scenario leaves open are closed.
func (r *Runner) Run(ctx context.Context, sc *Script) error {
	defer r.CloseCursors()
	for i := range sc.Steps {
		st := &sc.Steps[i]
		if err := r.step(ctx, st); err != nil {
			return &StepError{Script: sc.Name, Index: i + 1, Op: st.Op, Err: err}
		}
	}
	r.Log.Info("script passed", "script", sc.Name, "steps", len(sc.Steps))
	return nil
}

// CloseCursors closes every cursor opened through the runner.
func (r *Runner) CloseCursors() {
	for name, id := range r.cursors {
		r.Session.CloseCursor(id)
		delete(r.cursors, name)
	}
}

// Do performs one step and returns its result: an int64 for open, execute,
// fetch, row_count and exec_sql, a string for parse and debug, a types.Value
// for value and a *types.Array for array. Expectations are not checked.
func (r *Runner) Do(ctx context.Context, st *Step) (any, error) {
	fn, ok := ops[st.Op]
	if !ok {
		return nil, errors.Errorf("unknown op %q", st.Op)
	}
	return fn(ctx, r, st)
}

func (r *Runner) step(ctx context.Context, st *Step) error {
	got, err := r.Do(ctx, st)
	if st.Error != "" {
		if err == nil {
			return errors.Errorf("expected error containing %q", st.Error)
		}
		if !strings.Contains(err.Error(), st.Error) {
			return errors.Errorf("expected error containing %q, got %v", st.Error, err)
		}
		r.Log.Debug("expected error", "op", st.Op, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if st.hasExpect() {
		return r.check(st, got)
	}
	return nil
}

func (r *Runner) printf(format string, args ...any) {
	if r.Out != nil {
		fmt.Fprintf(r.Out, format, args...)
	}
}

func (r *Runner) cursor(st *Step) (dynsql.CursorID, error) {
	id, ok := r.cursors[st.Cursor]
	if !ok {
		return -1, errors.Errorf("cursor %q is not opened", st.Cursor)
	}
	return id, nil
}

func (r *Runner) decode(typeName string, raw any) (types.Value, error) {
	return types.Decode(r.Session.Catalog(), typeName, raw)
}

// ============================================================================
// Operations
// ============================================================================

func opOpen(_ context.Context, r *Runner, st *Step) (any, error) {
	if _, ok := r.cursors[st.Cursor]; ok {
		return nil, errors.Errorf("cursor %q is open already", st.Cursor)
	}
	id, err := r.Session.OpenCursor()
	if err != nil {
		return nil, err
	}
	r.cursors[st.Cursor] = id
	return int64(id), nil
}

func opClose(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	delete(r.cursors, st.Cursor)
	return nil, r.Session.CloseCursor(id)
}

func opParse(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	if err := r.Session.Parse(id, st.SQL); err != nil {
		return nil, err
	}
	return r.Session.ParsedQuery(id)
}

func opBind(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	v, err := r.decode(st.Type, st.Value)
	if err != nil {
		return nil, err
	}
	return nil, r.Session.BindVariable(id, st.Name, v)
}

func (r *Runner) array(st *Step) (*types.Array, error) {
	elem := types.UnknownOID
	if st.Type != "" {
		oid, ok := r.Session.Catalog().TypeByName(st.Type)
		if !ok {
			return nil, errors.Wrapf(types.ErrUnknownType, "%q", st.Type)
		}
		elem = oid
	}
	arr := types.NewArray(elem)
	if st.Lower != nil {
		arr.Lower = *st.Lower
	}
	for _, raw := range st.Values {
		v, err := r.decode(st.Type, raw)
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, v)
	}
	return arr, nil
}

func opBindArray(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	arr, err := r.array(st)
	if err != nil {
		return nil, err
	}
	switch len(st.Range) {
	case 0:
		return nil, r.Session.BindArray(id, st.Name, arr)
	case 2:
		return nil, r.Session.BindArrayRange(id, st.Name, arr, st.Range[0], st.Range[1])
	}
	return nil, errors.Errorf("range needs two bounds, got %d", len(st.Range))
}

// sample returns a NULL of the named type as a column definition sample.
func (r *Runner) sample(st *Step) (types.Value, error) {
	if st.Value != nil {
		return r.decode(st.Type, st.Value)
	}
	oid, ok := r.Session.Catalog().TypeByName(st.Type)
	if !ok {
		return types.Value{}, errors.Wrapf(types.ErrUnknownType, "%q", st.Type)
	}
	return types.Null(oid), nil
}

func opDefine(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	v, err := r.sample(st)
	if err != nil {
		return nil, err
	}
	size := -1
	if st.Size != nil {
		size = *st.Size
	}
	return nil, r.Session.DefineColumn(id, st.Position, v, size)
}

func opDefineArray(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	v, err := r.sample(st)
	if err != nil {
		return nil, err
	}
	return nil, r.Session.DefineArray(id, st.Position, v, st.Rows, st.IndexBase)
}

func opExecute(ctx context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	return r.Session.Execute(ctx, id)
}

func opFetch(ctx context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	n, err := r.Session.FetchRows(ctx, id)
	if err != nil {
		return nil, err
	}
	r.printf("%s: fetched %d\n", st.Cursor, n)
	return int64(n), nil
}

func (r *Runner) target(st *Step) (types.OID, error) {
	if st.Type == "" {
		return types.InvalidOID, nil
	}
	oid, ok := r.Session.Catalog().TypeByName(st.Type)
	if !ok {
		return types.InvalidOID, errors.Wrapf(types.ErrUnknownType, "%q", st.Type)
	}
	return oid, nil
}

func opValue(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	oid, err := r.target(st)
	if err != nil {
		return nil, err
	}
	v, err := r.Session.ColumnValue(id, st.Position, oid)
	if err != nil {
		return nil, err
	}
	r.printf("%s[%d] = %v\n", st.Cursor, st.Position, v)
	return v, nil
}

func opArray(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	oid, err := r.target(st)
	if err != nil {
		return nil, err
	}
	arr, err := r.Session.ColumnArray(id, st.Position, oid)
	if err != nil {
		return nil, err
	}
	r.printf("%s[%d] = %v\n", st.Cursor, st.Position, arr)
	return arr, nil
}

func opDebug(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	out, err := r.Session.DebugCursor(id)
	if err != nil {
		return nil, err
	}
	r.printf("%s\n", out)
	return out, nil
}

func opRowCount(_ context.Context, r *Runner, st *Step) (any, error) {
	id, err := r.cursor(st)
	if err != nil {
		return nil, err
	}
	return r.Session.LastRowCount(id)
}

func opBegin(ctx context.Context, r *Runner, _ *Step) (any, error) {
	return nil, r.Session.Begin(ctx)
}

func opCommit(_ context.Context, r *Runner, _ *Step) (any, error) {
	return nil, r.Session.Commit()
}

func opRollback(_ context.Context, r *Runner, _ *Step) (any, error) {
	return nil, r.Session.Rollback()
}

func opExecSQL(ctx context.Context, r *Runner, st *Step) (any, error) {
	return r.Session.Exec(ctx, st.SQL)
}
