// Package dynsql provides dynamic SQL cursors in the style of Oracle's
// DBMS_SQL package on top of any database/sql driver.
//
// A cursor is parsed from a statement with named :placeholders, bound with
// typed values (or arrays of values for bulk DML), given column definitions,
// executed, and then read row by row with FetchRows and ColumnValue. Fetched
// values are converted to the defined column type through a coercion plan
// that is built once per column and execution.
//
// # Basic Usage
//
//	s, _ := dynsql.Open(ctx, "sqlite", ":memory:")
//	defer s.Close()
//
//	c, _ := s.OpenCursor()
//	s.Parse(c, "select name from users where id = :id")
//	s.Bind(c, "id", 42)
//	s.DefineColumn(c, 1, dynsql.Text(""), -1)
//	s.Execute(ctx, c)
//	for {
//	    n, _ := s.FetchRows(ctx, c)
//	    if n == 0 {
//	        break
//	    }
//	    v, _ := s.ColumnValue(c, 1, dynsql.TextOID)
//	    fmt.Println(v)
//	}
//	s.CloseCursor(c)
//
// # Bulk DML
//
//	c, _ := s.OpenCursor()
//	s.Parse(c, "insert into t values (:a, :b)")
//	s.BindArray(c, "a", dynsql.NewArray(dynsql.Int4OID, dynsql.Int4(1), dynsql.Int4(2)))
//	s.BindArray(c, "b", dynsql.NewArray(dynsql.TextOID, dynsql.Text("x"), dynsql.Text("y")))
//	n, _ := s.Execute(ctx, c) // 2
//
// # Transactions
//
// Commit and Rollback end every cursor's execution scope: open results are
// closed and executed cursors must be executed again. Parsed statements,
// binds and column definitions survive.
package dynsql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/cursor"
	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/engine/sqlengine"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

// ============================================================================
// Core Types - Re-exported from internal packages for public API
// ============================================================================

// CursorID identifies a cursor within a Session.
type CursorID = cursor.ID

// CursorState is the lifecycle state of a cursor slot.
type CursorState = cursor.State

const (
	StateFree     = cursor.StateFree
	StateOpen     = cursor.StateOpen
	StateParsed   = cursor.StateParsed
	StateExecuted = cursor.StateExecuted
)

// Value is a runtime-typed, nullable value.
type Value = types.Value

// Array is a one-dimensional array with an explicit lower bound.
type Array = types.Array

// OID identifies a type in the catalog.
type OID = types.OID

// Catalog is the builtin type catalog. Domains are added with CreateDomain.
type Catalog = types.Builtin

// DomainCheck is a named check constraint of a domain.
type DomainCheck = types.DomainCheck

// Engine runs rewritten statements; see NewSession.
type Engine = engine.Engine

// Logger is the structured logger used by sessions.
type Logger = logger.Logger

const (
	InvalidOID     = types.InvalidOID
	BoolOID        = types.BoolOID
	ByteaOID       = types.ByteaOID
	Int2OID        = types.Int2OID
	Int4OID        = types.Int4OID
	Int8OID        = types.Int8OID
	TextOID        = types.TextOID
	JSONOID        = types.JSONOID
	Float4OID      = types.Float4OID
	Float8OID      = types.Float8OID
	UnknownOID     = types.UnknownOID
	BpcharOID      = types.BpcharOID
	VarcharOID     = types.VarcharOID
	DateOID        = types.DateOID
	TimestampOID   = types.TimestampOID
	TimestamptzOID = types.TimestamptzOID
	UUIDOID        = types.UUIDOID
)

// Value constructors.
var (
	Null        = types.Null
	Bool        = types.Bool
	Int2        = types.Int2
	Int4        = types.Int4
	Int8        = types.Int8
	Float4      = types.Float4
	Float8      = types.Float8
	Text        = types.Text
	Varchar     = types.Varchar
	Bpchar      = types.Bpchar
	Bytea       = types.Bytea
	UUID        = types.UUID
	Date        = types.Date
	Timestamp   = types.Timestamp
	TimestampTz = types.TimestampTz
	JSON        = types.JSON
	NewArray    = types.NewArray
	FromGo      = types.FromGo
)

// Errors, matched with errors.Is.
var (
	ErrExhaustedPool       = cursor.ErrExhaustedPool
	ErrInvalidID           = cursor.ErrInvalidID
	ErrNotOpen             = cursor.ErrNotOpen
	ErrNotParsed           = cursor.ErrNotParsed
	ErrUnknownVariable     = cursor.ErrUnknownVariable
	ErrUnboundVariable     = cursor.ErrUnboundVariable
	ErrInvalidRange        = cursor.ErrInvalidRange
	ErrArraySizeMismatch   = cursor.ErrArraySizeMismatch
	ErrUnsupportedType     = cursor.ErrUnsupportedType
	ErrInvalidPosition     = cursor.ErrInvalidPosition
	ErrUndefinedColumn     = cursor.ErrUndefinedColumn
	ErrColumnCountMismatch = cursor.ErrColumnCountMismatch
	ErrMixedBulk           = cursor.ErrMixedBulk
	ErrNotExecuted         = cursor.ErrNotExecuted
	ErrNoActiveBatch       = cursor.ErrNoActiveBatch
	ErrTypeMismatch        = cursor.ErrTypeMismatch
	ErrUnsupportedCast     = cursor.ErrUnsupportedCast
	ErrConstraintViolation = cursor.ErrConstraintViolation

	ErrNoConnection  = errors.New("dynsql: session has no database connection")
	ErrInTransaction = errors.New("dynsql: transaction already in progress")
	ErrNoTransaction = errors.New("dynsql: no transaction in progress")
)

// ============================================================================
// Session
// ============================================================================

// Session couples a database, a type catalog and a cursor registry. It is
// not safe for concurrent use.
type Session struct {
	cat *types.Builtin
	reg *cursor.Registry
	log *logger.Logger

	db   *sql.DB
	base sqlengine.Querier
	conn *sql.Conn
	tx   *sql.Tx
	eng  *sqlengine.Engine
}

type options struct {
	capacity    int
	fetchBatch  int
	log         *logger.Logger
	cat         *types.Builtin
	placeholder *engine.PlaceholderStyle
}

// Option configures a Session.
type Option func(*options)

// WithMaxCursors sets the number of cursor slots (default 100).
func WithMaxCursors(n int) Option { return func(o *options) { o.capacity = n } }

// WithFetchBatch sets the number of rows fetched from the database at a time
// (default 10).
func WithFetchBatch(n int) Option { return func(o *options) { o.fetchBatch = n } }

func WithLogger(l *logger.Logger) Option { return func(o *options) { o.log = l } }

// WithCatalog shares a catalog, e.g. one with domains, between sessions.
func WithCatalog(c *types.Builtin) Option { return func(o *options) { o.cat = c } }

// WithPlaceholder overrides the positional parameter style derived from the
// driver name.
func WithPlaceholder(style engine.PlaceholderStyle) Option {
	return func(o *options) { o.placeholder = &style }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	if o.cat == nil {
		o.cat = types.NewBuiltin()
	}
	return o
}

func newRegistry(eng engine.Engine, o *options) *cursor.Registry {
	return cursor.NewRegistry(eng,
		cursor.WithCapacity(o.capacity),
		cursor.WithFetchBatch(o.fetchBatch),
		cursor.WithCatalog(o.cat),
		cursor.WithLogger(o.log.Named("cursor")),
	)
}

// pinConnection reports whether all statements must share one connection
// because each connection sees its own database.
func pinConnection(driverName, dsn string) bool {
	if engine.PlaceholderFor(driverName) != engine.PlaceholderQuestion {
		return false
	}
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Open connects to a database through database/sql and returns a session
// over it. In-memory SQLite databases are pinned to a single connection.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "dynsql: open %s", driverName)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "dynsql: connect %s", driverName)
	}
	s := &Session{cat: o.cat, log: o.log, db: db, base: db}
	if pinConnection(driverName, dsn) {
		conn, err := db.Conn(ctx)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "dynsql: pin connection")
		}
		s.conn, s.base = conn, conn
	}
	style := engine.PlaceholderFor(driverName)
	if o.placeholder != nil {
		style = *o.placeholder
	}
	s.eng = sqlengine.New(s.base, o.cat, style)
	s.reg = newRegistry(s.eng, o)
	s.log.Info("session opened", "driver", driverName, "placeholder", style.String(), "pinned", s.conn != nil)
	return s, nil
}

// NewSession returns a session over a custom engine. Begin, Commit, Rollback
// and Exec need a database and fail with ErrNoConnection; hosts that manage
// transactions themselves call EndTransaction.
func NewSession(eng Engine, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{cat: o.cat, log: o.log, reg: newRegistry(eng, o)}
}

// Catalog returns the session's type catalog.
func (s *Session) Catalog() *Catalog { return s.cat }

// Close closes every cursor and the database.
func (s *Session) Close() error {
	err := s.reg.CloseAll()
	if s.tx != nil {
		if rerr := s.tx.Rollback(); rerr != nil && err == nil {
			err = rerr
		}
		s.tx = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.log.Info("session closed")
	return err
}

// ============================================================================
// Transactions
// ============================================================================

// Begin starts a transaction; cursors executed until Commit or Rollback run
// inside it.
func (s *Session) Begin(ctx context.Context) error {
	if s.eng == nil {
		return ErrNoConnection
	}
	if s.tx != nil {
		return ErrInTransaction
	}
	var (
		tx  *sql.Tx
		err error
	)
	if s.conn != nil {
		tx, err = s.conn.BeginTx(ctx, nil)
	} else {
		tx, err = s.db.BeginTx(ctx, nil)
	}
	if err != nil {
		return errors.Wrap(err, "dynsql: begin")
	}
	s.tx = tx
	s.eng.Use(tx)
	return nil
}

// Commit commits the transaction and ends all execution scopes.
func (s *Session) Commit() error {
	return s.finish(func(tx *sql.Tx) error { return tx.Commit() }, "commit")
}

// Rollback aborts the transaction and ends all execution scopes.
func (s *Session) Rollback() error {
	return s.finish(func(tx *sql.Tx) error { return tx.Rollback() }, "rollback")
}

func (s *Session) finish(end func(*sql.Tx) error, what string) error {
	if s.eng == nil {
		return ErrNoConnection
	}
	if s.tx == nil {
		return ErrNoTransaction
	}
	// Portals belong to the transaction and are closed before it ends.
	s.reg.TransactionEnded()
	tx := s.tx
	s.tx = nil
	s.eng.Use(s.base)
	if err := end(tx); err != nil {
		return errors.Wrapf(err, "dynsql: %s", what)
	}
	return nil
}

// EndTransaction tells the cursors that the enclosing transaction ended.
func (s *Session) EndTransaction() { s.reg.TransactionEnded() }

// InTransaction reports whether Begin was called without Commit or Rollback.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Exec runs a statement with driver-style arguments outside of any cursor.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.eng == nil {
		return 0, ErrNoConnection
	}
	var q sqlengine.Querier = s.base
	if s.tx != nil {
		q = s.tx
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "dynsql: exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ============================================================================
// Cursor operations
// ============================================================================

// OpenCursor assigns a free cursor slot.
func (s *Session) OpenCursor() (CursorID, error) { return s.reg.Open() }

// CloseCursor releases a cursor. Closing a free slot is not an error.
func (s *Session) CloseCursor(id CursorID) error { return s.reg.Close(id) }

// IsOpen reports whether id names an open cursor.
func (s *Session) IsOpen(id CursorID) bool {
	st, err := s.reg.State(id)
	return err == nil && st != StateFree
}

// CursorState reports the state of slot id.
func (s *Session) CursorState(id CursorID) (CursorState, error) { return s.reg.State(id) }

// OpenCursors returns the number of open cursors.
func (s *Session) OpenCursors() int { return s.reg.Len() }

// Parse parses query, replacing :name placeholders with positional
// parameters. A previously parsed cursor is reset.
func (s *Session) Parse(id CursorID, query string) error { return s.reg.Parse(id, query) }

// ParsedQuery returns the statement as sent to the database.
func (s *Session) ParsedQuery(id CursorID) (string, error) { return s.reg.ParsedQuery(id) }

// Variables returns the placeholder names of a parsed cursor in ordinal order.
func (s *Session) Variables(id CursorID) ([]string, error) { return s.reg.Variables(id) }

// BindVariable assigns a typed value to a placeholder.
func (s *Session) BindVariable(id CursorID, name string, v Value) error {
	return s.reg.BindVariable(id, name, v)
}

// Bind assigns a Go value to a placeholder; see FromGo for the type mapping.
func (s *Session) Bind(id CursorID, name string, x any) error {
	v, err := types.FromGo(x)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedType, "bind %q: %v", name, err)
	}
	return s.reg.BindVariable(id, name, v)
}

// BindArray binds all elements of arr for bulk execution.
func (s *Session) BindArray(id CursorID, name string, arr *Array) error {
	return s.reg.BindArray(id, name, arr)
}

// BindArrayRange binds elements lo..hi of arr for bulk execution.
func (s *Session) BindArrayRange(id CursorID, name string, arr *Array, lo, hi int) error {
	return s.reg.BindArrayRange(id, name, arr, lo, hi)
}

// DefineColumn declares result column pos with the type of sample.
func (s *Session) DefineColumn(id CursorID, pos int, sample Value, size int) error {
	return s.reg.DefineColumn(id, pos, sample, size)
}

// DefineArray declares result column pos for bulk fetches of rowCount rows.
func (s *Session) DefineArray(id CursorID, pos int, sample Value, rowCount, indexBase int) error {
	return s.reg.DefineArray(id, pos, sample, rowCount, indexBase)
}

// Execute runs the cursor's statement; see cursor.Registry.Execute.
func (s *Session) Execute(ctx context.Context, id CursorID) (int64, error) {
	return s.reg.Execute(ctx, id)
}

// FetchRows advances the cursor; it returns 0 at the end of the result.
func (s *Session) FetchRows(ctx context.Context, id CursorID) (int, error) {
	return s.reg.FetchRows(ctx, id)
}

// ExecuteAndFetch executes a query cursor and fetches the first row.
func (s *Session) ExecuteAndFetch(ctx context.Context, id CursorID) (int, error) {
	if _, err := s.reg.Execute(ctx, id); err != nil {
		return 0, err
	}
	return s.reg.FetchRows(ctx, id)
}

// ColumnValue returns column pos of the current row as its defined type.
// target is InvalidOID or the defined type.
func (s *Session) ColumnValue(id CursorID, pos int, target OID) (Value, error) {
	return s.reg.ColumnValue(id, pos, target)
}

// ColumnArray returns column pos of the last bulk fetch.
func (s *Session) ColumnArray(id CursorID, pos int, target OID) (*Array, error) {
	return s.reg.ColumnArray(id, pos, target)
}

// LastRowCount returns the rows fetched or affected by the last execution.
func (s *Session) LastRowCount(id CursorID) (int64, error) { return s.reg.LastRowCount(id) }

// DebugCursor describes the cursor and logs the description.
func (s *Session) DebugCursor(id CursorID) (string, error) { return s.reg.Debug(id) }
