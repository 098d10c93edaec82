// Package cursor implements dynamic SQL cursors: a fixed pool of cursor
// slots, each parsing one statement with :name placeholders, holding typed
// bind variables and column definitions, executing through an
// engine.Engine and fetching rows in batches.
//
// A Registry is not safe for concurrent use. State is scoped in three layers:
// the registry owns the slots, a cursor owns its parsed statement, variables
// and columns until it is closed, and each execution owns its portal, fetch
// batch and coercion plans until the next execute, close or transaction end.
package cursor

import (
	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/engine"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/types"
)

const (
	DefaultCapacity   = 100
	DefaultFetchBatch = 10
)

// ID identifies a cursor slot.
type ID int

// State is the lifecycle state of a slot.
type State int

const (
	StateFree State = iota
	StateOpen
	StateParsed
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateParsed:
		return "parsed"
	case StateExecuted:
		return "executed"
	default:
		return "free"
	}
}

// Registry is a fixed-capacity pool of cursors bound to one engine.
type Registry struct {
	eng   engine.Engine
	cat   types.Catalog
	log   *logger.Logger
	batch int
	slots []*Cursor
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity sets the number of cursor slots.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.slots = make([]*Cursor, n)
		}
	}
}

// WithFetchBatch sets how many rows a single-row fetch requests from the
// engine at a time.
func WithFetchBatch(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithCatalog sets the type catalog used for coercions. The default is
// types.NewBuiltin().
func WithCatalog(c types.Catalog) Option {
	return func(r *Registry) {
		if c != nil {
			r.cat = c
		}
	}
}

// NewRegistry returns an empty registry running statements on eng.
func NewRegistry(eng engine.Engine, opts ...Option) *Registry {
	r := &Registry{
		eng:   eng,
		batch: DefaultFetchBatch,
		slots: make([]*Cursor, DefaultCapacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cat == nil {
		r.cat = types.NewBuiltin()
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	return r
}

// Catalog returns the registry's type catalog.
func (r *Registry) Catalog() types.Catalog { return r.cat }

// Cap returns the number of slots.
func (r *Registry) Cap() int { return len(r.slots) }

// Len returns the number of open cursors.
func (r *Registry) Len() int {
	n := 0
	for _, c := range r.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// Open assigns the first free slot.
func (r *Registry) Open() (ID, error) {
	for i, c := range r.slots {
		if c == nil {
			id := ID(i)
			r.slots[i] = &Cursor{id: id, reg: r, state: StateOpen}
			r.log.Debug("cursor opened", "cursor", id)
			return id, nil
		}
	}
	return -1, errors.Wrapf(ErrExhaustedPool, "capacity %d", len(r.slots))
}

func (r *Registry) get(id ID, requireOpen bool) (*Cursor, error) {
	if id < 0 || int(id) >= len(r.slots) {
		return nil, errors.Wrapf(ErrInvalidID, "cursor %d", id)
	}
	c := r.slots[id]
	if c == nil && requireOpen {
		return nil, errors.Wrapf(ErrNotOpen, "cursor %d", id)
	}
	return c, nil
}

// State reports the state of slot id.
func (r *Registry) State(id ID) (State, error) {
	c, err := r.get(id, false)
	if err != nil {
		return StateFree, err
	}
	if c == nil {
		return StateFree, nil
	}
	return c.state, nil
}

// Close releases the cursor and everything it owns. Closing a free slot is a
// no-op.
func (r *Registry) Close(id ID) error {
	c, err := r.get(id, false)
	if err != nil || c == nil {
		return err
	}
	err = c.reset()
	r.slots[id] = nil
	r.log.Debug("cursor closed", "cursor", id)
	if err != nil {
		return errors.Wrapf(err, "cursor %d: close portal", id)
	}
	return nil
}

// CloseAll closes every open cursor and returns the first portal error.
func (r *Registry) CloseAll() error {
	var first error
	for i, c := range r.slots {
		if c == nil {
			continue
		}
		if err := r.Close(ID(i)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TransactionEnded drops every execution scope: portals are closed, fetch
// batches and coercion plans are discarded and executed cursors return to
// the parsed state. Statements, variables and columns survive.
func (r *Registry) TransactionEnded() {
	for _, c := range r.slots {
		if c == nil || c.exec == nil {
			continue
		}
		if err := c.endExecution(); err != nil {
			r.log.Warn("closing portal at transaction end", "cursor", c.id, "error", err)
		}
		r.log.Debug("execution scope dropped at transaction end", "cursor", c.id)
	}
}
