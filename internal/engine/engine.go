// Package engine defines the boundary between dynamic SQL cursors and the
// relational engine that compiles and runs their statements.
//
// What: Engine runs a rewritten statement with positional parameters, either
// to completion (Exec) or as an open Portal that yields row batches.
// How: Parameters and row values travel as tagged types.Value so the cursor
// layer can coerce them without knowing the engine. Engines may report their
// positional placeholder syntax through Placeholderer.
// Why: The cursor state machine is the same whether the statements run on
// SQLite, PostgreSQL or a scripted test double.
package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Engine runs statements whose bind placeholders have already been rewritten
// to positional parameters. params[i] belongs to ordinal i+1.
type Engine interface {
	// Exec runs a statement that returns no rows and reports the number of
	// affected rows.
	Exec(ctx context.Context, query string, params []types.Value) (int64, error)
	// Query opens a portal over a row-returning statement.
	Query(ctx context.Context, query string, params []types.Value) (Portal, error)
}

// Portal is an open engine-side cursor.
type Portal interface {
	// Columns returns the type of each result column; InvalidOID where the
	// engine cannot tell.
	Columns() []types.OID
	// Fetch returns up to n further rows. An empty result means the portal
	// is exhausted.
	Fetch(ctx context.Context, n int) ([][]types.Value, error)
	Close() error
}

// Placeholderer is implemented by engines whose positional parameter syntax
// differs from $n.
type Placeholderer interface {
	Placeholder(ordinal int) string
}

// PlaceholderFunc returns the placeholder renderer of e.
func PlaceholderFunc(e Engine) func(int) string {
	if p, ok := e.(Placeholderer); ok {
		return p.Placeholder
	}
	return PlaceholderDollar.Format
}

// PlaceholderStyle selects the positional parameter syntax of a target
// database.
//   - PlaceholderDollar   → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderQuestion → "?1, ?2, …"  (SQLite)
//   - PlaceholderColonNum → ":1, :2, …"  (Oracle)
type PlaceholderStyle int

const (
	PlaceholderDollar PlaceholderStyle = iota
	PlaceholderQuestion
	PlaceholderColonNum
)

// Format renders ordinal n in style s.
func (s PlaceholderStyle) Format(n int) string {
	switch s {
	case PlaceholderQuestion:
		return "?" + strconv.Itoa(n)
	case PlaceholderColonNum:
		return ":" + strconv.Itoa(n)
	default:
		return "$" + strconv.Itoa(n)
	}
}

func (s PlaceholderStyle) String() string {
	switch s {
	case PlaceholderQuestion:
		return "question"
	case PlaceholderColonNum:
		return "colon"
	default:
		return "dollar"
	}
}

// ParsePlaceholderStyle maps a configuration value to a style. The empty
// string and "auto" are resolved from driverName.
func ParsePlaceholderStyle(name, driverName string) (PlaceholderStyle, bool) {
	switch strings.ToLower(name) {
	case "", "auto":
		return PlaceholderFor(driverName), true
	case "dollar", "$":
		return PlaceholderDollar, true
	case "question", "?":
		return PlaceholderQuestion, true
	case "colon", ":":
		return PlaceholderColonNum, true
	}
	return PlaceholderDollar, false
}

// PlaceholderFor picks a style based on a database/sql driver name.
//
//	PlaceholderFor("pgx")    // PlaceholderDollar
//	PlaceholderFor("sqlite") // PlaceholderQuestion
func PlaceholderFor(driverName string) PlaceholderStyle {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return PlaceholderQuestion
	case "godror", "oracle", "goracle":
		return PlaceholderColonNum
	default:
		return PlaceholderDollar
	}
}
