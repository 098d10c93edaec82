// Package types is the host type system the cursor engine runs against.
//
// What: type identifiers (OIDs), a tagged value container, one-dimensional
// arrays for bulk binds, and a Catalog that answers type metadata, text
// input/output and coercion-path questions.
// How: OIDs follow the PostgreSQL numbering so that engines speaking the
// PostgreSQL protocol map one to one. Payloads are held type-erased and are
// always one of a small set of Go representations (see Value).
// Why: the cursor engine never knows column or variable types at compile
// time; everything it does is keyed by runtime type pairs.
package types

// OID identifies a type in a Catalog.
type OID uint32

// Builtin type identifiers.
const (
	InvalidOID     OID = 0
	BoolOID        OID = 16
	ByteaOID       OID = 17
	Int8OID        OID = 20
	Int2OID        OID = 21
	Int4OID        OID = 23
	TextOID        OID = 25
	JSONOID        OID = 114
	Float4OID      OID = 700
	Float8OID      OID = 701
	UnknownOID     OID = 705
	BpcharOID      OID = 1042
	VarcharOID     OID = 1043
	DateOID        OID = 1082
	TimestampOID   OID = 1114
	TimestamptzOID OID = 1184
	RecordOID      OID = 2249
	UUIDOID        OID = 2950
)

// firstUserOID is the first identifier handed out to user-created types.
const firstUserOID OID = 100000

// Category groups types the way the coercion rules look at them.
type Category byte

const (
	CategoryUnknown   Category = 'X'
	CategoryBool      Category = 'B'
	CategoryNumeric   Category = 'N'
	CategoryString    Category = 'S'
	CategoryDateTime  Category = 'D'
	CategoryComposite Category = 'C'
	CategoryUser      Category = 'U'
)

func (c Category) String() string {
	switch c {
	case CategoryBool:
		return "boolean"
	case CategoryNumeric:
		return "numeric"
	case CategoryString:
		return "string"
	case CategoryDateTime:
		return "datetime"
	case CategoryComposite:
		return "composite"
	case CategoryUser:
		return "user"
	default:
		return "unknown"
	}
}
