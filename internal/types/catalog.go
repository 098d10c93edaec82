package types

import "github.com/pkg/errors"

var (
	// ErrUnknownType is returned for OIDs or names the catalog does not know.
	ErrUnknownType = errors.New("types: unknown type")
	// ErrInvalidText is returned when text input cannot be parsed as the
	// requested type.
	ErrInvalidText = errors.New("types: invalid input syntax")
	// ErrOutOfRange is returned when a cast would overflow the target type.
	ErrOutOfRange = errors.New("types: value out of range")
	// ErrValueTooLong is returned when a string exceeds a declared length.
	ErrValueTooLong = errors.New("types: value too long")
	// ErrConstraintViolation is returned when a value violates a domain
	// constraint.
	ErrConstraintViolation = errors.New("types: domain constraint violated")
)

// CoercionPath says how a value of one type becomes another.
type CoercionPath int

const (
	// PathNone means the catalog knows no direct path; callers fall back to
	// a text round trip.
	PathNone CoercionPath = iota
	// PathRelabel means the representation is shared; only the tag changes.
	PathRelabel
	// PathFunc means a conversion function is required.
	PathFunc
)

func (p CoercionPath) String() string {
	switch p {
	case PathRelabel:
		return "relabel"
	case PathFunc:
		return "func"
	default:
		return "none"
	}
}

// CastFunc converts a non-NULL value into the target type.
type CastFunc func(v Value) (Value, error)

// TypmodFunc applies a type modifier (e.g. a declared length) to a non-NULL
// value that already has the target type.
type TypmodFunc func(v Value, typmod int32) (Value, error)

// DomainCheck is one named CHECK constraint of a domain.
type DomainCheck struct {
	Name string
	Fn   func(v Value) bool
}

// TypeInfo describes one catalog type.
type TypeInfo struct {
	OID      OID
	Name     string
	Len      int16 // storage size in bytes, -1 for variable length
	ByVal    bool
	Category Category
	// BaseType is the OID itself for ordinary types and the underlying type
	// for domains.
	BaseType OID
	// HasIO reports whether the type has text input and output functions.
	HasIO bool

	NotNull bool
	Checks  []DomainCheck
}

// IsDomain reports whether the type is a domain over another type.
func (t *TypeInfo) IsDomain() bool { return t.BaseType != t.OID }

// IsComposite reports whether values of the type are records.
func (t *TypeInfo) IsComposite() bool { return t.Category == CategoryComposite }

// Catalog is the type system the cursor engine consults. Implementations
// other than the builtin one are used by tests to observe lookups.
type Catalog interface {
	Type(oid OID) (*TypeInfo, error)
	TypeByName(name string) (OID, bool)
	// BaseType strips domains; it returns oid for non-domain types.
	BaseType(oid OID) OID
	// FindCoercion looks up an assignment-compatible path from src to dst.
	FindCoercion(src, dst OID) (CoercionPath, CastFunc)
	// TypmodCoercion returns the function that applies a modifier of dst,
	// nil when dst takes no modifier.
	TypmodCoercion(dst OID) TypmodFunc
	Output(v Value) (string, error)
	Input(oid OID, s string, typmod int32) (Value, error)
	CheckDomain(oid OID, v Value) error
	FormatType(oid OID, typmod int32) string
}
