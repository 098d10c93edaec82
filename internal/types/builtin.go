package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Builtin is the default Catalog. Types are fixed at construction time;
// domains can be added with CreateDomain.
type Builtin struct {
	types   map[OID]*TypeInfo
	names   map[string]OID
	nextOID OID
}

// NewBuiltin returns a catalog preloaded with the builtin types.
func NewBuiltin() *Builtin {
	c := &Builtin{
		types:   make(map[OID]*TypeInfo),
		names:   make(map[string]OID),
		nextOID: firstUserOID,
	}
	for _, t := range []TypeInfo{
		{OID: BoolOID, Name: "boolean", Len: 1, ByVal: true, Category: CategoryBool},
		{OID: ByteaOID, Name: "bytea", Len: -1, Category: CategoryUser},
		{OID: Int8OID, Name: "bigint", Len: 8, ByVal: true, Category: CategoryNumeric},
		{OID: Int2OID, Name: "smallint", Len: 2, ByVal: true, Category: CategoryNumeric},
		{OID: Int4OID, Name: "integer", Len: 4, ByVal: true, Category: CategoryNumeric},
		{OID: TextOID, Name: "text", Len: -1, Category: CategoryString},
		{OID: JSONOID, Name: "json", Len: -1, Category: CategoryUser},
		{OID: Float4OID, Name: "real", Len: 4, ByVal: true, Category: CategoryNumeric},
		{OID: Float8OID, Name: "double precision", Len: 8, ByVal: true, Category: CategoryNumeric},
		{OID: UnknownOID, Name: "unknown", Len: -2, Category: CategoryUnknown},
		{OID: BpcharOID, Name: "character", Len: -1, Category: CategoryString},
		{OID: VarcharOID, Name: "character varying", Len: -1, Category: CategoryString},
		{OID: DateOID, Name: "date", Len: 4, ByVal: true, Category: CategoryDateTime},
		{OID: TimestampOID, Name: "timestamp without time zone", Len: 8, ByVal: true, Category: CategoryDateTime},
		{OID: TimestamptzOID, Name: "timestamp with time zone", Len: 8, ByVal: true, Category: CategoryDateTime},
		{OID: UUIDOID, Name: "uuid", Len: 16, Category: CategoryUser},
		{OID: RecordOID, Name: "record", Len: -1, Category: CategoryComposite},
	} {
		t := t
		t.BaseType = t.OID
		t.HasIO = t.Category != CategoryComposite
		c.types[t.OID] = &t
		c.names[t.Name] = t.OID
	}
	for alias, oid := range typeAliases {
		c.names[alias] = oid
	}
	return c
}

// typeAliases are the short names accepted by TypeByName.
var typeAliases = map[string]OID{
	"bool":        BoolOID,
	"int2":        Int2OID,
	"int4":        Int4OID,
	"int":         Int4OID,
	"int8":        Int8OID,
	"float4":      Float4OID,
	"float8":      Float8OID,
	"double":      Float8OID,
	"varchar":     VarcharOID,
	"bpchar":      BpcharOID,
	"char":        BpcharOID,
	"timestamp":   TimestampOID,
	"timestamptz": TimestamptzOID,
}

// CreateDomain registers a domain over base and returns its OID.
func (c *Builtin) CreateDomain(name string, base OID, notNull bool, checks ...DomainCheck) (OID, error) {
	name = strings.ToLower(name)
	if _, ok := c.names[name]; ok {
		return InvalidOID, errors.Errorf("types: type %q already exists", name)
	}
	bt, err := c.Type(c.BaseType(base))
	if err != nil {
		return InvalidOID, err
	}
	if bt.IsComposite() {
		return InvalidOID, errors.Errorf("types: %q is not a valid base type for a domain", bt.Name)
	}
	oid := c.nextOID
	c.nextOID++
	c.types[oid] = &TypeInfo{
		OID:      oid,
		Name:     name,
		Len:      bt.Len,
		ByVal:    bt.ByVal,
		Category: bt.Category,
		BaseType: bt.OID,
		HasIO:    bt.HasIO,
		NotNull:  notNull,
		Checks:   checks,
	}
	c.names[name] = oid
	return oid, nil
}

func (c *Builtin) Type(oid OID) (*TypeInfo, error) {
	t, ok := c.types[oid]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "oid %d", oid)
	}
	return t, nil
}

func (c *Builtin) TypeByName(name string) (OID, bool) {
	oid, ok := c.names[strings.ToLower(strings.TrimSpace(name))]
	return oid, ok
}

func (c *Builtin) BaseType(oid OID) OID {
	if t, ok := c.types[oid]; ok {
		return t.BaseType
	}
	return oid
}

func (c *Builtin) FindCoercion(src, dst OID) (CoercionPath, CastFunc) {
	src, dst = c.BaseType(src), c.BaseType(dst)
	if src == dst {
		return PathRelabel, nil
	}
	if relabelPairs[[2]OID{src, dst}] {
		return PathRelabel, nil
	}
	if fn, ok := castFuncs[[2]OID{src, dst}]; ok {
		return PathFunc, fn
	}
	return PathNone, nil
}

func (c *Builtin) TypmodCoercion(dst OID) TypmodFunc {
	switch c.BaseType(dst) {
	case VarcharOID:
		return varcharTypmod
	case BpcharOID:
		return bpcharTypmod
	default:
		return nil
	}
}

func (c *Builtin) Output(v Value) (string, error) {
	if v.IsNull() {
		return "", errors.New("types: cannot output NULL")
	}
	return output(c.BaseType(v.Type()), v)
}

func (c *Builtin) Input(oid OID, s string, typmod int32) (Value, error) {
	t, err := c.Type(oid)
	if err != nil {
		return Value{}, err
	}
	if !t.HasIO {
		return Value{}, errors.Errorf("types: type %s has no input function", t.Name)
	}
	v, err := input(t.BaseType, s)
	if err != nil {
		return Value{}, err
	}
	if typmod >= 0 {
		if fn := c.TypmodCoercion(oid); fn != nil {
			if v, err = fn(v, typmod); err != nil {
				return Value{}, err
			}
		}
	}
	return v.WithType(oid), nil
}

func (c *Builtin) CheckDomain(oid OID, v Value) error {
	t, err := c.Type(oid)
	if err != nil {
		return err
	}
	if !t.IsDomain() {
		return nil
	}
	if v.IsNull() {
		if t.NotNull {
			return errors.Wrapf(ErrConstraintViolation, "domain %s does not allow null values", t.Name)
		}
		return nil
	}
	for _, chk := range t.Checks {
		if !chk.Fn(v) {
			return errors.Wrapf(ErrConstraintViolation, "value for domain %s violates check constraint %q", t.Name, chk.Name)
		}
	}
	return nil
}

func (c *Builtin) FormatType(oid OID, typmod int32) string {
	t, ok := c.types[oid]
	if !ok {
		return fmt.Sprintf("oid %d", oid)
	}
	if typmod >= 0 && c.TypmodCoercion(oid) != nil && !t.IsDomain() {
		return fmt.Sprintf("%s(%d)", t.Name, typmod)
	}
	return t.Name
}
