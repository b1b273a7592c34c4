package schema

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ErrCatalogUnavailable is returned when no catalog snapshot could be read.
// An empty catalog is valid and means no tables exist yet.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// DataType is the semantic type of a column. The zero value Unknown means
// no evidence supported a choice.
type DataType string

const (
	Unknown   DataType = ""
	Text      DataType = "text"
	Integer   DataType = "integer"
	Numeric   DataType = "numeric"
	Boolean   DataType = "boolean"
	Date      DataType = "date"
	Timestamp DataType = "timestamp"
	UUID      DataType = "uuid"
)

// AllDataTypes lists the known types in inference priority order.
var AllDataTypes = []DataType{Boolean, Integer, Numeric, Date, Timestamp, UUID, Text}

func (t DataType) Known() bool {
	switch t {
	case Text, Integer, Numeric, Boolean, Date, Timestamp, UUID:
		return true
	}
	return false
}

func (t DataType) String() string {
	if t == Unknown {
		return "unknown"
	}
	return string(t)
}

// MarshalJSON renders Unknown as null.
func (t DataType) MarshalJSON() ([]byte, error) {
	if t == Unknown {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *DataType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Unknown
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = DataType(s)
	return nil
}

// ParseDataType folds a Postgres type name into a DataType. Types with no
// equivalent (json, bytea, arrays) return Unknown.
func ParseDataType(pgType string) DataType {
	t := strings.ToLower(strings.TrimSpace(pgType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "text", "character varying", "varchar", "character", "char", "bpchar", "citext", "name", "string":
		return Text
	case "integer", "int", "int2", "int4", "int8", "smallint", "bigint", "serial", "bigserial", "smallserial":
		return Integer
	case "numeric", "decimal", "real", "double precision", "float4", "float8", "float", "money", "number":
		return Numeric
	case "boolean", "bool":
		return Boolean
	case "date":
		return Date
	case "timestamp", "timestamp without time zone", "timestamp with time zone", "timestamptz", "datetime":
		return Timestamp
	case "uuid":
		return UUID
	}
	return Unknown
}

// PostgresType returns the column type used when proposing DDL.
func (t DataType) PostgresType() string {
	switch t {
	case Integer:
		return "bigint"
	case Numeric:
		return "numeric"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp with time zone"
	case UUID:
		return "uuid"
	}
	return "text"
}

// Origin tags where a table or field definition came from.
type Origin string

const (
	Existing    Origin = "existing"
	ProposedNew Origin = "proposed_new"
	UserCreated Origin = "user_created"
)

// IsNew reports whether the definition still has to be created.
func (o Origin) IsNew() bool {
	return o == ProposedNew || o == UserCreated
}

type FieldInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Type       DataType `json:"type" yaml:"-"`
	RawType    string   `json:"rawType,omitempty" yaml:"type"`
	IsRequired bool     `json:"isRequired" yaml:"required"`
	Origin     Origin   `json:"origin" yaml:"-"`

	// TypeDefaulted marks a proposed field whose type fell back to text
	// because inference found no evidence.
	TypeDefaulted bool   `json:"typeDefaulted,omitempty" yaml:"-"`
	Note          string `json:"note,omitempty" yaml:"-"`
}

type TableSchema struct {
	Name    string      `json:"name" yaml:"name"`
	Columns []FieldInfo `json:"columns" yaml:"columns"`
	Origin  Origin      `json:"origin" yaml:"-"`
}

// Field returns the column with the given name.
func (t TableSchema) Field(name string) (FieldInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return FieldInfo{}, false
}

// FieldNames returns the column names in declaration order.
func (t TableSchema) FieldNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Catalog is a read-only snapshot of the existing database structures.
type Catalog struct {
	Tables []TableSchema
	index  map[string]int
}

// NewCatalog builds a catalog snapshot. Tables are copied so later changes
// by the caller do not leak into the snapshot.
func NewCatalog(tables []TableSchema) *Catalog {
	c := &Catalog{
		Tables: make([]TableSchema, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}
	for _, t := range tables {
		cp := TableSchema{Name: t.Name, Origin: Existing}
		for _, f := range t.Columns {
			if f.Type == Unknown {
				f.Type = ParseDataType(f.RawType)
			}
			f.Origin = Existing
			cp.Columns = append(cp.Columns, f)
		}
		c.index[t.Name] = len(c.Tables)
		c.Tables = append(c.Tables, cp)
	}
	return c
}

// Table looks a table up by exact name.
func (c *Catalog) Table(name string) (TableSchema, bool) {
	if c == nil {
		return TableSchema{}, false
	}
	i, ok := c.index[name]
	if !ok {
		return TableSchema{}, false
	}
	return c.Tables[i], true
}

// TableNames returns the sorted table names.
func (c *Catalog) TableNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}
