// Package propose synthesizes definitions for tables and fields that do not
// exist yet. Proposals are staged only; an external executor applies them.
package propose

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/normalize"
	"github.com/ridoystarlord/sheetmatch/schema"
)

// DefaultedTypeNote is attached to fields whose type could not be inferred.
const DefaultedTypeNote = "unknown type, defaulting to text"

type Builder struct {
	tablePrefix string
}

// NewBuilder returns a builder stamping tablePrefix (e.g. "ln_") on
// generated table names.
func NewBuilder(tablePrefix string) *Builder {
	return &Builder{tablePrefix: strings.TrimSpace(tablePrefix)}
}

// TableName returns a SQL-safe table name for sheetName that is not in
// existing.
func (b *Builder) TableName(sheetName string, existing []string) string {
	return UniqueName(normalize.ToSQLSafeName(b.tablePrefix+sheetName), existing)
}

// ColumnName returns a SQL-safe field name for label that is not in existing.
func (b *Builder) ColumnName(label string, existing []string) string {
	return UniqueName(normalize.ToSQLSafeName(label), existing)
}

// ProposeTable builds a new table definition from the sheet's non-skipped
// columns. Column names are unique within the table.
func (b *Builder) ProposeTable(sheet mapping.SheetMapping, existing []string) schema.TableSchema {
	table := schema.TableSchema{
		Name:   b.TableName(sheet.OriginalName, existing),
		Origin: schema.ProposedNew,
	}
	var used []string
	for _, col := range sheet.Columns {
		if col.Skip {
			continue
		}
		f := b.ProposeColumn(col, used)
		used = append(used, f.Name)
		table.Columns = append(table.Columns, f)
	}
	return table
}

// ProposeColumn builds a new field for col. The name comes from the user's
// CreateNewValue when set, else from the source header.
func (b *Builder) ProposeColumn(col mapping.ColumnMapping, existing []string) schema.FieldInfo {
	label := col.OriginalName
	if v := strings.TrimSpace(col.CreateNewValue); v != "" {
		label = v
	}
	f := schema.FieldInfo{
		Name:   b.ColumnName(label, existing),
		Origin: schema.ProposedNew,
	}
	f.Type, f.TypeDefaulted = FieldType(col)
	if f.TypeDefaulted {
		f.Note = DefaultedTypeNote
	}
	f.RawType = f.Type.PostgresType()
	return f
}

// FieldType resolves the type of a new field. It reports defaulted=true when
// neither inference nor the user supplied one and text was picked.
func FieldType(col mapping.ColumnMapping) (schema.DataType, bool) {
	if col.InferredDataType.Known() {
		if col.DataType.Known() {
			return col.DataType, false
		}
		return col.InferredDataType, false
	}
	if col.DataType.Known() && col.DataType != schema.Text {
		return col.DataType, false
	}
	return schema.Text, true
}

// UniqueName appends _1, _2, ... to base until it is neither in existing nor
// a reserved keyword. The result never exceeds the identifier limit.
func UniqueName(base string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e] = true
	}
	if !taken[base] && !normalize.IsReserved(base) {
		return base
	}
	for i := 1; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := normalize.Truncate(base, normalize.MaxIdentifierLength-len(suffix)) + suffix
		if !taken[candidate] {
			return candidate
		}
	}
}
