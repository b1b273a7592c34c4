package diff

import (
	"strings"

	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/propose"
	"github.com/ridoystarlord/sheetmatch/schema"
)

type OperationType string

const (
	CreateTable OperationType = "CREATE_TABLE"
	AddColumn   OperationType = "ADD_COLUMN"
)

type Operation struct {
	Type      OperationType      `json:"type"`
	TableName string             `json:"table"`
	Sheet     string             `json:"sheet,omitempty"`
	Columns   []schema.FieldInfo `json:"columns,omitempty"` // for CREATE_TABLE
	Column    *schema.FieldInfo  `json:"column,omitempty"`  // for ADD_COLUMN
}

// DiffMappings collects the schema changes staged by reviewed sheets: a
// CREATE_TABLE per confirmed new table and an ADD_COLUMN per confirmed new
// field of an existing table. Skipped sheets and columns, and anything still
// in review, are left out. The catalog itself is never changed.
func DiffMappings(sheets []mapping.SheetMapping, catalog *schema.Catalog, b *propose.Builder) []Operation {
	var ops []Operation

	created := map[string]int{}
	added := map[string]bool{}

	for _, sheet := range sheets {
		if sheet.Skip || sheet.TableNeedsReview {
			continue
		}

		if sheet.IsNewTable {
			tableName := strings.TrimSpace(sheet.CreateNewValue)
			if tableName == "" {
				continue
			}
			if _, exists := catalog.Table(tableName); exists {
				continue
			}
			i, seen := created[tableName]
			if !seen {
				ops = append(ops, Operation{Type: CreateTable, TableName: tableName, Sheet: sheet.OriginalName})
				i = len(ops) - 1
				created[tableName] = i
			}
			for _, col := range newColumns(sheet) {
				f := stagedField(b, col)
				if hasField(ops[i].Columns, f.Name) {
					continue
				}
				ops[i].Columns = append(ops[i].Columns, f)
			}
			continue
		}

		table, exists := catalog.Table(sheet.MappedName)
		if !exists {
			continue
		}
		for _, col := range newColumns(sheet) {
			f := stagedField(b, col)
			key := table.Name + "." + f.Name
			if _, inCatalog := table.Field(f.Name); inCatalog || added[key] {
				continue
			}
			added[key] = true
			ops = append(ops, Operation{Type: AddColumn, TableName: table.Name, Sheet: sheet.OriginalName, Column: &f})
		}
	}

	return ops
}

// newColumns returns the resolved create-new columns of a sheet.
func newColumns(sheet mapping.SheetMapping) []mapping.ColumnMapping {
	var cols []mapping.ColumnMapping
	for _, col := range sheet.Columns {
		if col.Skip || col.NeedsReview || col.MappedName != mapping.CreateNew || col.Issue != "" {
			continue
		}
		if strings.TrimSpace(col.CreateNewValue) == "" {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// stagedField is the definition of a confirmed new field. The reviewed
// name is used as is.
func stagedField(b *propose.Builder, col mapping.ColumnMapping) schema.FieldInfo {
	f := b.ProposeColumn(col, nil)
	f.Name = strings.TrimSpace(col.CreateNewValue)
	if col.Origin != "" {
		f.Origin = col.Origin
	}
	return f
}

func hasField(fields []schema.FieldInfo, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
