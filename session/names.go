package session

import (
	"strings"

	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/propose"
	"github.com/ridoystarlord/sheetmatch/schema"
	"github.com/ridoystarlord/sheetmatch/validator"
)

// targetFields returns the fields a column of sheet id can map to in table:
// the catalog's fields plus new fields other sheets have staged for it.
// Callers hold s.mu.
func (s *Session) targetFields(id, table string) []schema.FieldInfo {
	if table == "" || table == mapping.CreateNew {
		return nil
	}
	existing, ok := s.catalog.Table(table)
	if !ok {
		return nil
	}
	fields := append([]schema.FieldInfo(nil), existing.Columns...)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f.Name] = true
	}
	for _, otherID := range s.order {
		if otherID == id {
			continue
		}
		other := s.sheets[otherID]
		if other.Skip || other.IsNewTable || other.MappedName != table {
			continue
		}
		for _, col := range other.Columns {
			name := newFieldName(col)
			if col.Skip || name == "" || seen[name] {
				continue
			}
			seen[name] = true
			typ, _ := propose.FieldType(col)
			fields = append(fields, schema.FieldInfo{Name: name, Type: typ, Origin: col.Origin})
		}
	}
	return fields
}

// newFieldName is the concrete name of a staged new field, or "".
func newFieldName(col mapping.ColumnMapping) string {
	if col.MappedName != mapping.CreateNew || col.Issue != "" {
		return ""
	}
	return strings.TrimSpace(col.CreateNewValue)
}

// takenTableNames lists the names a new table for sheet id must avoid.
func (s *Session) takenTableNames(id string) []string {
	names := s.catalog.TableNames()
	for _, otherID := range s.order {
		other := s.sheets[otherID]
		if otherID == id || other.Skip || !other.IsNewTable {
			continue
		}
		if other.SuggestedName != "" {
			names = append(names, other.SuggestedName)
		}
		if v := strings.TrimSpace(other.CreateNewValue); v != "" {
			names = append(names, v)
		}
	}
	return names
}

// takenColumnNames lists the names a new field for the column at index must
// avoid: the target table's fields and the other new fields of the sheet.
func (s *Session) takenColumnNames(sheet *mapping.SheetMapping, index int) []string {
	var names []string
	if !sheet.IsNewTable {
		for _, f := range s.targetFields(sheet.ID, sheet.MappedName) {
			names = append(names, f.Name)
		}
	}
	for _, col := range sheet.Columns {
		if col.OriginalIndex == index || col.Skip {
			continue
		}
		if col.SuggestedName != "" {
			names = append(names, col.SuggestedName)
		}
		if v := strings.TrimSpace(col.CreateNewValue); v != "" && col.MappedName == mapping.CreateNew {
			names = append(names, v)
		}
	}
	return names
}

// nameIssue returns why name cannot be used for a new table or field, or "".
func nameIssue(name string, taken []string) string {
	if err := validator.ValidateIdentifier(name); err != nil {
		return err.Error()
	}
	if err := validator.ValidateUnique(name, taken); err != nil {
		return err.Error()
	}
	return ""
}
