package validator

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/sheetmatch/diff"
	"github.com/ridoystarlord/sheetmatch/normalize"
	"github.com/ridoystarlord/sheetmatch/schema"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Type     string `json:"type"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error", "warning", "info"
}

// ValidationResult contains all validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
	Info     []ValidationError `json:"info"`
}

// ValidateIdentifier checks that name is usable as a new table or column
// name: 1-63 characters of [a-z0-9_], starting with a letter, and not a
// reserved keyword.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > normalize.MaxIdentifierLength {
		return fmt.Errorf("name '%s' is too long (max %d characters)", name, normalize.MaxIdentifierLength)
	}

	if name[0] < 'a' || name[0] > 'z' {
		return fmt.Errorf("name '%s' must start with a lowercase letter", name)
	}

	for _, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '_') {
			return fmt.Errorf("name '%s' contains invalid character '%c'", name, char)
		}
	}

	if normalize.IsReserved(name) {
		return fmt.Errorf("name '%s' is a reserved keyword", name)
	}

	return nil
}

// ValidateUnique checks name against the names already taken.
func ValidateUnique(name string, taken []string) error {
	for _, t := range taken {
		if t == name {
			return fmt.Errorf("name '%s' is already in use", name)
		}
	}
	return nil
}

// ValidateOperations checks staged schema changes against the catalog
// before they are handed to the executor.
func ValidateOperations(ops []diff.Operation, catalog *schema.Catalog) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
		Info:     []ValidationError{},
	}

	createdTables := make(map[string]bool)
	addedColumns := make(map[string]bool)

	for _, op := range ops {
		if err := ValidateIdentifier(op.TableName); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Type:     "table_name",
				Table:    op.TableName,
				Message:  err.Error(),
				Severity: "error",
			})
		}

		switch op.Type {
		case diff.CreateTable:
			validateCreateTable(op, catalog, createdTables, result)
		case diff.AddColumn:
			if op.Column == nil {
				result.Errors = append(result.Errors, ValidationError{
					Type:     "missing_column",
					Table:    op.TableName,
					Message:  "add column operation has no column",
					Severity: "error",
				})
				continue
			}
			key := op.TableName + "." + op.Column.Name
			if addedColumns[key] {
				result.Errors = append(result.Errors, ValidationError{
					Type:     "duplicate_column",
					Table:    op.TableName,
					Column:   op.Column.Name,
					Message:  fmt.Sprintf("Column '%s' is added to '%s' more than once", op.Column.Name, op.TableName),
					Severity: "error",
				})
				continue
			}
			addedColumns[key] = true
			validateColumn(op.TableName, *op.Column, result)
			if table, ok := catalog.Table(op.TableName); !ok {
				result.Errors = append(result.Errors, ValidationError{
					Type:     "table_not_found",
					Table:    op.TableName,
					Column:   op.Column.Name,
					Message:  fmt.Sprintf("Table '%s' does not exist in the catalog", op.TableName),
					Severity: "error",
				})
			} else if _, exists := table.Field(op.Column.Name); exists {
				result.Info = append(result.Info, ValidationError{
					Type:     "column_exists",
					Table:    op.TableName,
					Column:   op.Column.Name,
					Message:  fmt.Sprintf("Column '%s' already exists in table '%s'", op.Column.Name, op.TableName),
					Severity: "info",
				})
			}
		default:
			result.Errors = append(result.Errors, ValidationError{
				Type:     "unsupported_operation",
				Table:    op.TableName,
				Message:  fmt.Sprintf("unsupported operation: %s", op.Type),
				Severity: "error",
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func validateCreateTable(op diff.Operation, catalog *schema.Catalog, created map[string]bool, result *ValidationResult) {
	if created[op.TableName] {
		result.Errors = append(result.Errors, ValidationError{
			Type:     "duplicate_table",
			Table:    op.TableName,
			Message:  fmt.Sprintf("Table '%s' is created more than once", op.TableName),
			Severity: "error",
		})
		return
	}
	created[op.TableName] = true

	if _, exists := catalog.Table(op.TableName); exists {
		result.Errors = append(result.Errors, ValidationError{
			Type:     "table_exists",
			Table:    op.TableName,
			Message:  fmt.Sprintf("Table '%s' already exists in the catalog", op.TableName),
			Severity: "error",
		})
	}

	if len(op.Columns) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Type:     "no_columns",
			Table:    op.TableName,
			Message:  fmt.Sprintf("Table '%s' must have at least one column", op.TableName),
			Severity: "error",
		})
		return
	}

	names := make(map[string]bool)
	for _, col := range op.Columns {
		if names[col.Name] {
			result.Errors = append(result.Errors, ValidationError{
				Type:     "duplicate_column",
				Table:    op.TableName,
				Column:   col.Name,
				Message:  fmt.Sprintf("Duplicate column name '%s' in table '%s'", col.Name, op.TableName),
				Severity: "error",
			})
			continue
		}
		names[col.Name] = true
		validateColumn(op.TableName, col, result)
	}
}

func validateColumn(table string, col schema.FieldInfo, result *ValidationResult) {
	if err := ValidateIdentifier(col.Name); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Type:     "column_name",
			Table:    table,
			Column:   col.Name,
			Message:  err.Error(),
			Severity: "error",
		})
	}
	if col.TypeDefaulted {
		note := col.Note
		if note == "" {
			note = "type defaulted to text"
		}
		result.Warnings = append(result.Warnings, ValidationError{
			Type:     "type_defaulted",
			Table:    table,
			Column:   col.Name,
			Message:  strings.ToUpper(note[:1]) + note[1:],
			Severity: "warning",
		})
	}
}
