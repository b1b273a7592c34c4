package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ridoystarlord/sheetmatch/diff"
	"github.com/ridoystarlord/sheetmatch/schema"
)

// ProposalDir is the default folder proposal files are written to.
const ProposalDir = "proposals"

// GenerateSQL converts a list of Operations into raw SQL statements. The
// statements are idempotent so the executor can re-run them safely.
func GenerateSQL(ops []diff.Operation) ([]string, error) {
	var sqlStatements []string

	for _, op := range ops {
		switch op.Type {
		case diff.CreateTable:
			stmt, err := generateCreateTable(op)
			if err != nil {
				return nil, fmt.Errorf("generate CREATE TABLE: %v", err)
			}
			sqlStatements = append(sqlStatements, stmt)

		case diff.AddColumn:
			if op.Column == nil {
				return nil, fmt.Errorf("generate ADD COLUMN: column is nil")
			}
			stmt := fmt.Sprintf(`ALTER TABLE "%s" ADD COLUMN IF NOT EXISTS "%s" %s;`,
				op.TableName,
				op.Column.Name,
				columnType(*op.Column),
			)
			if op.Column.TypeDefaulted {
				stmt = typeNote(*op.Column) + "\n" + stmt
			}
			sqlStatements = append(sqlStatements, stmt)

		default:
			return nil, fmt.Errorf("unsupported operation: %s", op.Type)
		}
	}

	return sqlStatements, nil
}

// GenerateRollbackSQL converts a list of Operations into rollback SQL statements.
func GenerateRollbackSQL(ops []diff.Operation) ([]string, error) {
	var sqlStatements []string

	// Process operations in reverse order for rollback
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Type {
		case diff.CreateTable:
			stmt := fmt.Sprintf(`DROP TABLE IF EXISTS "%s";`,
				op.TableName,
			)
			sqlStatements = append(sqlStatements, stmt)

		case diff.AddColumn:
			if op.Column == nil {
				return nil, fmt.Errorf("generate ADD COLUMN rollback: column is nil")
			}
			stmt := fmt.Sprintf(`ALTER TABLE "%s" DROP COLUMN IF EXISTS "%s";`,
				op.TableName,
				op.Column.Name,
			)
			sqlStatements = append(sqlStatements, stmt)

		default:
			return nil, fmt.Errorf("unsupported rollback operation: %s", op.Type)
		}
	}

	return sqlStatements, nil
}

func generateCreateTable(op diff.Operation) (string, error) {
	if len(op.Columns) == 0 {
		return "", fmt.Errorf("table %q has no columns", op.TableName)
	}

	var notes []string
	var defs []string
	for _, col := range op.Columns {
		def := fmt.Sprintf(`"%s" %s`, col.Name, columnType(col))
		if col.IsRequired {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if col.TypeDefaulted {
			notes = append(notes, typeNote(col))
		}
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s);`, op.TableName, strings.Join(defs, ", "))
	if len(notes) > 0 {
		stmt = strings.Join(notes, "\n") + "\n" + stmt
	}
	return stmt, nil
}

func columnType(f schema.FieldInfo) string {
	if f.RawType != "" {
		return f.RawType
	}
	if f.Type.Known() {
		return f.Type.PostgresType()
	}
	return schema.Text.PostgresType()
}

func typeNote(f schema.FieldInfo) string {
	note := f.Note
	if note == "" {
		note = "unknown type, defaulting to text"
	}
	return fmt.Sprintf(`-- "%s": %s`, f.Name, note)
}

// WriteProposalFile saves the SQL statements into a timestamped .sql file
// with up/down sections under dir.
func WriteProposalFile(dir string, sqlStatements []string, rollbackStatements []string) (string, error) {
	if dir == "" {
		dir = ProposalDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating proposals folder: %v", err)
	}

	timestamp := time.Now().Format("20060102150405")
	filename := filepath.Join(dir, fmt.Sprintf("%s_schema_proposal.sql", timestamp))

	if err := os.WriteFile(filename, []byte(RenderProposal(timestamp, sqlStatements, rollbackStatements)), 0644); err != nil {
		return "", fmt.Errorf("writing proposal file: %v", err)
	}

	return filename, nil
}

// RenderProposal lays out up and down statements the way proposal files
// store them.
func RenderProposal(label string, sqlStatements []string, rollbackStatements []string) string {
	var b strings.Builder
	b.WriteString("-- Schema proposal: " + label + "\n")
	b.WriteString("-- Description: staged by sheet mapping review\n\n")

	b.WriteString("-- Up\n")
	b.WriteString("-- ==\n")
	for _, stmt := range sqlStatements {
		b.WriteString(stmt + "\n")
	}

	b.WriteString("\n-- Down (Rollback)\n")
	b.WriteString("-- ================\n")
	for _, stmt := range rollbackStatements {
		b.WriteString(stmt + "\n")
	}
	return b.String()
}
