package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/sheetmatch/diff"
	"github.com/ridoystarlord/sheetmatch/schema"
)

func sampleOps() []diff.Operation {
	return []diff.Operation{
		{
			Type:      diff.CreateTable,
			TableName: "new_loan_type",
			Columns: []schema.FieldInfo{
				{Name: "code", Type: schema.Text, RawType: "text", IsRequired: true},
				{Name: "units", Type: schema.Integer},
				{Name: "notes", Type: schema.Text, TypeDefaulted: true, Note: "unknown type, defaulting to text"},
			},
		},
		{
			Type:      diff.AddColumn,
			TableName: "loans",
			Column:    &schema.FieldInfo{Name: "servicer", Type: schema.Text, RawType: "text"},
		},
	}
}

func TestGenerateSQL(t *testing.T) {
	stmts, err := GenerateSQL(sampleOps())
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t,
		"-- \"notes\": unknown type, defaulting to text\n"+
			`CREATE TABLE IF NOT EXISTS "new_loan_type" ("code" text NOT NULL, "units" bigint, "notes" text);`,
		stmts[0])
	assert.Equal(t, `ALTER TABLE "loans" ADD COLUMN IF NOT EXISTS "servicer" text;`, stmts[1])
}

func TestGenerateSQLDefaultedAddColumn(t *testing.T) {
	stmts, err := GenerateSQL([]diff.Operation{{
		Type: diff.AddColumn, TableName: "loans",
		Column: &schema.FieldInfo{Name: "misc", TypeDefaulted: true},
	}})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "-- \"misc\": unknown type, defaulting to text\n"+`ALTER TABLE "loans" ADD COLUMN IF NOT EXISTS "misc" text;`, stmts[0])
}

func TestGenerateSQLErrors(t *testing.T) {
	tests := []struct {
		name string
		op   diff.Operation
	}{
		{"nil column", diff.Operation{Type: diff.AddColumn, TableName: "loans"}},
		{"no columns", diff.Operation{Type: diff.CreateTable, TableName: "empty"}},
		{"unsupported", diff.Operation{Type: "DROP_TABLE", TableName: "loans"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSQL([]diff.Operation{tt.op})
			assert.Error(t, err)
		})
	}
}

func TestGenerateRollbackSQL(t *testing.T) {
	stmts, err := GenerateRollbackSQL(sampleOps())
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "loans" DROP COLUMN IF EXISTS "servicer";`,
		`DROP TABLE IF EXISTS "new_loan_type";`,
	}, stmts)

	_, err = GenerateRollbackSQL([]diff.Operation{{Type: diff.AddColumn, TableName: "loans"}})
	assert.Error(t, err)
}

func TestRenderProposal(t *testing.T) {
	out := RenderProposal("dry run", []string{"UP;"}, []string{"DOWN;"})
	assert.True(t, strings.HasPrefix(out, "-- Schema proposal: dry run\n"))
	assert.Contains(t, out, "-- Up\n-- ==\nUP;\n")
	assert.Contains(t, out, "-- Down (Rollback)\n-- ================\nDOWN;\n")
	assert.Less(t, strings.Index(out, "UP;"), strings.Index(out, "DOWN;"))
}

func TestWriteProposalFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proposals")
	name, err := WriteProposalFile(dir, []string{"UP;"}, []string{"DOWN;"})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(name))
	assert.True(t, strings.HasSuffix(name, "_schema_proposal.sql"))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UP;")
	assert.Contains(t, string(data), "DOWN;")
}
