package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/sheetmatch/config"
	"github.com/ridoystarlord/sheetmatch/diff"
	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/schema"
	"github.com/ridoystarlord/sheetmatch/validator"
)

func testCatalog() *schema.Catalog {
	return schema.NewCatalog([]schema.TableSchema{
		{Name: "loans", Columns: []schema.FieldInfo{
			{Name: "loan_id", Type: schema.Text},
			{Name: "borrower_fico", Type: schema.Integer},
			{Name: "escrow_required", Type: schema.Boolean},
			{Name: "original_balance", Type: schema.Numeric},
		}},
		{Name: "payments", Columns: []schema.FieldInfo{
			{Name: "payment_id", Type: schema.Text},
			{Name: "amount", Type: schema.Numeric},
		}},
	})
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sheet-%d", n)
	}
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := New(testCatalog(), append([]Option{WithIDFunc(sequentialIDs())}, opts...)...)
	require.NoError(t, err)
	return s
}

func withConfig(fn func(*config.Config)) Option {
	cfg := config.Default()
	fn(cfg)
	return WithConfig(cfg)
}

func loansSheet() mapping.RawSheet {
	return mapping.RawSheet{
		SheetName: "Loans",
		Headers:   []string{"Loan ID", "Borrower FICO"},
		SampleRows: [][]any{
			{"L001", "764"},
			{"L002", "806"},
			{"L003", "712"},
		},
	}
}

func newLoanTypeSheet() mapping.RawSheet {
	return mapping.RawSheet{
		SheetName: "NewLoanType",
		Headers:   []string{"Loan Type Code", "Description"},
		SampleRows: [][]any{
			{"FHA", "Federal"},
			{"VA", "Veterans"},
		},
	}
}

func escrowSheet() mapping.RawSheet {
	return mapping.RawSheet{
		SheetName: "Loans",
		Headers:   []string{"Loan ID", "Escrowed Required"},
		SampleRows: [][]any{
			{"L001", "TRUE"},
			{"L002", "FALSE"},
		},
	}
}

func servicerSheet() mapping.RawSheet {
	return mapping.RawSheet{
		SheetName: "Loans",
		Headers:   []string{"Loan ID", "Servicer Name"},
		SampleRows: [][]any{
			{"L001", "Acme Servicing"},
			{"L002", "Beta Loans"},
		},
	}
}

func load(t *testing.T, s *Session, raw ...mapping.RawSheet) []string {
	t.Helper()
	ids, err := s.Load(raw)
	require.NoError(t, err)
	require.Len(t, ids, len(raw))
	return ids
}

func matched(t *testing.T, s *Session, id string) mapping.SheetMapping {
	t.Helper()
	require.NoError(t, s.MatchSheet(context.Background(), id))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	return sheet
}

func ptr[T any](v T) *T { return &v }

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, schema.ErrCatalogUnavailable)

	_, err = New(testCatalog(), withConfig(func(c *config.Config) { c.Thresholds.Majority = 2 }))
	assert.Error(t, err)

	s, err := New(schema.NewCatalog(nil))
	require.NoError(t, err)
	_, err = s.Load(nil)
	assert.ErrorIs(t, err, ErrNoSheets)
}

func TestLoad(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, loansSheet(), mapping.RawSheet{SheetName: "Empty"})
	assert.Equal(t, []string{"sheet-1", "sheet-2"}, ids)

	first, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusPending, first.Status)
	assert.True(t, first.NeedsReview)
	require.Len(t, first.Columns, 2)
	assert.Equal(t, schema.Text, first.Columns[0].InferredDataType)
	assert.Equal(t, schema.Integer, first.Columns[1].InferredDataType)

	empty, err := s.Sheet(ids[1])
	require.NoError(t, err)
	assert.True(t, empty.Skip)
	assert.NotEmpty(t, empty.Issue)
	assert.Equal(t, mapping.StatusPending, empty.Status)
	assert.False(t, empty.NeedsReview)
}

func TestMatchSheetExactColumns(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]

	sheet := matched(t, s, id)
	assert.Equal(t, "loans", sheet.MappedName)
	assert.Equal(t, 100, sheet.TableConfidence)
	assert.False(t, sheet.TableNeedsReview)
	assert.False(t, sheet.IsNewTable)
	assert.Equal(t, schema.Existing, sheet.Origin)

	want := []string{"loan_id", "borrower_fico"}
	for i, col := range sheet.Columns {
		assert.Equal(t, want[i], col.MappedName)
		assert.Equal(t, 100, col.Confidence)
		assert.False(t, col.NeedsReview)
		assert.Equal(t, mapping.ColumnApproved, col.State)
	}
	assert.Equal(t, schema.Integer, sheet.Columns[1].DataType)

	assert.False(t, sheet.NeedsReview)
	assert.Equal(t, mapping.StatusReady, sheet.Status)
	assert.False(t, sheet.Approved)
	assert.Empty(t, s.Proposals())
}

func TestMatchSheetAutoApprovesReadySheets(t *testing.T) {
	s := newTestSession(t, withConfig(func(c *config.Config) { c.AutoApproveReady = true }))
	id := load(t, s, loansSheet())[0]

	sheet := matched(t, s, id)
	assert.True(t, sheet.Approved)
	assert.Equal(t, mapping.StatusApproved, sheet.Status)
}

func TestMatchSheetSuggestsCloseNames(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, escrowSheet())[0]

	sheet := matched(t, s, id)
	col := sheet.Columns[1]
	assert.Equal(t, "escrow_required", col.MappedName)
	assert.Equal(t, schema.Boolean, col.InferredDataType)
	assert.Equal(t, 89, col.Confidence)
	assert.True(t, col.NeedsReview)
	assert.Equal(t, mapping.ColumnSuggested, col.State)
	assert.Equal(t, mapping.StatusMapping, sheet.Status)

	require.NoError(t, s.ApproveColumn(id, 1))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.False(t, sheet.Columns[1].NeedsReview)
	assert.True(t, sheet.Columns[1].UserOverride)
	assert.Equal(t, mapping.StatusReady, sheet.Status)
}

func TestMatchSheetProposesNewTable(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, newLoanTypeSheet())[0]

	sheet := matched(t, s, id)
	assert.Equal(t, mapping.CreateNew, sheet.MappedName)
	assert.True(t, sheet.IsNewTable)
	assert.Equal(t, "new_loan_type", sheet.SuggestedName)
	assert.Empty(t, sheet.CreateNewValue)
	assert.True(t, sheet.TableNeedsReview)
	assert.True(t, sheet.NeedsReview)
	assert.Equal(t, mapping.StatusMapping, sheet.Status)

	assert.Equal(t, "loan_type_code", sheet.Columns[0].SuggestedName)
	assert.Equal(t, "description", sheet.Columns[1].SuggestedName)
	for _, col := range sheet.Columns {
		assert.Equal(t, mapping.CreateNew, col.MappedName)
		assert.True(t, col.NeedsReview)
		assert.Equal(t, mapping.ColumnCreating, col.State)
	}
	assert.Empty(t, s.Proposals())
}

func TestConfirmNewTable(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, newLoanTypeSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ConfirmNewTable(id, ""))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "new_loan_type", sheet.CreateNewValue)
	assert.Equal(t, schema.ProposedNew, sheet.Origin)
	assert.True(t, sheet.WasCreatedNew)
	assert.False(t, sheet.TableNeedsReview)
	assert.False(t, sheet.NeedsReview)
	assert.Equal(t, mapping.StatusReady, sheet.Status)
	for _, col := range sheet.Columns {
		assert.Equal(t, mapping.ColumnCreated, col.State)
		assert.False(t, col.NeedsReview)
	}

	ops := s.Proposals()
	require.Len(t, ops, 1)
	assert.Equal(t, diff.CreateTable, ops[0].Type)
	assert.Equal(t, "new_loan_type", ops[0].TableName)
	require.Len(t, ops[0].Columns, 2)
	assert.Equal(t, "loan_type_code", ops[0].Columns[0].Name)
	assert.Equal(t, "description", ops[0].Columns[1].Name)
	assert.Equal(t, "text", ops[0].Columns[0].RawType)
}

func TestConfirmNewTableWithUserName(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, newLoanTypeSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ConfirmNewTable(id, "loan_types"))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "loan_types", sheet.CreateNewValue)
	assert.Equal(t, schema.UserCreated, sheet.Origin)
	assert.Equal(t, mapping.StatusReady, sheet.Status)
}

func TestConfirmNewTableRejectsBadNames(t *testing.T) {
	for _, name := range []string{"select", "Loan Types", "loans", "9lives"} {
		t.Run(name, func(t *testing.T) {
			s := newTestSession(t)
			id := load(t, s, newLoanTypeSheet())[0]
			matched(t, s, id)

			require.NoError(t, s.ConfirmNewTable(id, name))
			sheet, err := s.Sheet(id)
			require.NoError(t, err)
			assert.Equal(t, name, sheet.CreateNewValue)
			assert.NotEmpty(t, sheet.Issue)
			assert.True(t, sheet.TableNeedsReview)
			assert.True(t, sheet.NeedsReview)
			assert.Equal(t, mapping.StatusMapping, sheet.Status)
			assert.Empty(t, s.Proposals())
		})
	}
}

func TestAutoCreateAvoidsReservedNames(t *testing.T) {
	s := newTestSession(t, withConfig(func(c *config.Config) { c.AutoCreate = true }))
	id := load(t, s, mapping.RawSheet{
		SheetName:  "Order",
		Headers:    []string{"Index", "Group", "User"},
		SampleRows: [][]any{{"1", "A", "bob"}, {"2", "B", "amy"}},
	})[0]
	require.NoError(t, s.MatchAll(context.Background(), nil))

	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "order_1", sheet.CreateNewValue)
	assert.Empty(t, sheet.Issue)
	assert.False(t, sheet.TableNeedsReview)
	want := []string{"index_1", "group_1", "user_1"}
	for i, col := range sheet.Columns {
		assert.Equal(t, want[i], col.CreateNewValue)
		assert.Empty(t, col.Issue)
		assert.Equal(t, mapping.ColumnCreated, col.State)
	}
	assert.Equal(t, mapping.StatusReady, sheet.Status)
	require.NoError(t, s.ApproveSheet(id))

	ops := s.Proposals()
	require.Len(t, ops, 1)
	assert.Equal(t, "order_1", ops[0].TableName)
	assert.True(t, validator.ValidateOperations(ops, s.Catalog()).Valid)
}

func TestReservedUserColumnNameIsAnIssue(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, servicerSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{CreateNewValue: ptr("order")}))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "order", sheet.Columns[1].CreateNewValue)
	assert.Contains(t, sheet.Columns[1].Issue, "reserved keyword")
	assert.Equal(t, mapping.StatusMapping, sheet.Status)
}

func TestFailedColumnEditLeavesSheetUntouched(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	before := matched(t, s, id)
	require.Equal(t, mapping.StatusReady, before.Status)

	err := s.ApplyColumnEdit(id, 0, ColumnEdit{MappedName: ptr(mapping.CreateNew), DataType: ptr(schema.DataType("blob"))})
	assert.Error(t, err)
	after, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	err = s.ApplyColumnEdit(id, 0, ColumnEdit{MappedName: ptr("nope"), DataType: ptr(schema.Integer), Skip: ptr(true)})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	after, err = s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTablePrefixIsNotStrippedFromColumns(t *testing.T) {
	s := newTestSession(t, withConfig(func(c *config.Config) { c.TablePrefix = "ln_" }))
	id := load(t, s, mapping.RawSheet{
		SheetName:  "ln_payments",
		Headers:    []string{"ln_amount"},
		SampleRows: [][]any{{"10.50"}, {"20.00"}},
	})[0]

	sheet := matched(t, s, id)
	assert.Equal(t, "payments", sheet.MappedName)
	assert.Equal(t, 100, sheet.TableConfidence)
	col := sheet.Columns[0]
	assert.Equal(t, "amount", col.MappedName)
	assert.Equal(t, 82, col.Confidence)
	assert.True(t, col.NeedsReview)
}

func TestAutoCreate(t *testing.T) {
	s := newTestSession(t, withConfig(func(c *config.Config) { c.AutoCreate = true }))
	id := load(t, s, newLoanTypeSheet())[0]

	sheet := matched(t, s, id)
	assert.Equal(t, "new_loan_type", sheet.CreateNewValue)
	assert.False(t, sheet.TableNeedsReview)
	for _, col := range sheet.Columns {
		assert.Equal(t, col.SuggestedName, col.CreateNewValue)
		assert.False(t, col.NeedsReview)
	}
	assert.Equal(t, mapping.StatusReady, sheet.Status)
	assert.Len(t, s.Proposals(), 1)
}

func TestApproveSheet(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, newLoanTypeSheet(), loansSheet())

	assert.ErrorIs(t, s.ApproveSheet(ids[0]), ErrNotMatched)

	matched(t, s, ids[0])
	require.NoError(t, s.ApproveSheet(ids[0]))
	sheet, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.True(t, sheet.Approved)
	assert.Equal(t, mapping.StatusApproved, sheet.Status)
	assert.Equal(t, "new_loan_type", sheet.CreateNewValue)
	assert.Equal(t, "loan_type_code", sheet.Columns[0].CreateNewValue)

	// approved sheets are not matched again
	require.NoError(t, s.MatchSheet(context.Background(), ids[0]))
	again, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, sheet, again)
}

func TestApproveSheetUnresolved(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{MappedName: ptr("")}))
	assert.ErrorIs(t, s.ApproveSheet(id), ErrUnresolved)

	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.False(t, sheet.Approved)
	assert.Equal(t, mapping.ColumnUnmapped, sheet.Columns[1].State)
	assert.Equal(t, mapping.StatusMapping, sheet.Status)
}

func TestUserOverrideSurvivesRematch(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{MappedName: ptr("original_balance")}))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	col := sheet.Columns[1]
	assert.Equal(t, "original_balance", col.MappedName)
	assert.True(t, col.UserOverride)
	assert.False(t, col.NeedsReview)
	assert.Equal(t, schema.Numeric, col.DataType)

	sheet = matched(t, s, id)
	assert.Equal(t, "original_balance", sheet.Columns[1].MappedName)
	assert.Equal(t, "loan_id", sheet.Columns[0].MappedName)

	assert.ErrorIs(t, s.ApplyColumnEdit(id, 1, ColumnEdit{MappedName: ptr("nope")}), ErrUnknownTarget)
}

func TestApplyColumnEdit(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, servicerSheet())[0]
	sheet := matched(t, s, id)
	require.Equal(t, mapping.ColumnCreating, sheet.Columns[1].State)
	assert.Equal(t, "servicer_name", sheet.Columns[1].SuggestedName)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{CreateNewValue: ptr("Bad Name")}))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.NotEmpty(t, sheet.Columns[1].Issue)
	assert.True(t, sheet.Columns[1].NeedsReview)
	assert.Empty(t, s.Proposals())

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{CreateNewValue: ptr("servicer")}))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	col := sheet.Columns[1]
	assert.Empty(t, col.Issue)
	assert.Equal(t, schema.UserCreated, col.Origin)
	assert.Equal(t, mapping.ColumnCreated, col.State)
	assert.Equal(t, mapping.StatusReady, sheet.Status)

	ops := s.Proposals()
	require.Len(t, ops, 1)
	assert.Equal(t, diff.AddColumn, ops[0].Type)
	assert.Equal(t, "loans", ops[0].TableName)
	require.NotNil(t, ops[0].Column)
	assert.Equal(t, "servicer", ops[0].Column.Name)

	assert.Error(t, s.ApplyColumnEdit(id, 1, ColumnEdit{DataType: ptr(schema.DataType("money"))}))
	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{DataType: ptr(schema.Date)}))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, schema.Date, sheet.Columns[1].DataType)
	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{DataType: ptr(schema.Unknown)}))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, schema.Text, sheet.Columns[1].DataType)

	assert.ErrorIs(t, s.ApplyColumnEdit(id, 99, ColumnEdit{}), ErrColumnNotFound)
	assert.ErrorIs(t, s.ApplyColumnEdit("nope", 0, ColumnEdit{}), ErrSheetNotFound)
}

func TestSkipColumn(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, servicerSheet())[0]
	matched(t, s, id)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{Skip: ptr(true)}))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, mapping.ColumnSkipped, sheet.Columns[1].State)
	assert.Equal(t, mapping.StatusReady, sheet.Status)

	require.NoError(t, s.ApplyColumnEdit(id, 1, ColumnEdit{Skip: ptr(false)}))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, mapping.ColumnCreating, sheet.Columns[1].State)
	assert.Equal(t, mapping.StatusMapping, sheet.Status)
}

func TestAcceptCandidate(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, escrowSheet())[0]
	matched(t, s, id)

	assert.ErrorIs(t, s.AcceptCandidate(id, 1, "nope"), ErrUnknownTarget)

	require.NoError(t, s.AcceptCandidate(id, 1, "escrow_required"))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "escrow_required", sheet.Columns[1].MappedName)
	assert.False(t, sheet.Columns[1].NeedsReview)
	assert.Equal(t, mapping.StatusReady, sheet.Status)

	require.NoError(t, s.AcceptCandidate(id, 1, mapping.CreateNew))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "escrowed_required", sheet.Columns[1].CreateNewValue)

	ops := s.Proposals()
	require.Len(t, ops, 1)
	require.NotNil(t, ops[0].Column)
	assert.Equal(t, "escrowed_required", ops[0].Column.Name)
	assert.Equal(t, schema.Boolean, ops[0].Column.Type)
}

func TestSetSheetTarget(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	matched(t, s, id)

	assert.ErrorIs(t, s.SetSheetTarget(id, "nope"), ErrUnknownTarget)

	require.NoError(t, s.SetSheetTarget(id, "payments"))
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "payments", sheet.MappedName)
	assert.False(t, sheet.TableNeedsReview)
	for _, col := range sheet.Columns {
		assert.NotEqual(t, "loan_id", col.MappedName)
	}

	// pinned targets survive a rematch
	sheet = matched(t, s, id)
	assert.Equal(t, "payments", sheet.MappedName)

	require.NoError(t, s.SetSheetTarget(id, mapping.CreateNew))
	sheet, err = s.Sheet(id)
	require.NoError(t, err)
	assert.True(t, sheet.IsNewTable)
	assert.Equal(t, "loans_1", sheet.SuggestedName)
}

func TestSkipSheet(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, loansSheet(), mapping.RawSheet{SheetName: "Empty"})
	matched(t, s, ids[0])

	require.NoError(t, s.SkipSheet(ids[0], true))
	sheet, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.True(t, sheet.Skip)
	assert.False(t, sheet.NeedsReview)
	assert.Equal(t, mapping.StatusPending, sheet.Status)

	require.NoError(t, s.SkipSheet(ids[0], false))
	sheet, err = s.Sheet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusReady, sheet.Status)

	// a sheet without headers stays skipped
	require.NoError(t, s.SkipSheet(ids[1], false))
	empty, err := s.Sheet(ids[1])
	require.NoError(t, err)
	assert.True(t, empty.Skip)
}

func TestSkipDuringPassDiscardsIt(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, loansSheet(), escrowSheet())
	s.beforeCommit = func(id string) {
		require.NoError(t, s.SkipSheet(id, true))
	}

	err := s.MatchSheet(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrPassDiscarded)

	sheet, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.True(t, sheet.Skip)
	assert.Empty(t, sheet.MappedName)
	for _, col := range sheet.Columns {
		assert.Empty(t, col.MappedName)
	}

	other, err := s.Sheet(ids[1])
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusPending, other.Status)

	s.beforeCommit = nil
	require.NoError(t, s.SkipSheet(ids[0], false))
	sheet = matched(t, s, ids[0])
	assert.Equal(t, "loans", sheet.MappedName)
}

func TestRetargetDuringPassWins(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	s.beforeCommit = func(id string) {
		require.NoError(t, s.SetSheetTarget(id, "payments"))
	}

	assert.ErrorIs(t, s.MatchSheet(context.Background(), id), ErrPassDiscarded)
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, "payments", sheet.MappedName)
}

func TestConcurrentPassIsRejected(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	var inner error
	s.beforeCommit = func(id string) {
		inner = s.MatchSheet(context.Background(), id)
	}

	require.NoError(t, s.MatchSheet(context.Background(), id))
	assert.ErrorIs(t, inner, ErrMatchInFlight)
}

func TestMatchSheetCancelled(t *testing.T) {
	s := newTestSession(t)
	id := load(t, s, loansSheet())[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.MatchSheet(ctx, id), context.Canceled)
	sheet, err := s.Sheet(id)
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusPending, sheet.Status)

	_, err = s.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.MatchSheet(context.Background(), "nope"), ErrSheetNotFound)
}

func uploadSheets() []mapping.RawSheet {
	return []mapping.RawSheet{loansSheet(), newLoanTypeSheet(), {SheetName: "Empty"}, escrowSheet()}
}

func TestStepMatchesLikeMatchAll(t *testing.T) {
	all := newTestSession(t)
	load(t, all, uploadSheets()...)
	var progress []int
	require.NoError(t, all.MatchAll(context.Background(), func(p int) {
		progress = append(progress, p)
	}))
	require.NotEmpty(t, progress)
	assert.IsIncreasing(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])

	stepped := newTestSession(t)
	load(t, stepped, uploadSheets()...)
	var steps []bool
	for {
		done, err := stepped.Step(context.Background())
		require.NoError(t, err)
		steps = append(steps, done)
		if done {
			break
		}
	}
	assert.Equal(t, []bool{false, false, true}, steps)
	assert.Equal(t, all.Sheets(), stepped.Sheets())

	done, err := stepped.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, uploadSheets()...)
	require.NoError(t, s.MatchAll(context.Background(), nil))

	for _, id := range ids {
		before, err := s.Sheet(id)
		require.NoError(t, err)
		status, err := s.RecomputeSheetStatus(id)
		require.NoError(t, err)
		assert.Equal(t, before.Status, status)
		after, err := s.Sheet(id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestEmptyCatalogProposesEverything(t *testing.T) {
	s, err := New(schema.NewCatalog(nil), WithIDFunc(sequentialIDs()))
	require.NoError(t, err)
	id := load(t, s, loansSheet())[0]

	sheet := matched(t, s, id)
	assert.True(t, sheet.IsNewTable)
	assert.Equal(t, "loans", sheet.SuggestedName)
	assert.Equal(t, "loan_id", sheet.Columns[0].SuggestedName)
}

func TestStagedFieldsAreSharedAcrossSheets(t *testing.T) {
	s := newTestSession(t, withConfig(func(c *config.Config) { c.AutoCreate = true }))
	ids := load(t, s, servicerSheet(), servicerSheet())
	require.NoError(t, s.MatchAll(context.Background(), nil))

	first, err := s.Sheet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, mapping.CreateNew, first.Columns[1].MappedName)
	assert.Equal(t, "servicer_name", first.Columns[1].CreateNewValue)

	second, err := s.Sheet(ids[1])
	require.NoError(t, err)
	col := second.Columns[1]
	assert.Equal(t, "servicer_name", col.MappedName)
	assert.Equal(t, 100, col.Confidence)
	assert.Equal(t, schema.ProposedNew, col.Origin)
	assert.False(t, col.NeedsReview)

	ops := s.Proposals()
	require.Len(t, ops, 1)
	assert.Equal(t, diff.AddColumn, ops[0].Type)
	assert.Equal(t, "servicer_name", ops[0].Column.Name)
}

func TestRematchSeesFieldsStagedLater(t *testing.T) {
	s := newTestSession(t)
	ids := load(t, s, servicerSheet(), servicerSheet())
	matched(t, s, ids[1])
	matched(t, s, ids[0])

	require.NoError(t, s.ApplyColumnEdit(ids[0], 1, ColumnEdit{CreateNewValue: ptr("servicer_name")}))

	second := matched(t, s, ids[1])
	assert.Equal(t, "servicer_name", second.Columns[1].MappedName)
	assert.Equal(t, schema.ProposedNew, second.Columns[1].Origin)
}
