package session

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/sheetmatch/diff"
	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/policy"
	"github.com/ridoystarlord/sheetmatch/schema"
)

// ColumnEdit is a user edit of one column. Nil fields are left unchanged.
type ColumnEdit struct {
	MappedName     *string
	CreateNewValue *string
	DataType       *schema.DataType
	Skip           *bool
}

// SetSheetTarget maps a sheet to an existing table, or to mapping.CreateNew.
// The columns are re-matched against the new target and earlier column
// overrides are dropped.
func (s *Session) SetSheetTarget(id, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return err
	}

	table = strings.TrimSpace(table)
	var existing schema.TableSchema
	if table != mapping.CreateNew {
		var ok bool
		if existing, ok = s.catalog.Table(table); !ok {
			return fmt.Errorf("%w: table %q", ErrUnknownTarget, table)
		}
	}

	s.cancelPass(id)
	s.releaseTable(sheet)
	s.pinned[id] = true
	sheet.Approved = false
	sheet.Issue = ""

	if table == mapping.CreateNew {
		s.stageNewTable(sheet)
	} else {
		sheet.MappedName = existing.Name
		sheet.IsNewTable = false
		sheet.WasCreatedNew = false
		sheet.Origin = schema.Existing
		sheet.SuggestedName = ""
		sheet.CreateNewValue = ""
		sheet.TableNeedsReview = false
		sheet.TableConfidence = s.tableConfidence(sheet, existing)
	}
	s.retarget(sheet)
	s.log.Debug().Str("sheet", id).Str("table", table).Msg("sheet target set")
	return nil
}

// ConfirmNewTable names the new table a sheet will be imported into. An
// empty name accepts the suggested one. An invalid or taken name is kept
// with an issue and the sheet stays in review.
func (s *Session) ConfirmNewTable(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return err
	}

	wasNew := sheet.IsNewTable
	if !wasNew {
		s.cancelPass(id)
		s.releaseTable(sheet)
		s.stageNewTable(sheet)
	}
	s.pinned[id] = true
	sheet.Approved = false

	name = strings.TrimSpace(name)
	origin := schema.UserCreated
	if name == "" || name == sheet.SuggestedName {
		name = sheet.SuggestedName
		origin = schema.ProposedNew
	}
	s.completeNewTable(sheet, name, origin)

	if !wasNew || !s.matched[id] {
		s.retarget(sheet)
	} else if newTableConfirmed(sheet) {
		for i := range sheet.Columns {
			col := &sheet.Columns[i]
			if !col.Skip && col.Incomplete() && col.SuggestedName != "" {
				s.completeNewColumn(sheet, col, col.SuggestedName, schema.ProposedNew)
			}
		}
	}
	s.recompute(sheet)
	s.log.Debug().Str("sheet", id).Str("table", name).Str("issue", sheet.Issue).Msg("new table confirmed")
	return nil
}

// SkipSheet excludes or re-includes a sheet. Skipping discards any matching
// pass in flight for it.
func (s *Session) SkipSheet(id string, skip bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return err
	}
	s.cancelPass(id)
	if !skip && len(sheet.Columns) == 0 {
		return nil
	}
	if skip {
		s.cache.InvalidateSheet(id)
	}
	sheet.Skip = skip
	s.releaseTable(sheet)
	s.recompute(sheet)
	s.log.Debug().Str("sheet", id).Bool("skip", skip).Msg("sheet skip changed")
	return nil
}

// ApproveSheet confirms every mapping of a sheet, accepting pending
// suggestions for new names. It returns ErrUnresolved if some column still
// cannot be approved; the sheet then stays in review.
func (s *Session) ApproveSheet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sheet.Skip {
		return nil
	}
	if !s.matched[id] {
		return fmt.Errorf("%w: %s", ErrNotMatched, id)
	}

	s.pinned[id] = true
	if sheet.IsNewTable && strings.TrimSpace(sheet.CreateNewValue) == "" {
		s.completeNewTable(sheet, sheet.SuggestedName, schema.ProposedNew)
	}
	if sheet.Issue == "" && sheet.MappedName != "" {
		sheet.TableNeedsReview = false
	}
	for i := range sheet.Columns {
		if !sheet.Columns[i].Skip {
			s.approveColumn(sheet, &sheet.Columns[i])
		}
	}

	s.recompute(sheet)
	if sheet.NeedsReview {
		return fmt.Errorf("%w: %s", ErrUnresolved, id)
	}
	sheet.Approved = true
	s.recompute(sheet)
	s.log.Debug().Str("sheet", id).Msg("sheet approved")
	return nil
}

// AcceptCandidate maps a column to one of its ranked candidates, or to
// mapping.CreateNew with the suggested name.
func (s *Session) AcceptCandidate(id string, index int, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, col, err := s.lookupColumn(id, index)
	if err != nil {
		return err
	}

	if target == mapping.CreateNew {
		if col.SuggestedName == "" {
			col.SuggestedName = s.builder.ColumnName(col.OriginalName, s.takenColumnNames(sheet, index))
		}
		s.completeNewColumn(sheet, col, col.SuggestedName, schema.ProposedNew)
	} else {
		var picked *mapping.MatchCandidate
		for i := range col.Candidates {
			if col.Candidates[i].TargetName == target {
				picked = &col.Candidates[i]
				break
			}
		}
		if picked == nil {
			return fmt.Errorf("%w: %q is not a candidate for column %d", ErrUnknownTarget, target, index)
		}
		s.mapToField(col, *picked)
	}
	col.UserOverride = true
	s.releaseTable(sheet)
	s.recompute(sheet)
	return nil
}

// ApplyColumnEdit applies a user edit to one column. User input always wins
// over the policy; an invalid new name is kept with an issue. An edit that
// fails leaves the column untouched.
func (s *Session) ApplyColumnEdit(id string, index int, edit ColumnEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, col, err := s.lookupColumn(id, index)
	if err != nil {
		return err
	}

	var dataType schema.DataType
	if edit.DataType != nil {
		if dataType, err = resolveDataType(*edit.DataType, col.InferredDataType); err != nil {
			return err
		}
	}
	var field *schema.FieldInfo
	if edit.MappedName != nil {
		name := strings.TrimSpace(*edit.MappedName)
		if name != "" && name != mapping.CreateNew {
			f, ok := s.findField(sheet, name)
			if !ok {
				return fmt.Errorf("%w: field %q", ErrUnknownTarget, name)
			}
			field = &f
		}
		s.editMappedName(sheet, col, name, field)
	}
	if edit.CreateNewValue != nil {
		col.UserOverride = true
		name := strings.TrimSpace(*edit.CreateNewValue)
		if name == "" {
			col.CreateNewValue = ""
			col.Issue = ""
		} else {
			origin := schema.UserCreated
			if name == col.SuggestedName {
				origin = schema.ProposedNew
			}
			s.completeNewColumn(sheet, col, name, origin)
		}
	}
	if edit.DataType != nil {
		col.DataType = dataType
	}
	if edit.Skip != nil {
		s.editSkip(sheet, col, *edit.Skip)
	}

	s.releaseTable(sheet)
	s.recompute(sheet)
	return nil
}

// ApproveColumn confirms a column's current mapping. A create-new column
// without a name takes its suggested name.
func (s *Session) ApproveColumn(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, col, err := s.lookupColumn(id, index)
	if err != nil {
		return err
	}
	if col.Skip {
		return nil
	}
	if col.MappedName == "" {
		return fmt.Errorf("%w: column %d has no mapping", ErrNotMatched, index)
	}
	s.approveColumn(sheet, col)
	s.releaseTable(sheet)
	s.recompute(sheet)
	return nil
}

// RecomputeSheetStatus re-derives the review state of a sheet.
func (s *Session) RecomputeSheetStatus(id string) (mapping.SheetStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	s.recompute(sheet)
	return sheet.Status, nil
}

func (s *Session) Sheet(id string) (mapping.SheetMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.lookup(id)
	if err != nil {
		return mapping.SheetMapping{}, err
	}
	return sheet.Clone(), nil
}

// Sheets returns copies of every sheet in load order.
func (s *Session) Sheets() []mapping.SheetMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mapping.SheetMapping, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sheets[id].Clone())
	}
	return out
}

// Proposals returns the staged schema changes of the reviewed sheets.
func (s *Session) Proposals() []diff.Operation {
	return diff.DiffMappings(s.Sheets(), s.catalog, s.builder)
}

func (s *Session) Catalog() *schema.Catalog {
	return s.catalog
}

func (s *Session) applyTableDecision(sheet *mapping.SheetMapping, tables []mapping.MatchCandidate, d policy.Decision) {
	sheet.Candidates = tables
	sheet.Issue = ""
	if d.Action == policy.Create || d.Candidate == nil {
		s.stageNewTable(sheet)
		if s.cfg.AutoCreate {
			s.completeNewTable(sheet, sheet.SuggestedName, schema.ProposedNew)
		}
		return
	}
	c := d.Candidate
	sheet.MappedName = c.TargetName
	sheet.TableConfidence = c.Confidence
	sheet.TableNeedsReview = d.NeedsReview
	sheet.IsNewTable = false
	sheet.WasCreatedNew = false
	sheet.Origin = c.Origin
	sheet.SuggestedName = ""
	sheet.CreateNewValue = ""
}

// stageNewTable points a sheet at a new table that still needs a name.
func (s *Session) stageNewTable(sheet *mapping.SheetMapping) {
	sheet.MappedName = mapping.CreateNew
	sheet.IsNewTable = true
	sheet.WasCreatedNew = false
	sheet.Origin = schema.ProposedNew
	sheet.CreateNewValue = ""
	sheet.TableConfidence = 0
	sheet.TableNeedsReview = true
	sheet.SuggestedName = s.builder.TableName(sheet.OriginalName, s.takenTableNames(sheet.ID))
}

func (s *Session) completeNewTable(sheet *mapping.SheetMapping, name string, origin schema.Origin) {
	sheet.CreateNewValue = name
	sheet.Origin = origin
	if issue := nameIssue(name, s.takenTableNames(sheet.ID)); issue != "" {
		sheet.Issue = issue
		sheet.TableNeedsReview = true
		sheet.WasCreatedNew = false
		return
	}
	sheet.Issue = ""
	sheet.TableNeedsReview = false
	sheet.WasCreatedNew = true
	sheet.TableConfidence = 100
}

func newTableConfirmed(sheet *mapping.SheetMapping) bool {
	return sheet.IsNewTable && strings.TrimSpace(sheet.CreateNewValue) != "" && !sheet.TableNeedsReview
}

// retarget re-matches every column against the sheet's current target.
func (s *Session) retarget(sheet *mapping.SheetMapping) {
	for i := range sheet.Columns {
		sheet.Columns[i].UserOverride = false
	}
	target := ""
	if !sheet.IsNewTable {
		target = sheet.MappedName
	}
	ranked := s.rankColumnsLocked(sheet.ID, target, sheet.Columns, s.targetFields(sheet.ID, target))
	s.applyColumns(sheet, ranked)
	s.matched[sheet.ID] = true
	s.recompute(sheet)
}

// applyColumns runs the column policy on every column the user has not
// overridden.
func (s *Session) applyColumns(sheet *mapping.SheetMapping, ranked map[int][]mapping.MatchCandidate) {
	for i := range sheet.Columns {
		col := &sheet.Columns[i]
		if col.UserOverride {
			continue
		}
		col.Candidates = ranked[col.OriginalIndex]
		col.SuggestedName = ""
		if col.MappedName == mapping.CreateNew {
			col.CreateNewValue = ""
		}
	}
	for i := range sheet.Columns {
		col := &sheet.Columns[i]
		if col.Skip || col.UserOverride {
			continue
		}
		s.decideColumn(sheet, col)
	}
}

func (s *Session) decideColumn(sheet *mapping.SheetMapping, col *mapping.ColumnMapping) {
	d := s.policy.DecideColumn(col.Candidates)
	col.Issue = ""
	if d.Action != policy.Create && d.Candidate != nil {
		s.mapToField(col, *d.Candidate)
		col.NeedsReview = d.NeedsReview
		return
	}
	col.MappedName = mapping.CreateNew
	col.Origin = schema.ProposedNew
	col.Confidence = 0
	col.CreateNewValue = ""
	col.NeedsReview = true
	col.SuggestedName = s.builder.ColumnName(col.OriginalName, s.takenColumnNames(sheet, col.OriginalIndex))
	if s.cfg.AutoCreate || newTableConfirmed(sheet) {
		s.completeNewColumn(sheet, col, col.SuggestedName, schema.ProposedNew)
	}
}

func (s *Session) mapToField(col *mapping.ColumnMapping, c mapping.MatchCandidate) {
	col.MappedName = c.TargetName
	col.Confidence = c.Confidence
	col.Origin = c.Origin
	col.CreateNewValue = ""
	col.SuggestedName = ""
	col.Issue = ""
	col.NeedsReview = false
	if c.TargetType.Known() {
		col.DataType = c.TargetType
	}
}

// completeNewColumn names a new field. A valid unique name approves it.
func (s *Session) completeNewColumn(sheet *mapping.SheetMapping, col *mapping.ColumnMapping, name string, origin schema.Origin) {
	col.MappedName = mapping.CreateNew
	col.CreateNewValue = name
	col.Origin = origin
	if issue := nameIssue(name, s.takenColumnNames(sheet, col.OriginalIndex)); issue != "" {
		col.Issue = issue
		col.NeedsReview = true
		return
	}
	col.Issue = ""
	col.NeedsReview = false
	col.Confidence = 100
}

func (s *Session) approveColumn(sheet *mapping.SheetMapping, col *mapping.ColumnMapping) {
	switch {
	case col.MappedName == "":
		return
	case col.Incomplete():
		if col.SuggestedName == "" {
			return
		}
		s.completeNewColumn(sheet, col, col.SuggestedName, schema.ProposedNew)
	case col.MappedName == mapping.CreateNew:
		s.completeNewColumn(sheet, col, strings.TrimSpace(col.CreateNewValue), col.Origin)
	default:
		col.NeedsReview = false
	}
	col.UserOverride = true
}

// resolveDataType validates a user-picked type. Unknown falls back to the
// inferred type, then to text.
func resolveDataType(dt, inferred schema.DataType) (schema.DataType, error) {
	if dt != schema.Unknown && !dt.Known() {
		return "", fmt.Errorf("unsupported data type %q", dt)
	}
	if !dt.Known() {
		dt = inferred
	}
	if !dt.Known() {
		dt = schema.Text
	}
	return dt, nil
}

// editMappedName points col at name. field is the resolved target when name
// is an existing field.
func (s *Session) editMappedName(sheet *mapping.SheetMapping, col *mapping.ColumnMapping, name string, field *schema.FieldInfo) {
	switch name {
	case "":
		col.MappedName = ""
		col.CreateNewValue = ""
		col.Issue = ""
		col.Confidence = 0
		col.NeedsReview = true
	case mapping.CreateNew:
		if col.SuggestedName == "" {
			col.SuggestedName = s.builder.ColumnName(col.OriginalName, s.takenColumnNames(sheet, col.OriginalIndex))
		}
		col.MappedName = mapping.CreateNew
		col.Origin = schema.UserCreated
		col.Confidence = 0
		if v := strings.TrimSpace(col.CreateNewValue); v != "" {
			s.completeNewColumn(sheet, col, v, schema.UserCreated)
		} else {
			col.NeedsReview = true
		}
	default:
		candidate := mapping.MatchCandidate{TargetName: field.Name, TargetType: field.Type, Origin: field.Origin}
		for _, c := range col.Candidates {
			if c.TargetName == field.Name {
				candidate = c
				break
			}
		}
		if candidate.Confidence == 0 {
			if ranked := s.generator.RankFields(*col, []schema.FieldInfo{*field}); len(ranked) > 0 {
				candidate = ranked[0]
			}
		}
		s.mapToField(col, candidate)
	}
	col.UserOverride = true
}

func (s *Session) editSkip(sheet *mapping.SheetMapping, col *mapping.ColumnMapping, skip bool) {
	col.Skip = skip
	if skip {
		col.NeedsReview = false
		return
	}
	if col.UserOverride {
		col.NeedsReview = col.MappedName == "" || col.Incomplete() || col.Issue != ""
		return
	}
	if !s.matched[sheet.ID] {
		col.NeedsReview = true
		return
	}
	target := ""
	if !sheet.IsNewTable {
		target = sheet.MappedName
	}
	ranked := s.rankColumnsLocked(sheet.ID, target, []mapping.ColumnMapping{*col}, s.targetFields(sheet.ID, target))
	col.Candidates = ranked[col.OriginalIndex]
	s.decideColumn(sheet, col)
}

func (s *Session) findField(sheet *mapping.SheetMapping, name string) (schema.FieldInfo, bool) {
	if sheet.IsNewTable {
		return schema.FieldInfo{}, false
	}
	for _, f := range s.targetFields(sheet.ID, sheet.MappedName) {
		if f.Name == name {
			return f, true
		}
	}
	return schema.FieldInfo{}, false
}

func (s *Session) tableConfidence(sheet *mapping.SheetMapping, table schema.TableSchema) int {
	for _, c := range sheet.Candidates {
		if c.TargetName == table.Name {
			return c.Confidence
		}
	}
	ranked := s.generator.RankTables(sheet.OriginalName, []schema.TableSchema{table})
	if len(ranked) == 0 {
		return 0
	}
	return ranked[0].Confidence
}

// releaseTable drops cached candidates other sheets computed against the
// sheet's existing target, whose staged fields may have changed.
func (s *Session) releaseTable(sheet *mapping.SheetMapping) {
	if sheet.IsNewTable || sheet.MappedName == "" || sheet.MappedName == mapping.CreateNew {
		return
	}
	s.cache.InvalidateTable(sheet.MappedName)
}

func (s *Session) lookup(id string) (*mapping.SheetMapping, error) {
	sheet, ok := s.sheets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, id)
	}
	return sheet, nil
}

func (s *Session) lookupColumn(id string, index int) (*mapping.SheetMapping, *mapping.ColumnMapping, error) {
	sheet, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	col, ok := sheet.Column(index)
	if !ok {
		return nil, nil, fmt.Errorf("%w: sheet %s column %d", ErrColumnNotFound, id, index)
	}
	return sheet, col, nil
}

// recompute derives column states, needsReview and status of a sheet from
// its current mappings. It is idempotent. Callers hold s.mu.
func (s *Session) recompute(sheet *mapping.SheetMapping) {
	matched := s.matched[sheet.ID]
	for i := range sheet.Columns {
		col := &sheet.Columns[i]
		if !col.Skip && (col.MappedName == "" || col.Incomplete() || col.Issue != "") {
			col.NeedsReview = true
		}
		col.State = columnState(*col)
	}

	if sheet.Skip {
		sheet.NeedsReview = false
		sheet.Approved = false
		sheet.Status = mapping.StatusPending
		return
	}

	if matched && (sheet.MappedName == "" || sheet.Issue != "" ||
		(sheet.IsNewTable && strings.TrimSpace(sheet.CreateNewValue) == "")) {
		sheet.TableNeedsReview = true
	}
	needs := !matched || sheet.TableNeedsReview
	for _, col := range sheet.Columns {
		if !col.Skip && col.NeedsReview {
			needs = true
		}
	}
	sheet.NeedsReview = needs

	switch {
	case !matched:
		sheet.Approved = false
		sheet.Status = mapping.StatusPending
	case needs:
		sheet.Approved = false
		sheet.Status = mapping.StatusMapping
	case sheet.Approved || s.cfg.AutoApproveReady:
		sheet.Approved = true
		sheet.Status = mapping.StatusApproved
	default:
		sheet.Status = mapping.StatusReady
	}
}

func columnState(col mapping.ColumnMapping) mapping.ColumnState {
	switch {
	case col.Skip:
		return mapping.ColumnSkipped
	case col.MappedName == "":
		return mapping.ColumnUnmapped
	case col.MappedName == mapping.CreateNew && col.NeedsReview:
		return mapping.ColumnCreating
	case col.MappedName == mapping.CreateNew:
		return mapping.ColumnCreated
	case col.NeedsReview:
		return mapping.ColumnSuggested
	}
	return mapping.ColumnApproved
}
