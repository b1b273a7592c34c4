package mapping

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/sheetmatch/schema"
)

// CreateNew is the mappedName sentinel for "create a new table/field".
const CreateNew = "_create_new_"

// RawSheet is one parsed worksheet as handed over by the file parser.
type RawSheet struct {
	SheetName      string   `json:"sheetName" yaml:"sheet"`
	Headers        []string `json:"headers" yaml:"headers"`
	SampleRows     [][]any  `json:"sampleRows" yaml:"rows"`
	TotalRowCount  int      `json:"totalRowCount" yaml:"total_rows"`
	HeaderRowIndex int      `json:"headerRowIndex" yaml:"header_row"`
}

type SheetStatus string

const (
	StatusPending  SheetStatus = "pending"
	StatusMapping  SheetStatus = "mapping"
	StatusReady    SheetStatus = "ready"
	StatusApproved SheetStatus = "approved"
)

type ColumnState string

const (
	ColumnUnmapped  ColumnState = "unmapped"
	ColumnSuggested ColumnState = "suggested"
	ColumnApproved  ColumnState = "approved"
	ColumnCreating  ColumnState = "creating"
	ColumnCreated   ColumnState = "created"
	ColumnSkipped   ColumnState = "skipped"
)

// MatchCandidate is one ranked target for a sheet or column.
type MatchCandidate struct {
	TargetName     string          `json:"targetName"`
	TargetType     schema.DataType `json:"targetType"`
	Confidence     int             `json:"confidence"`
	NameSimilarity int             `json:"nameSimilarity"`
	TypeCompatible bool            `json:"typeCompatible"`
	Origin         schema.Origin   `json:"origin"`
}

type ColumnMapping struct {
	OriginalName     string          `json:"originalName"`
	OriginalIndex    int             `json:"originalIndex"`
	MappedName       string          `json:"mappedName"`
	DataType         schema.DataType `json:"dataType"`
	InferredDataType schema.DataType `json:"inferredDataType"`
	Confidence       int             `json:"confidence"`
	Skip             bool            `json:"skip"`
	NeedsReview      bool            `json:"needsReview"`
	CreateNewValue   string          `json:"createNewValue,omitempty"`
	Sample           []any           `json:"sample"`

	State         ColumnState      `json:"state"`
	Origin        schema.Origin    `json:"origin,omitempty"`
	SuggestedName string           `json:"suggestedName,omitempty"`
	UserOverride  bool             `json:"userOverride"`
	Candidates    []MatchCandidate `json:"candidates,omitempty"`
	Issue         string           `json:"issue,omitempty"`
}

// Incomplete reports a create-new column that has no name yet.
func (c *ColumnMapping) Incomplete() bool {
	return c.MappedName == CreateNew && strings.TrimSpace(c.CreateNewValue) == ""
}

// Clone returns a deep copy.
func (c ColumnMapping) Clone() ColumnMapping {
	c.Sample = append([]any(nil), c.Sample...)
	c.Candidates = append([]MatchCandidate(nil), c.Candidates...)
	return c
}

type SheetMapping struct {
	ID             string          `json:"id"`
	OriginalName   string          `json:"originalName"`
	MappedName     string          `json:"mappedName"`
	HeaderRowIndex int             `json:"headerRowIndex"`
	Skip           bool            `json:"skip"`
	IsNewTable     bool            `json:"isNewTable"`
	WasCreatedNew  bool            `json:"wasCreatedNew"`
	NeedsReview    bool            `json:"needsReview"`
	Approved       bool            `json:"approved"`
	Status         SheetStatus     `json:"status"`
	Columns        []ColumnMapping `json:"columns"`

	TotalRowCount    int              `json:"totalRowCount"`
	TableConfidence  int              `json:"tableConfidence"`
	TableNeedsReview bool             `json:"tableNeedsReview"`
	SuggestedName    string           `json:"suggestedName,omitempty"`
	CreateNewValue   string           `json:"createNewValue,omitempty"`
	Origin           schema.Origin    `json:"origin,omitempty"`
	Candidates       []MatchCandidate `json:"candidates,omitempty"`
	Issue            string           `json:"issue,omitempty"`
}

// Column returns the column with the given source index.
func (s *SheetMapping) Column(index int) (*ColumnMapping, bool) {
	for i := range s.Columns {
		if s.Columns[i].OriginalIndex == index {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (s SheetMapping) Clone() SheetMapping {
	cols := make([]ColumnMapping, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.Clone()
	}
	s.Columns = cols
	s.Candidates = append([]MatchCandidate(nil), s.Candidates...)
	return s
}

// TypeInferrer is the part of the inferrer NewSheetMapping needs.
type TypeInferrer interface {
	InferType(fieldName string, samples []any) schema.DataType
}

// NewSheetMapping builds the initial pending mapping for a parsed sheet.
// Blank or repeated headers get positional names so every column stays
// addressable. At most sampleSize rows are kept per column.
func NewSheetMapping(id string, raw RawSheet, inferrer TypeInferrer, sampleSize int) SheetMapping {
	sheet := SheetMapping{
		ID:             id,
		OriginalName:   raw.SheetName,
		HeaderRowIndex: raw.HeaderRowIndex,
		Status:         StatusPending,
		TotalRowCount:  raw.TotalRowCount,
	}
	if sheet.TotalRowCount == 0 {
		sheet.TotalRowCount = len(raw.SampleRows)
	}

	seen := make(map[string]int, len(raw.Headers))
	for i, h := range raw.Headers {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		seen[key]++

		samples := columnSamples(raw.SampleRows, i, sampleSize)
		inferred := schema.Unknown
		if inferrer != nil {
			inferred = inferrer.InferType(name, samples)
		}
		dataType := inferred
		if dataType == schema.Unknown {
			dataType = schema.Text
		}

		sheet.Columns = append(sheet.Columns, ColumnMapping{
			OriginalName:     name,
			OriginalIndex:    i,
			DataType:         dataType,
			InferredDataType: inferred,
			Sample:           samples,
			State:            ColumnUnmapped,
			NeedsReview:      true,
		})
	}
	return sheet
}

// columnSamples takes the first non-blank values of column i.
func columnSamples(rows [][]any, i, limit int) []any {
	var out []any
	for _, row := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if i >= len(row) || row[i] == nil {
			continue
		}
		if s, ok := row[i].(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, row[i])
	}
	return out
}
