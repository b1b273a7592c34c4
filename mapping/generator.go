package mapping

import (
	"context"
	"math"
	"sort"

	"github.com/ridoystarlord/sheetmatch/config"
	"github.com/ridoystarlord/sheetmatch/infer"
	"github.com/ridoystarlord/sheetmatch/schema"
	"github.com/ridoystarlord/sheetmatch/similarity"
)

// ProgressFunc receives a monotonically increasing percentage (0-100).
type ProgressFunc func(percent int)

// Generator ranks candidate tables for sheets and candidate fields for
// columns. It holds no per-session state.
type Generator struct {
	tables     *similarity.Scorer
	columns    *similarity.Scorer
	checker    *infer.Checker
	thresholds config.Thresholds
}

// NewGenerator scores sheet names with tables and column headers with
// columns. Only the table scorer should strip table prefixes.
func NewGenerator(tables, columns *similarity.Scorer, checker *infer.Checker, t config.Thresholds) *Generator {
	return &Generator{tables: tables, columns: columns, checker: checker, thresholds: t}
}

// GenerateSheetMappings ranks every table against every sheet name, keyed by
// sheet ID. Skipped sheets are left out.
func (g *Generator) GenerateSheetMappings(ctx context.Context, sheets []SheetMapping, tables []schema.TableSchema, progress ProgressFunc) (map[string][]MatchCandidate, error) {
	out := make(map[string][]MatchCandidate, len(sheets))
	report := newReporter(len(sheets), progress)
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sheet.Skip {
			out[sheet.ID] = g.RankTables(sheet.OriginalName, tables)
		}
		report.step()
	}
	report.done()
	return out, nil
}

// RankTables scores one sheet name against the tables.
func (g *Generator) RankTables(sheetName string, tables []schema.TableSchema) []MatchCandidate {
	candidates := make([]MatchCandidate, 0, len(tables))
	for _, t := range tables {
		score := g.tables.Score(sheetName, t.Name)
		if score >= g.thresholds.ForceExact {
			score = g.thresholds.Exact
		}
		origin := t.Origin
		if origin == "" {
			origin = schema.Existing
		}
		candidates = append(candidates, MatchCandidate{
			TargetName:     t.Name,
			Confidence:     score,
			NameSimilarity: score,
			TypeCompatible: true,
			Origin:         origin,
		})
	}
	return rank(candidates)
}

// GenerateColumnMappings ranks target fields for each column, keyed by the
// column's OriginalIndex.
func (g *Generator) GenerateColumnMappings(ctx context.Context, columns []ColumnMapping, fields []schema.FieldInfo, progress ProgressFunc) (map[int][]MatchCandidate, error) {
	out := make(map[int][]MatchCandidate, len(columns))
	report := newReporter(len(columns), progress)
	for _, col := range columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !col.Skip {
			out[col.OriginalIndex] = g.RankFields(col, fields)
		}
		report.step()
	}
	report.done()
	return out, nil
}

// RankFields scores one column against the fields. A name similarity of at
// least ForceExact is reported as Exact whatever the types; below that the
// name score and the type fit are blended.
func (g *Generator) RankFields(col ColumnMapping, fields []schema.FieldInfo) []MatchCandidate {
	candidates := make([]MatchCandidate, 0, len(fields))
	for _, f := range fields {
		nameScore := g.columns.Score(col.OriginalName, f.Name)
		compat := g.checker.Check(col.InferredDataType, f.Type, nameScore)

		confidence := g.blend(nameScore, compat)
		if nameScore >= g.thresholds.ForceExact {
			confidence = g.thresholds.Exact
		}

		origin := f.Origin
		if origin == "" {
			origin = schema.Existing
		}
		candidates = append(candidates, MatchCandidate{
			TargetName:     f.Name,
			TargetType:     f.Type,
			Confidence:     confidence,
			NameSimilarity: nameScore,
			TypeCompatible: compat.Compatible(),
			Origin:         origin,
		})
	}
	return rank(candidates)
}

func (g *Generator) blend(nameScore int, compat infer.Compatibility) int {
	typeScore := 0
	switch compat {
	case infer.Strict:
		typeScore = 100
	case infer.Lenient:
		typeScore = g.thresholds.LenientTypeCredit
	}
	total := g.thresholds.NameWeight + g.thresholds.TypeWeight
	v := (g.thresholds.NameWeight*float64(nameScore) + g.thresholds.TypeWeight*float64(typeScore)) / total
	score := int(math.Round(v))
	if score > g.thresholds.Exact {
		score = g.thresholds.Exact
	}
	// a blend never reaches a full match on its own
	if score >= g.thresholds.Exact && nameScore < g.thresholds.ForceExact {
		score = g.thresholds.Exact - 1
	}
	return score
}

// rank sorts by confidence descending, ties by name, and keeps the best
// entry per target name.
func rank(candidates []MatchCandidate) []MatchCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].TargetName < candidates[j].TargetName
	})
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c.TargetName] {
			continue
		}
		seen[c.TargetName] = true
		out = append(out, c)
	}
	return out
}

type reporter struct {
	total, count int
	last         int
	fn           ProgressFunc
}

func newReporter(total int, fn ProgressFunc) *reporter {
	return &reporter{total: total, last: -1, fn: fn}
}

func (r *reporter) step() {
	r.count++
	if r.total == 0 {
		return
	}
	r.emit(r.count * 100 / r.total)
}

func (r *reporter) done() {
	r.emit(100)
}

func (r *reporter) emit(p int) {
	if r.fn == nil || p <= r.last {
		return
	}
	r.last = p
	r.fn(p)
}
