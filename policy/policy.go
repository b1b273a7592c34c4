// Package policy turns ranked candidates into review decisions. It is pure:
// the session applies the decisions.
package policy

import (
	"github.com/ridoystarlord/sheetmatch/config"
	"github.com/ridoystarlord/sheetmatch/mapping"
)

// Action is what the policy recommends for one sheet or column.
type Action string

const (
	// Approve maps to the best candidate without review.
	Approve Action = "approve"
	// Suggest maps to the best candidate but asks a human to confirm.
	Suggest Action = "suggest"
	// Create proposes a new table or field.
	Create Action = "create"
)

type Decision struct {
	Action      Action
	Candidate   *mapping.MatchCandidate
	NeedsReview bool
	Reason      string
}

type Policy struct {
	t config.Thresholds
}

func New(t config.Thresholds) *Policy {
	return &Policy{t: t}
}

func (p *Policy) Thresholds() config.Thresholds {
	return p.t
}

// DecideTable picks the action for a sheet from its ranked tables.
func (p *Policy) DecideTable(candidates []mapping.MatchCandidate) Decision {
	best := first(candidates)
	switch {
	case best == nil:
		return Decision{Action: Create, NeedsReview: true, Reason: "no existing tables"}
	case best.Confidence < p.t.TableSuggestion:
		return Decision{Action: Create, NeedsReview: true, Reason: "no table scored above the suggestion threshold"}
	case best.Confidence >= p.t.AutoApprove:
		return Decision{Action: Approve, Candidate: best, Reason: "table name match"}
	}
	return Decision{Action: Suggest, Candidate: best, NeedsReview: true, Reason: "partial table name match"}
}

// DecideColumn picks the action for a column from its ranked fields.
//
//	confidence == exact                       approve, type ignored
//	confidence >= auto_approve                approve, type ignored
//	confidence >= type_match_approve + types  approve
//	confidence >= column_suggestion           suggest, needs review
//	otherwise                                 create new, needs review
func (p *Policy) DecideColumn(candidates []mapping.MatchCandidate) Decision {
	best := first(candidates)
	switch {
	case best == nil:
		return Decision{Action: Create, NeedsReview: true, Reason: "no target fields"}
	case best.Confidence >= p.t.Exact:
		return Decision{Action: Approve, Candidate: best, Reason: "exact name match"}
	case best.Confidence >= p.t.AutoApprove:
		return Decision{Action: Approve, Candidate: best, Reason: "near-exact name match"}
	case best.Confidence >= p.t.TypeMatchApprove && best.TypeCompatible:
		return Decision{Action: Approve, Candidate: best, Reason: "close name match with compatible type"}
	case best.Confidence < p.t.ColumnSuggestion:
		return Decision{Action: Create, NeedsReview: true, Reason: "no field scored above the suggestion threshold"}
	}
	return Decision{Action: Suggest, Candidate: best, NeedsReview: true, Reason: "needs review"}
}

func first(candidates []mapping.MatchCandidate) *mapping.MatchCandidate {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	return &c
}
