package report

import (
	"regexp"

	"github.com/futig/risk-report-backend/internal/entity"
)

// ActionOverride is a run-wide decision on need_actions taken from the objective text
type ActionOverride int

const (
	OverrideNone ActionOverride = iota
	OverrideNoActions
	OverrideAllActions
)

func (o ActionOverride) String() string {
	switch o {
	case OverrideNoActions:
		return "no_actions"
	case OverrideAllActions:
		return "all_actions"
	default:
		return "none"
	}
}

// ActionPolicy derives an override from the free-text objective of a run
type ActionPolicy interface {
	Decide(objective string) ActionOverride
}

var (
	noActionPattern = regexp.MustCompile(
		`(?i)(无需|不需要|不必|无须)(再)?(采取|制定|进行|提出)?(任何)?(控制|纠正|预防|整改)?(措施|行动|整改|改进)` +
			`|仅(需)?(做|作|进行)?(风险)?(识别|评估|评价)` +
			`|no (further )?(actions?|measures?) (is |are )?(needed|required)`,
	)
	mustActionPattern = regexp.MustCompile(
		`(?i)(必须|务必|需要|需)(对)?(全部|所有|每[个项条])?(风险(项)?)?(都|均)?(采取|制定|提出)(控制|纠正|预防|整改)?(措施|行动)` +
			`|(全部|所有)(风险(项)?)?(都|均)?(需要|要)(采取|制定)?(措施|整改)` +
			`|(must|should) take actions?` +
			`|actions? (is |are )?(mandatory|required for all)`,
	)
)

// PatternPolicy matches phrases meaning "no action needed" or "action required".
// Phrases of the first kind are removed before the second set is tried, so a negated
// requirement does not count as a requirement. When both kinds remain the objective is
// ambiguous and nothing is overridden.
type PatternPolicy struct {
	noAction   *regexp.Regexp
	mustAction *regexp.Regexp
}

func NewPatternPolicy() *PatternPolicy {
	return &PatternPolicy{
		noAction:   noActionPattern,
		mustAction: mustActionPattern,
	}
}

func (p *PatternPolicy) Decide(objective string) ActionOverride {
	none := p.noAction.MatchString(objective)
	rest := p.noAction.ReplaceAllString(objective, " ")
	must := p.mustAction.MatchString(rest)

	switch {
	case none && !must:
		return OverrideNoActions
	case must && !none:
		return OverrideAllActions
	default:
		return OverrideNone
	}
}

// ApplyOverride forces need_actions on every item. Scores, RPN and level are untouched.
func ApplyOverride(items []entity.ScoredRiskItem, o ActionOverride) []entity.ScoredRiskItem {
	if o == OverrideNone {
		return items
	}

	out := make([]entity.ScoredRiskItem, len(items))
	for i, item := range items {
		item.NeedActions = o == OverrideAllActions
		out[i] = item
	}
	return out
}
