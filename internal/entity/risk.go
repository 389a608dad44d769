package entity

// DimensionType is the kind of dimension a risk item is mapped to
type DimensionType string

const (
	DimensionFiveFactors DimensionType = "five_factors"
	DimensionProcessFlow DimensionType = "process_flow"
)

// DimensionType returns the dimension type produced by the method.
func (m RiskMethod) DimensionType() DimensionType {
	if m == RiskMethodProcessFlow {
		return DimensionProcessFlow
	}
	return DimensionFiveFactors
}

// FiveFactors are the canonical five-factor dimensions in report order.
var FiveFactors = []string{"人员", "机器", "物料", "方法", "环境"}

// RiskLevel is derived from the RPN
type RiskLevel string

const (
	RiskLevelLowest RiskLevel = "极低"
	RiskLevelLow    RiskLevel = "低"
	RiskLevelMedium RiskLevel = "中"
	RiskLevelHigh   RiskLevel = "高"
)

// ActionThreshold is the lowest RPN that requires control actions.
const ActionThreshold = 54

// AllowedScores are the only values S, P and D may take.
var AllowedScores = []int{1, 3, 6, 9}

// LevelForRPN maps an RPN to its risk level.
func LevelForRPN(rpn int) RiskLevel {
	switch {
	case rpn < 27:
		return RiskLevelLowest
	case rpn < ActionThreshold:
		return RiskLevelLow
	case rpn < 108:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

// RiskItem is one identified hazard
type RiskItem struct {
	RiskID        string        `json:"risk_id"`
	DimensionType DimensionType `json:"dimension_type"`
	Dimension     string        `json:"dimension"`
	DimensionID   *string       `json:"dimension_id"`
	FailureMode   string        `json:"failure_mode"`
	Consequence   string        `json:"consequence"`
}

// ScoreRow is the model-supplied FMEA scoring of one risk item
type ScoreRow struct {
	RiskID  string `json:"risk_id"`
	S       int    `json:"s"`
	P       int    `json:"p"`
	D       int    `json:"d"`
	SReason string `json:"s_reason"`
	PReason string `json:"p_reason"`
	DReason string `json:"d_reason"`
}

// ScoredRiskItem is a risk item with its score and derived fields
type ScoredRiskItem struct {
	RiskItem
	S           int       `json:"s"`
	P           int       `json:"p"`
	D           int       `json:"d"`
	SReason     string    `json:"s_reason"`
	PReason     string    `json:"p_reason"`
	DReason     string    `json:"d_reason"`
	RPN         int       `json:"rpn"`
	Level       RiskLevel `json:"level"`
	NeedActions bool      `json:"need_actions"`
}

// Score combines an item with its score row. RPN, level and need_actions are always computed here.
func Score(item RiskItem, row ScoreRow) ScoredRiskItem {
	rpn := row.S * row.P * row.D
	return ScoredRiskItem{
		RiskItem:    item,
		S:           row.S,
		P:           row.P,
		D:           row.D,
		SReason:     row.SReason,
		PReason:     row.PReason,
		DReason:     row.DReason,
		RPN:         rpn,
		Level:       LevelForRPN(rpn),
		NeedActions: rpn >= ActionThreshold,
	}
}

// ActionType classifies a control action
type ActionType string

const (
	ActionTypePrevent ActionType = "prevent"
	ActionTypeDetect  ActionType = "detect"
)

type ActionItem struct {
	Action         string     `json:"action"`
	Type           ActionType `json:"type"`
	ExpectedEffect string     `json:"expected_effect"`
}

// ControlMeasure holds the actions generated for one risk item
type ControlMeasure struct {
	RiskID  string       `json:"risk_id"`
	Actions []ActionItem `json:"actions"`
}

// PlannedDateTBD replaces planned dates that are in the past or unparsable.
const PlannedDateTBD = "TBD"

// ActionPlanEntry assigns ownership and a schedule to the measure of one risk item
type ActionPlanEntry struct {
	RiskID       string `json:"risk_id"`
	Owner        string `json:"owner"`
	PlannedDate  string `json:"planned_date"`
	Verification string `json:"verification"`
}

// MappingValidation is the outcome of the dimension coverage check
type MappingValidation struct {
	Passed          bool           `json:"passed"`
	DimensionCounts map[string]int `json:"dimension_counts"`
	Missing         []string       `json:"missing"`
}
