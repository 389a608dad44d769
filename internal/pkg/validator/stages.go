package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/futig/risk-report-backend/internal/entity"
)

var (
	hazardKeys  = []string{"risk_id", "dimension_type", "dimension", "dimension_id", "failure_mode", "consequence"}
	scoreKeys   = []string{"risk_id", "s", "p", "d", "s_reason", "p_reason", "d_reason"}
	measureKeys = []string{"risk_id", "actions"}
	actionKeys  = []string{"action", "type", "expected_effect"}
	planKeys    = []string{"risk_id", "owner", "planned_date", "verification"}
)

// dimensionAliases maps the short and colloquial five-factor names to their canonical form.
var dimensionAliases = map[string]string{
	"人": "人员", "人员": "人员",
	"机": "机器", "机器": "机器", "设备": "机器", "机器设备": "机器",
	"料": "物料", "物料": "物料", "材料": "物料", "原辅料": "物料",
	"法": "方法", "方法": "方法", "工艺": "方法",
	"环": "环境", "环境": "环境",
}

// CanonicalDimension resolves a five-factor dimension alias.
func CanonicalDimension(dimension string) (string, bool) {
	canonical, ok := dimensionAliases[strings.TrimSpace(dimension)]
	return canonical, ok
}

// ParseHazards validates the hazard identification output. Every risk_id is replaced with newID().
func ParseHazards(raw json.RawMessage, method entity.RiskMethod, newID func() string) ([]entity.RiskItem, error) {
	obj, err := decodeObject(raw, LabelHazards)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(obj, []string{"risk_items"}, LabelHazards, -1); err != nil {
		return nil, err
	}

	records, err := decodeList(obj, "risk_items", LabelHazards)
	if err != nil {
		return nil, err
	}

	wantType := method.DimensionType()
	items := make([]entity.RiskItem, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for i, rec := range records {
		if err := checkKeys(rec, hazardKeys, LabelHazards, i); err != nil {
			return nil, err
		}

		dimType, err := stringField(rec, "dimension_type", LabelHazards, i, true)
		if err != nil {
			return nil, err
		}
		if entity.DimensionType(dimType) != wantType {
			return nil, schemaError(LabelHazards, i, "dimension_type", reasonEnum)
		}

		dimension, err := stringField(rec, "dimension", LabelHazards, i, true)
		if err != nil {
			return nil, err
		}

		dimensionID, err := nullableStringField(rec, "dimension_id", LabelHazards, i)
		if err != nil {
			return nil, err
		}

		if wantType == entity.DimensionFiveFactors {
			canonical, ok := CanonicalDimension(dimension)
			if !ok {
				return nil, schemaError(LabelHazards, i, "dimension", reasonEnum)
			}
			dimension = canonical
			dimensionID = nil
		}

		failureMode, err := stringField(rec, "failure_mode", LabelHazards, i, true)
		if err != nil {
			return nil, err
		}

		consequence, err := stringField(rec, "consequence", LabelHazards, i, true)
		if err != nil {
			return nil, err
		}

		id := newID()
		if _, dup := seen[id]; dup {
			return nil, schemaError(LabelHazards, i, "risk_id", reasonDuplicate)
		}
		seen[id] = struct{}{}

		items = append(items, entity.RiskItem{
			RiskID:        id,
			DimensionType: wantType,
			Dimension:     dimension,
			DimensionID:   dimensionID,
			FailureMode:   failureMode,
			Consequence:   consequence,
		})
	}

	return items, nil
}

// ParseScores validates the scoring output against the identified items.
// The rows are returned in item order.
func ParseScores(raw json.RawMessage, items []entity.RiskItem) ([]entity.ScoreRow, error) {
	obj, err := decodeObject(raw, LabelScores)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(obj, []string{"scores"}, LabelScores, -1); err != nil {
		return nil, err
	}

	records, err := decodeList(obj, "scores", LabelScores)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[item.RiskID] = struct{}{}
	}

	byID := make(map[string]entity.ScoreRow, len(records))
	for i, rec := range records {
		if err := checkKeys(rec, scoreKeys, LabelScores, i); err != nil {
			return nil, err
		}

		id, err := stringField(rec, "risk_id", LabelScores, i, true)
		if err != nil {
			return nil, err
		}
		if _, ok := known[id]; !ok {
			return nil, schemaError(LabelScores, i, "risk_id", reasonUnknownRef)
		}
		if _, dup := byID[id]; dup {
			return nil, schemaError(LabelScores, i, "risk_id", reasonDuplicate)
		}

		row := entity.ScoreRow{RiskID: id}
		for _, f := range []struct {
			name string
			dst  *int
		}{{"s", &row.S}, {"p", &row.P}, {"d", &row.D}} {
			if *f.dst, err = scoreField(rec, f.name, LabelScores, i); err != nil {
				return nil, err
			}
		}
		for _, f := range []struct {
			name string
			dst  *string
		}{{"s_reason", &row.SReason}, {"p_reason", &row.PReason}, {"d_reason", &row.DReason}} {
			if *f.dst, err = stringField(rec, f.name, LabelScores, i, true); err != nil {
				return nil, err
			}
		}

		byID[id] = row
	}

	rows := make([]entity.ScoreRow, 0, len(items))
	for i, item := range items {
		row, ok := byID[item.RiskID]
		if !ok {
			return nil, schemaError(LabelScores, i, item.RiskID, "风险项缺少评分")
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// ParseMeasures validates the action generation output. Only items needing actions may
// appear and each of them needs at least one action. Measures are returned in item order.
func ParseMeasures(raw json.RawMessage, scored []entity.ScoredRiskItem) ([]entity.ControlMeasure, error) {
	obj, err := decodeObject(raw, LabelMeasures)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(obj, []string{"measures"}, LabelMeasures, -1); err != nil {
		return nil, err
	}

	records, err := decodeList(obj, "measures", LabelMeasures)
	if err != nil {
		return nil, err
	}

	needs := make(map[string]bool, len(scored))
	for _, item := range scored {
		needs[item.RiskID] = item.NeedActions
	}

	byID := make(map[string]entity.ControlMeasure, len(records))
	for i, rec := range records {
		if err := checkKeys(rec, measureKeys, LabelMeasures, i); err != nil {
			return nil, err
		}

		id, err := stringField(rec, "risk_id", LabelMeasures, i, true)
		if err != nil {
			return nil, err
		}
		need, ok := needs[id]
		if !ok {
			return nil, schemaError(LabelMeasures, i, "risk_id", reasonUnknownRef)
		}
		if !need {
			return nil, schemaError(LabelMeasures, i, "risk_id", "无需措施的风险项不应包含措施")
		}
		if _, dup := byID[id]; dup {
			return nil, schemaError(LabelMeasures, i, "risk_id", reasonDuplicate)
		}

		actionRecords, err := decodeList(rec, "actions", LabelMeasures)
		if err != nil {
			return nil, err
		}
		if len(actionRecords) == 0 {
			return nil, schemaError(LabelMeasures, i, "actions", reasonEmpty)
		}

		measure := entity.ControlMeasure{RiskID: id, Actions: make([]entity.ActionItem, 0, len(actionRecords))}
		for j, ar := range actionRecords {
			label := fmt.Sprintf("%s[%d].actions", LabelMeasures, i)
			if err := checkKeys(ar, actionKeys, label, j); err != nil {
				return nil, err
			}

			action, err := stringField(ar, "action", label, j, true)
			if err != nil {
				return nil, err
			}
			actionType, err := stringField(ar, "type", label, j, true)
			if err != nil {
				return nil, err
			}
			switch entity.ActionType(strings.ToLower(actionType)) {
			case entity.ActionTypePrevent, entity.ActionTypeDetect:
			default:
				return nil, schemaError(label, j, "type", reasonEnum)
			}
			effect, err := stringField(ar, "expected_effect", label, j, true)
			if err != nil {
				return nil, err
			}

			measure.Actions = append(measure.Actions, entity.ActionItem{
				Action:         action,
				Type:           entity.ActionType(strings.ToLower(actionType)),
				ExpectedEffect: effect,
			})
		}

		byID[id] = measure
	}

	measures := make([]entity.ControlMeasure, 0, len(byID))
	for _, item := range scored {
		if m, ok := byID[item.RiskID]; ok {
			measures = append(measures, m)
		}
	}

	if err := CheckActionConsistency(scored, measures); err != nil {
		return nil, err
	}

	return measures, nil
}

// CheckActionConsistency enforces that exactly the items needing actions carry at least one action.
func CheckActionConsistency(scored []entity.ScoredRiskItem, measures []entity.ControlMeasure) error {
	actions := make(map[string]int, len(measures))
	for _, m := range measures {
		actions[m.RiskID] += len(m.Actions)
	}

	for i, item := range scored {
		n := actions[item.RiskID]
		if item.NeedActions && n == 0 {
			return schemaError(LabelMeasures, i, item.RiskID, "需采取措施的风险项缺少措施")
		}
		if !item.NeedActions && n > 0 {
			return schemaError(LabelMeasures, i, item.RiskID, "无需措施的风险项不应包含措施")
		}
	}
	return nil
}

// plannedDateLayouts are the date formats accepted for planned_date.
var plannedDateLayouts = []string{time.DateOnly, "2006/01/02", "2006.01.02", time.RFC3339}

// ParsePlan validates the control plan: exactly one entry per measure. A planned_date that is
// unparsable or before today becomes PlannedDateTBD. Entries are returned in measure order.
func ParsePlan(raw json.RawMessage, measures []entity.ControlMeasure, today time.Time) ([]entity.ActionPlanEntry, error) {
	obj, err := decodeObject(raw, LabelPlan)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(obj, []string{"plan"}, LabelPlan, -1); err != nil {
		return nil, err
	}

	records, err := decodeList(obj, "plan", LabelPlan)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(measures))
	for _, m := range measures {
		known[m.RiskID] = struct{}{}
	}

	byID := make(map[string]entity.ActionPlanEntry, len(records))
	for i, rec := range records {
		if err := checkKeys(rec, planKeys, LabelPlan, i); err != nil {
			return nil, err
		}

		id, err := stringField(rec, "risk_id", LabelPlan, i, true)
		if err != nil {
			return nil, err
		}
		if _, ok := known[id]; !ok {
			return nil, schemaError(LabelPlan, i, "risk_id", reasonUnknownRef)
		}
		if _, dup := byID[id]; dup {
			return nil, schemaError(LabelPlan, i, "risk_id", reasonDuplicate)
		}

		owner, err := stringField(rec, "owner", LabelPlan, i, true)
		if err != nil {
			return nil, err
		}
		date, err := stringField(rec, "planned_date", LabelPlan, i, false)
		if err != nil {
			return nil, err
		}
		verification, err := stringField(rec, "verification", LabelPlan, i, true)
		if err != nil {
			return nil, err
		}

		byID[id] = entity.ActionPlanEntry{
			RiskID:       id,
			Owner:        owner,
			PlannedDate:  normalizePlannedDate(date, today),
			Verification: verification,
		}
	}

	plan := make([]entity.ActionPlanEntry, 0, len(measures))
	for i, m := range measures {
		entry, ok := byID[m.RiskID]
		if !ok {
			return nil, schemaError(LabelPlan, i, m.RiskID, "控制措施缺少计划")
		}
		plan = append(plan, entry)
	}

	return plan, nil
}

func normalizePlannedDate(value string, today time.Time) string {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	for _, layout := range plannedDateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if day.Before(start) {
			return entity.PlannedDateTBD
		}
		return day.Format(time.DateOnly)
	}

	return entity.PlannedDateTBD
}

// ValidateMapping checks dimension coverage of the identified items. Five-factor runs need at
// least one item per factor. Process-flow runs with known steps need every step covered and every
// dimension_id to name a known step.
func ValidateMapping(items []entity.RiskItem, method entity.RiskMethod, steps []entity.ProcessStep) (*entity.MappingValidation, error) {
	result := &entity.MappingValidation{
		DimensionCounts: make(map[string]int),
		Missing:         []string{},
	}

	if method.DimensionType() == entity.DimensionFiveFactors {
		for _, factor := range entity.FiveFactors {
			result.DimensionCounts[factor] = 0
		}
		for _, item := range items {
			result.DimensionCounts[item.Dimension]++
		}
		for _, factor := range entity.FiveFactors {
			if result.DimensionCounts[factor] == 0 {
				result.Missing = append(result.Missing, factor)
			}
		}
	} else {
		known := make(map[string]string, len(steps))
		for _, step := range steps {
			known[step.ID] = step.Name
			result.DimensionCounts[step.ID] = 0
		}

		for i, item := range items {
			if len(steps) == 0 {
				result.DimensionCounts[item.Dimension]++
				continue
			}
			if item.DimensionID == nil {
				return nil, schemaError(LabelMapping, i, "dimension_id", reasonMissing)
			}
			if _, ok := known[*item.DimensionID]; !ok {
				return nil, schemaError(LabelMapping, i, "dimension_id", "引用未知流程步骤")
			}
			result.DimensionCounts[*item.DimensionID]++
		}

		for _, step := range steps {
			if result.DimensionCounts[step.ID] == 0 {
				result.Missing = append(result.Missing, step.ID)
			}
		}
		if len(items) == 0 && len(steps) == 0 {
			result.Missing = append(result.Missing, "process_flow")
		}
	}

	result.Passed = len(result.Missing) == 0
	if !result.Passed {
		return result, schemaError(LabelMapping, -1, strings.Join(result.Missing, "、"), "缺少维度")
	}

	return result, nil
}
