package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/futig/risk-report-backend/internal/entity"
)

// Stage labels used in validation messages
const (
	LabelHazards  = "风险识别"
	LabelScores   = "FMEA评分"
	LabelMeasures = "控制措施"
	LabelPlan     = "控制计划"
	LabelMapping  = "映射校验"
)

const (
	reasonMissing    = "缺少字段"
	reasonExtra      = "存在多余字段"
	reasonEmpty      = "字段为空"
	reasonType       = "字段类型错误"
	reasonEnum       = "取值不在允许范围"
	reasonUnknownRef = "引用未知 risk_id"
	reasonDuplicate  = "risk_id 重复"
)

type record map[string]json.RawMessage

func schemaError(label string, index int, field, reason string) error {
	return &entity.SchemaValidationError{Label: label, Index: index, Field: field, Reason: reason}
}

// decodeObject parses raw as a JSON object; anything else is invalid model output.
func decodeObject(raw json.RawMessage, label string) (record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: %s: top-level value is not an object", entity.ErrInvalidModelOutput, label)
	}

	var obj record
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrInvalidModelOutput, label, err)
	}
	return obj, nil
}

// checkKeys requires obj to carry exactly the keys in want.
func checkKeys(obj record, want []string, label string, index int) error {
	for _, key := range want {
		if _, ok := obj[key]; !ok {
			return schemaError(label, index, key, reasonMissing)
		}
	}

	var extra []string
	for key := range obj {
		if !slices.Contains(want, key) {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return schemaError(label, index, strings.Join(extra, ", "), reasonExtra)
	}

	return nil
}

// decodeList parses obj[key] as an array of objects.
func decodeList(obj record, key, label string) ([]record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(obj[key], &raws); err != nil {
		return nil, schemaError(label, -1, key, reasonType)
	}

	list := make([]record, len(raws))
	for i, raw := range raws {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return nil, schemaError(label, i, key, reasonType)
		}
		if err := json.Unmarshal(raw, &list[i]); err != nil {
			return nil, schemaError(label, i, key, reasonType)
		}
	}
	return list, nil
}

// stringField reads a string field. Required fields must be non-blank.
func stringField(rec record, field, label string, index int, required bool) (string, error) {
	var s string
	if err := json.Unmarshal(rec[field], &s); err != nil {
		return "", schemaError(label, index, field, reasonType)
	}

	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", schemaError(label, index, field, reasonEmpty)
	}
	return s, nil
}

// nullableStringField reads a string-or-null field. Blank strings read as nil.
func nullableStringField(rec record, field, label string, index int) (*string, error) {
	raw := bytes.TrimSpace(rec[field])
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	s, err := stringField(rec, field, label, index, false)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// scoreField reads an FMEA score: an integral number in AllowedScores.
func scoreField(rec record, field, label string, index int) (int, error) {
	var f float64
	if err := json.Unmarshal(rec[field], &f); err != nil {
		return 0, schemaError(label, index, field, reasonType)
	}

	if f != math.Trunc(f) || !slices.Contains(entity.AllowedScores, int(f)) {
		return 0, schemaError(label, index, field, reasonEnum)
	}
	return int(f), nil
}
