package report

import (
	"strings"
	"testing"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompts_ProcessSteps(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	msgs, err := prompts.Messages(PromptHazardProcessFlow, PromptInput{
		Scope: "压片工序",
		ProcessSteps: []entity.ProcessStep{
			{ID: "S1", Name: "称量配料"},
			{ID: "S2", Name: "压片"},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "评估范围：压片工序")
	assert.Contains(t, msgs[1].Content, "工艺步骤：\n- id: S1 | name: 称量配料\n- id: S2 | name: 压片\n")

	msgs, err = prompts.Messages(PromptHazardProcessFlow, PromptInput{})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, "未提供步骤")
}

func TestDefaultPrompts_ControlPlanToday(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	msgs, err := prompts.Messages(PromptControlPlan, PromptInput{Today: "2025-03-01", MeasuresJSON: `[{"risk_id": "a"}]`})
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "不得早于 2025-03-01")
	assert.Contains(t, msgs[1].Content, `"risk_id": "a"`)
}

func TestParsePrompts_Invalid(t *testing.T) {
	_, err := ParsePrompts([]byte("rendering: ["))
	assert.Error(t, err)

	_, err = ParsePrompts([]byte("rendering:\n  system: a\n  user: b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is missing")

	catalogue := make([]string, 0, len(requiredPrompts))
	for _, name := range requiredPrompts {
		catalogue = append(catalogue, string(name)+":\n  system: s\n  user: \"{{.Scope\"\n")
	}
	_, err = ParsePrompts([]byte(strings.Join(catalogue, "")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user template parse")
}

func TestPrompts_UnknownName(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	_, err = prompts.Messages("missing", PromptInput{})
	assert.ErrorIs(t, err, entity.ErrInvalidParameter)
}
