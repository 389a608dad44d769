package jsonx

import (
	"testing"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw object", ` {"a":1} `, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": [1, 2]}\n```\nDone.", `{"a": [1, 2]}`},
		{"fenced without language", "```\n[1,2]\n```", `[1,2]`},
		{"prose around object", `Result: {"risk_items": []} hope it helps`, `{"risk_items": []}`},
		{"second fence valid", "```json\nnot json\n```\n```json\n{\"b\":2}\n```", `{"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Extract(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestExtract_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "no json at all", "{broken", "} backwards {"} {
		_, err := Extract(in)
		assert.ErrorIs(t, err, entity.ErrInvalidModelOutput, in)
	}
}

func TestExtractObject(t *testing.T) {
	obj, err := ExtractObject("```json\n{\"scores\": [], \"x\": null}\n```")
	require.NoError(t, err)
	assert.Len(t, obj, 2)

	_, err = ExtractObject(`[1, 2, 3]`)
	assert.ErrorIs(t, err, entity.ErrInvalidModelOutput)
}

func TestDraft_Progressive(t *testing.T) {
	pieces := []string{
		"```json\n{\"risk_",
		"items\": [{\"dimension\": \"人员\", \"failure_mode\": \"未培",
		"训\"}, {\"dimension\": \"机",
		"器\", \"failure_mode\": \"传感器漂移\"}",
		"]}\n```",
	}

	var d Draft
	var snapshots []any
	for _, p := range pieces {
		d.Write(p)
		if v, ok := d.Snapshot(); ok {
			snapshots = append(snapshots, v)
		}
	}

	require.NotEmpty(t, snapshots)
	assert.True(t, d.Complete())

	last := snapshots[len(snapshots)-1].(map[string]any)
	items := last["risk_items"].([]any)
	assert.Len(t, items, 2)
	assert.Equal(t, "传感器漂移", items[1].(map[string]any)["failure_mode"])
}

func TestDraft_CutBeforeIncompleteMember(t *testing.T) {
	var d Draft
	d.Write(`{"scores": [{"s": 9, "p": 3}, {"s": 6, "p"`)

	v, ok := d.Snapshot()
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"scores": []any{
			map[string]any{"s": float64(9), "p": float64(3)},
			map[string]any{"s": float64(6)},
		},
	}, v)

	_, ok = d.Snapshot()
	assert.False(t, ok, "unchanged draft is not reported twice")
}

func TestDraft_EscapedQuotes(t *testing.T) {
	var d Draft
	d.Write(`{"a": "say \"hi\", {not a bracket", "b": [1,`)

	v, ok := d.Snapshot()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": `say "hi", {not a bracket`, "b": []any{float64(1)}}, v)
}

func TestDraft_NothingYet(t *testing.T) {
	var d Draft
	d.Write("Sure, here is")

	_, ok := d.Snapshot()
	assert.False(t, ok)
}
