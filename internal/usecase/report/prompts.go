package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/futig/risk-report-backend/internal/entity"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptName identifies a stage prompt in the catalogue
type PromptName string

const (
	PromptHazardFiveFactors PromptName = "hazard_five_factors"
	PromptHazardProcessFlow PromptName = "hazard_process_flow"
	PromptFMEAScoring       PromptName = "fmea_scoring"
	PromptActionGeneration  PromptName = "action_generation"
	PromptControlPlan       PromptName = "control_plan"
	PromptRendering         PromptName = "rendering"
)

var requiredPrompts = []PromptName{
	PromptHazardFiveFactors,
	PromptHazardProcessFlow,
	PromptFMEAScoring,
	PromptActionGeneration,
	PromptControlPlan,
	PromptRendering,
}

// PromptInput is the data every prompt template is rendered with
type PromptInput struct {
	Title                string
	Scope                string
	Background           string
	Objective            string
	RiskMethod           string
	EvalTool             string
	TemplateRequirements string
	SOPEvidence          string
	LiteratureEvidence   string
	ProcessSteps         []entity.ProcessStep
	RiskItemsJSON        string
	MeasuresJSON         string
	PlanJSON             string
	Today                string
}

type promptDef struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type promptTemplate struct {
	system *template.Template
	user   *template.Template
}

// Prompts is the compiled stage prompt catalogue
type Prompts struct {
	templates map[PromptName]promptTemplate
}

// DefaultPrompts compiles the embedded catalogue.
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts compiles a YAML catalogue mapping prompt names to system/user templates.
func ParsePrompts(data []byte) (*Prompts, error) {
	var defs map[PromptName]promptDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse prompt catalogue: %w", err)
	}

	p := &Prompts{templates: make(map[PromptName]promptTemplate, len(defs))}
	for _, name := range requiredPrompts {
		def, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("prompt %s is missing", name)
		}
		if strings.TrimSpace(def.System) == "" || strings.TrimSpace(def.User) == "" {
			return nil, fmt.Errorf("prompt %s needs both system and user text", name)
		}

		sysT, err := template.New("system").Option("missingkey=zero").Parse(def.System)
		if err != nil {
			return nil, fmt.Errorf("%s system template parse: %w", name, err)
		}
		userT, err := template.New("user").Option("missingkey=zero").Parse(def.User)
		if err != nil {
			return nil, fmt.Errorf("%s user template parse: %w", name, err)
		}
		p.templates[name] = promptTemplate{system: sysT, user: userT}
	}

	return p, nil
}

// Messages renders the named prompt into a system and a user chat message.
func (p *Prompts) Messages(name PromptName, in PromptInput) ([]entity.ChatMessage, error) {
	t, ok := p.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown prompt %q", entity.ErrInvalidParameter, name)
	}

	system, err := render(t.system, in)
	if err != nil {
		return nil, fmt.Errorf("render %s system prompt: %w", name, err)
	}
	user, err := render(t.user, in)
	if err != nil {
		return nil, fmt.Errorf("render %s user prompt: %w", name, err)
	}

	return []entity.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil
}

func render(t *template.Template, in PromptInput) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
