package entity

// Category is the kind of uploaded source document
type Category string

const (
	CategorySOP        Category = "sop"
	CategoryLiterature Category = "literature"
)

// RiskMethod selects the hazard identification template
type RiskMethod string

const (
	RiskMethodFiveFactors RiskMethod = "五因素法"
	RiskMethodProcessFlow RiskMethod = "流程法"
)

// SourceText is extracted text of one uploaded document
type SourceText struct {
	Text     string   `json:"text"`
	Filename *string  `json:"filename"`
	Category Category `json:"category"`
}

// SourceTexts groups source documents by category
type SourceTexts struct {
	SOP        []SourceText `json:"sop"`
	Literature []SourceText `json:"literature"`
}

// All returns every source text with its category set from the group it belongs to.
func (s SourceTexts) All() []SourceText {
	all := make([]SourceText, 0, len(s.SOP)+len(s.Literature))
	for _, t := range s.SOP {
		t.Category = CategorySOP
		all = append(all, t)
	}
	for _, t := range s.Literature {
		t.Category = CategoryLiterature
		all = append(all, t)
	}
	return all
}

// ProcessStep is one step of the process flow used by the process-flow method
type ProcessStep struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReportInput is everything a report run is generated from
type ReportInput struct {
	Title           string        `json:"title"`
	Scope           string        `json:"scope"`
	Background      string        `json:"background"`
	Objective       string        `json:"objective"`
	RiskMethod      RiskMethod    `json:"riskMethod"`
	EvalTool        string        `json:"evalTool"`
	TemplateContent string        `json:"templateContent"`
	SourceTexts     SourceTexts   `json:"sourceTexts"`
	ProcessSteps    []ProcessStep `json:"processSteps,omitempty"`
	CallbackURL     string        `json:"callbackUrl,omitempty"`
}

// LLMConfig describes the chat-completion backend of a run
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// EmbeddingConfig describes the embeddings backend of a run
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// ModelContext is the model backend a run is executed against.
// Embedding is nil when retrieval should stay lexical.
type ModelContext struct {
	LLM       LLMConfig
	Embedding *EmbeddingConfig
}

// GeneratedReport is the final result of a run
type GeneratedReport struct {
	Markdown string     `json:"markdown"`
	JSON     ReportJSON `json:"json"`
	Usage    TokenUsage `json:"usage"`
}

// ReportJSON is the structured part of a generated report
type ReportJSON struct {
	Context           ReportContext      `json:"context"`
	RiskItems         []RiskItem         `json:"risk_items"`
	FMEARows          []ScoreRow         `json:"fmea_rows"`
	ScoredItems       []ScoredRiskItem   `json:"scored_items"`
	ControlMeasures   []ControlMeasure   `json:"control_measures"`
	Actions           []ActionPlanEntry  `json:"actions"`
	MappingValidation *MappingValidation `json:"mapping_validation"`
}

// ReportContext is the serialisable snapshot of a WorkflowContext
type ReportContext struct {
	Title                string          `json:"title"`
	Scope                string          `json:"scope"`
	Background           string          `json:"background"`
	Objective            string          `json:"objective"`
	TemplateRequirements string          `json:"template_requirements"`
	Evidence             []EvidenceChunk `json:"evidence"`
	Retrieval            RetrievalMeta   `json:"retrieval"`
}
