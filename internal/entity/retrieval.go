package entity

// Chunk is a segment of a source text
type Chunk struct {
	Content  string   `json:"content"`
	Category Category `json:"category"`
	Filename *string  `json:"filename"`
}

// EvidenceChunk is a chunk scored against the run query
type EvidenceChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// RetrievalMeta is a diagnostic snapshot of the context build
type RetrievalMeta struct {
	UsedEmbedding       bool `json:"usedEmbedding"`
	Degraded            bool `json:"degraded"`
	SOPTextCount        int  `json:"sopTextCount"`
	LiteratureTextCount int  `json:"literatureTextCount"`
	EvidenceChunkCount  int  `json:"evidenceChunkCount"`
}

// WorkflowContext is built once at the start of a run and never modified afterwards
type WorkflowContext struct {
	Title                string
	Scope                string
	Background           string
	Objective            string
	TemplateRequirements string
	SOPEvidence          string
	LiteratureEvidence   string
	Evidence             []EvidenceChunk
	Meta                 RetrievalMeta
}

// Report returns the serialisable form of the context.
func (c *WorkflowContext) Report() ReportContext {
	evidence := c.Evidence
	if evidence == nil {
		evidence = []EvidenceChunk{}
	}
	return ReportContext{
		Title:                c.Title,
		Scope:                c.Scope,
		Background:           c.Background,
		Objective:            c.Objective,
		TemplateRequirements: c.TemplateRequirements,
		Evidence:             evidence,
		Retrieval:            c.Meta,
	}
}
