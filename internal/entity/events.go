package entity

// Stage is one step of the report workflow
type Stage string

const (
	StageContext              Stage = "context"
	StageHazardIdentification Stage = "hazard_identification"
	StageMappingValidation    Stage = "mapping_validation"
	StageFMEAScoring          Stage = "fmea_scoring"
	StageActionGeneration     Stage = "action_generation"
	StageControlPlan          Stage = "control_plan"
	StageRendering            Stage = "rendering"
)

// Stages lists the workflow stages in execution order.
var Stages = []Stage{
	StageContext,
	StageHazardIdentification,
	StageMappingValidation,
	StageFMEAScoring,
	StageActionGeneration,
	StageControlPlan,
	StageRendering,
}

// EventType is the tag of a WorkflowEvent
type EventType string

const (
	EventStart           EventType = "start"
	EventStep            EventType = "step"
	EventLLMDelta        EventType = "llm_delta"
	EventDelta           EventType = "delta"
	EventUsage           EventType = "usage"
	EventContextStage    EventType = "context_stage"
	EventContextEvidence EventType = "context_evidence"
	EventDone            EventType = "done"
	EventError           EventType = "error"
)

// StepStatus is the status carried by step events
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepDone      StepStatus = "done"
	StepError     StepStatus = "error"
	StepCancelled StepStatus = "cancelled"
)

// WorkflowEvent is the tagged union of everything a run reports.
// Only the fields belonging to Type are set.
type WorkflowEvent struct {
	Type    EventType        `json:"type"`
	RunID   string           `json:"run_id,omitempty"`
	Step    Stage            `json:"step,omitempty"`
	Status  StepStatus       `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
	Delta   string           `json:"delta,omitempty"`
	Draft   any              `json:"draft,omitempty"`
	Usage   *TokenUsage      `json:"usage,omitempty"`
	Items   []EvidenceChunk  `json:"items,omitempty"`
	Report  *GeneratedReport `json:"report,omitempty"`
}

func NewStartEvent(runID string) WorkflowEvent {
	return WorkflowEvent{Type: EventStart, RunID: runID}
}

func NewStepEvent(step Stage, status StepStatus, message string) WorkflowEvent {
	return WorkflowEvent{Type: EventStep, Step: step, Status: status, Message: message}
}

func NewLLMDeltaEvent(step Stage, delta string, draft any) WorkflowEvent {
	return WorkflowEvent{Type: EventLLMDelta, Step: step, Delta: delta, Draft: draft}
}

func NewDeltaEvent(delta string) WorkflowEvent {
	return WorkflowEvent{Type: EventDelta, Delta: delta}
}

func NewUsageEvent(usage TokenUsage) WorkflowEvent {
	return WorkflowEvent{Type: EventUsage, Usage: &usage}
}

func NewContextStageEvent(message string) WorkflowEvent {
	return WorkflowEvent{Type: EventContextStage, Message: message}
}

func NewContextEvidenceEvent(items []EvidenceChunk) WorkflowEvent {
	if items == nil {
		items = []EvidenceChunk{}
	}
	return WorkflowEvent{Type: EventContextEvidence, Items: items}
}

func NewDoneEvent(report *GeneratedReport) WorkflowEvent {
	usage := report.Usage
	return WorkflowEvent{Type: EventDone, Usage: &usage, Report: report}
}

func NewErrorEvent(message string) WorkflowEvent {
	return WorkflowEvent{Type: EventError, Message: message}
}
