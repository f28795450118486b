// Package experts implements the three specialist LLM analyses that
// the orchestrator fans out to on every turn: extraction, escalation,
// and needs-assessment. Every expert holds a reference to the shared,
// stateless *llmservice.Service and never returns an error from its
// public method: failure is always encoded inside the returned
// ExpertOpinion.
package experts

import (
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/quote"
)

// OpinionType tags which analysis produced an ExpertOpinion.
type OpinionType string

const (
	OpinionExtraction OpinionType = "extraction"
	OpinionEscalation OpinionType = "escalation"
	OpinionNeeds      OpinionType = "needs"
)

// Name identifies an expert for orchestrator dispatch and logging.
type Name string

const (
	NameExtraction Name = "extraction"
	NameEscalation Name = "escalation"
	NameNeeds      Name = "needs"
)

// ExtractionAnalysis is the typed payload of an extraction opinion.
type ExtractionAnalysis struct {
	Success       bool        `json:"success"`
	Confidence    float64     `json:"confidence"`
	ExtractedData *quote.Data `json:"extractedData,omitempty"`
	Notes         []string    `json:"notes,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// EscalationAnalysis is the typed payload of an escalation opinion.
type EscalationAnalysis struct {
	ShouldEscalate    bool     `json:"shouldEscalate"`
	Reasoning         string   `json:"reasoning"`
	Severity          Severity `json:"severity"`
	TriggersEvaluated []string `json:"triggersEvaluated"`
	TriggeredTriggers []string `json:"triggeredTriggers"`
}

// Severity ranks how urgently an escalation needs human attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsHighOrCritical reports whether s forces the fail-safe escalation
// precedence rule: a high-or-critical escalation opinion overrides
// any other expert's decision.
func (s Severity) IsHighOrCritical() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// NeedsAnalysis is the typed payload of a needs-assessment opinion.
type NeedsAnalysis struct {
	MissingFields        []string `json:"missingFields"`
	PrioritizedQuestions []string `json:"prioritizedQuestions"`
	Reasoning            string   `json:"reasoning"`
}

// Opinion is the common envelope every expert returns: accounting
// fields shared across all three analyses plus exactly one populated
// analysis payload, selected by Type.
type Opinion struct {
	ExpertName   Name                 `json:"expertName"`
	Type         OpinionType          `json:"type"`
	Provider     string               `json:"provider"`
	Model        string               `json:"model"`
	InputTokens  int                  `json:"inputTokens"`
	OutputTokens int                  `json:"outputTokens"`
	LatencyMs    int64                `json:"latencyMs"`
	Attempts     []llmservice.Attempt `json:"attempts"`

	Extraction *ExtractionAnalysis `json:"extraction,omitempty"`
	Escalation *EscalationAnalysis `json:"escalation,omitempty"`
	Needs      *NeedsAnalysis      `json:"needs,omitempty"`
}

// fromResult copies the LLM accounting fields off an llmservice.Result
// onto an in-progress Opinion. After a failed call the response fields
// are zero and only the attempt log carries information.
func (o *Opinion) fromResult(res llmservice.Result) {
	o.Provider = res.Response.Provider
	o.Model = res.Response.Model
	o.InputTokens = res.Response.InputTokens
	o.OutputTokens = res.Response.OutputTokens
	o.LatencyMs = res.Response.LatencyMs
	o.Attempts = res.Attempts
}
