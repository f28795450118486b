package experts

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
)

const escalationSystemPrompt = `You are reviewing a supplier negotiation against a merchant's escalation triggers: natural-language conditions under which a human must take over.

Evaluate the supplier's message and the current negotiation state against each trigger. For every trigger, decide whether it fired. If any trigger fired, shouldEscalate must be true.

Assign severity:
- critical: the negotiation cannot safely continue without a human (e.g. fraud, discontinued product, compliance issue)
- high: a trigger clearly fired and warrants immediate review
- medium: a trigger plausibly fired but is ambiguous
- low: no trigger fired, or only a minor informational flag

Return a single JSON object: {"shouldEscalate": bool, "reasoning": string, "triggersEvaluated": [string], "triggeredTriggers": [string], "severity": "low"|"medium"|"high"|"critical"}.`

// EscalationInput is the per-call input to the escalation expert.
type EscalationInput struct {
	SupplierMessage     string
	EscalationTriggers  string
	ExtractedData       *quote.Data
	ConversationHistory string
	OrderContext        order.Context
}

// Escalator is the escalation expert (C6): evaluates merchant-defined
// triggers against the current negotiation state.
type Escalator struct {
	service   *llmservice.Service
	maxTokens int
}

// NewEscalator creates an escalation expert backed by the shared LLM
// service. maxTokens caps each call's output tokens; 0 leaves the
// provider's own default.
func NewEscalator(service *llmservice.Service, maxTokens int) *Escalator {
	return &Escalator{service: service, maxTokens: maxTokens}
}

// Analyze runs the escalation expert. If EscalationTriggers is empty
// or whitespace, it short-circuits with zero LLM calls. On LLM failure
// it fails closed: shouldEscalate=true, severity=high. It is always
// safe to involve a human.
func (e *Escalator) Analyze(ctx context.Context, in EscalationInput) Opinion {
	op := Opinion{ExpertName: NameEscalation, Type: OpinionEscalation}

	if strings.TrimSpace(in.EscalationTriggers) == "" {
		op.Escalation = &EscalationAnalysis{
			ShouldEscalate:    false,
			Reasoning:         "No escalation triggers configured",
			Severity:          SeverityLow,
			TriggersEvaluated: []string{},
			TriggeredTriggers: []string{},
		}
		return op
	}

	userMsg := buildEscalationUserMessage(in)
	res, err := e.service.Call(ctx, llm.Request{
		SystemPrompt: escalationSystemPrompt,
		UserMessage:  userMsg,
		MaxTokens:    e.maxTokens,
		OutputSchema: &llm.OutputSchema{Name: "evaluate_escalation", Schema: escalationSchema()},
	})
	op.fromResult(res)
	if err != nil {
		logger.Debug("escalation expert llm call failed, failing closed", "error", err)
		op.Escalation = &EscalationAnalysis{
			ShouldEscalate: true,
			Reasoning:      "escalation check failed",
			Severity:       SeverityHigh,
		}
		return op
	}

	parsed := parseEscalationResponse(res.Response.Content)
	op.Escalation = &parsed
	return op
}

func buildEscalationUserMessage(in EscalationInput) string {
	var b strings.Builder

	b.WriteString("## Escalation Triggers\n")
	b.WriteString(in.EscalationTriggers)
	b.WriteString("\n\n## Order Context\n")
	b.WriteString(fmt.Sprintf("SKU: %s (supplier SKU %s)\n", in.OrderContext.SKUName, in.OrderContext.SupplierSKU))

	if in.ExtractedData != nil && !quote.IsZero(*in.ExtractedData) {
		b.WriteString("\n## Current Extracted Data\n")
		b.WriteString(formatPriorData(*in.ExtractedData))
	}

	if in.ConversationHistory != "" {
		b.WriteString("\n## Conversation So Far\n")
		b.WriteString(in.ConversationHistory)
	}

	b.WriteString("\n\n## Latest Supplier Message\n")
	b.WriteString(in.SupplierMessage)

	return b.String()
}

func parseEscalationResponse(content string) EscalationAnalysis {
	fields, err := parser.ParseJSONObject(content)

	analysis := EscalationAnalysis{
		Severity: SeverityLow,
	}

	if err != nil {
		// Tolerant parse failed entirely; fail closed rather than
		// silently reporting "nothing fired".
		analysis.ShouldEscalate = true
		analysis.Severity = SeverityHigh
		analysis.Reasoning = "escalation response could not be parsed: " + err.Error()
		return analysis
	}

	if v, ok := fields["shouldEscalate"].(bool); ok {
		analysis.ShouldEscalate = v
	}
	if v, ok := fields["reasoning"].(string); ok {
		analysis.Reasoning = v
	}
	if sev, ok := fields["severity"].(string); ok {
		analysis.Severity = normalizeSeverity(sev)
	}
	analysis.TriggersEvaluated = toStringSlice(fields["triggersEvaluated"])
	analysis.TriggeredTriggers = toStringSlice(fields["triggeredTriggers"])

	return analysis
}

func normalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func escalationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"shouldEscalate":    map[string]any{"type": "boolean"},
			"reasoning":         map[string]any{"type": "string"},
			"triggersEvaluated": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"triggeredTriggers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"severity":          map[string]any{"type": "string", "enum": []any{"low", "medium", "high", "critical"}},
		},
		"required": []any{"shouldEscalate", "reasoning", "severity"},
	}
}
