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

const needsSystemPrompt = `You identify what information is still missing before a supplier negotiation can be decided, and rank follow-up questions by priority.

Priority is relative to the merchant's negotiation rules: a field the rules depend on (e.g. the rules mention "lead time" or "price") outranks an otherwise-interesting field the rules never reference.

Return a single JSON object: {"missingFields": [string], "prioritizedQuestions": [string], "reasoning": string}. Order both arrays most-important first.`

// NeedsInput is the per-call input to the needs expert.
type NeedsInput struct {
	ExtractedData       *quote.Data
	NegotiationRules    string
	OrderContext        order.Context
	AdditionalQuestion  string
	ConversationHistory string
}

// NeedsAssessor is the needs expert (C7): identifies missing fields
// and ranks follow-up questions relative to the active negotiation rules.
type NeedsAssessor struct {
	service   *llmservice.Service
	maxTokens int
}

// NewNeedsAssessor creates a needs expert backed by the shared LLM
// service. maxTokens caps each call's output tokens; 0 leaves the
// provider's own default.
func NewNeedsAssessor(service *llmservice.Service, maxTokens int) *NeedsAssessor {
	return &NeedsAssessor{service: service, maxTokens: maxTokens}
}

// Analyze runs the needs expert. On LLM failure it returns empty
// arrays plus a reasoning note, non-fatal.
func (n *NeedsAssessor) Analyze(ctx context.Context, in NeedsInput) Opinion {
	op := Opinion{ExpertName: NameNeeds, Type: OpinionNeeds}

	userMsg := buildNeedsUserMessage(in)
	res, err := n.service.Call(ctx, llm.Request{
		SystemPrompt: needsSystemPrompt,
		UserMessage:  userMsg,
		MaxTokens:    n.maxTokens,
		OutputSchema: &llm.OutputSchema{Name: "analyze_needs", Schema: needsSchema()},
	})
	op.fromResult(res)
	if err != nil {
		logger.Debug("needs expert llm call failed", "error", err)
		op.Needs = &NeedsAnalysis{
			MissingFields:        []string{},
			PrioritizedQuestions: []string{},
			Reasoning:            "needs assessment failed: " + err.Error(),
		}
		return op
	}

	fields, err := parser.ParseJSONObject(res.Response.Content)
	if err != nil {
		op.Needs = &NeedsAnalysis{
			MissingFields:        []string{},
			PrioritizedQuestions: []string{},
			Reasoning:            "needs response could not be parsed: " + err.Error(),
		}
		return op
	}

	analysis := NeedsAnalysis{
		MissingFields:        toStringSlice(fields["missingFields"]),
		PrioritizedQuestions: toStringSlice(fields["prioritizedQuestions"]),
	}
	if v, ok := fields["reasoning"].(string); ok {
		analysis.Reasoning = v
	}
	op.Needs = &analysis
	return op
}

func buildNeedsUserMessage(in NeedsInput) string {
	var b strings.Builder

	b.WriteString("## Negotiation Rules\n")
	b.WriteString(in.NegotiationRules)
	b.WriteString("\n\n## Order Context\n")
	b.WriteString(fmt.Sprintf("SKU: %s (supplier SKU %s)\n", in.OrderContext.SKUName, in.OrderContext.SupplierSKU))

	b.WriteString("\n## Currently Extracted Data\n")
	if in.ExtractedData == nil || quote.IsZero(*in.ExtractedData) {
		b.WriteString("No data extracted\n")
	} else {
		b.WriteString(formatPriorData(*in.ExtractedData))
	}

	if in.ConversationHistory != "" {
		b.WriteString("\n## Conversation So Far\n")
		b.WriteString(in.ConversationHistory)
		b.WriteString("\n")
	}

	if in.AdditionalQuestion != "" {
		b.WriteString("\n## Orchestrator Follow-up Question\n")
		b.WriteString(in.AdditionalQuestion)
	}

	return b.String()
}

func needsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"missingFields":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"prioritizedQuestions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"reasoning":            map[string]any{"type": "string"},
		},
		"required": []any{"missingFields", "prioritizedQuestions", "reasoning"},
	}
}
