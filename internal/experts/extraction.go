package experts

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
)

const extractionSystemPrompt = `You are a procurement analyst extracting structured quote data from a supplier's message in a commercial negotiation.

Extract these fields when present in the supplier's message:
- quotedPrice (number): the per-unit price quoted
- quotedPriceCurrency (string): ISO-4217 currency code; default to USD if unstated
- availableQuantity (integer): units the supplier has available
- moq (integer): minimum order quantity
- leadTimeMinDays / leadTimeMaxDays (integer): lead time bounds in days
- paymentTerms (string): e.g. "NET 30"
- validityPeriod (string): how long the quote is valid
- confidence (number 0-1): how confident you are in this extraction overall

Rules:
1. Only extract what the message actually states; use null for anything not mentioned.
2. High confidence (>0.8) requires the field to be stated explicitly and unambiguously.
3. Low confidence (<0.5) applies when you are inferring rather than reading a literal statement.
4. Return a single JSON object with exactly these fields, nothing else.`

// ExtractionInput is the per-call input to the extraction expert.
type ExtractionInput struct {
	SupplierMessage     string
	ConversationHistory string
	PriorExtractedData  *quote.Data
}

// Extractor is the extraction expert (C5): pulls quote fields out of
// one supplier message, optionally refining a prior turn's extraction.
type Extractor struct {
	service   *llmservice.Service
	maxTokens int
}

// NewExtractor creates an extraction expert backed by the shared LLM
// service. maxTokens caps each call's output tokens; 0 leaves the
// provider's own default.
func NewExtractor(service *llmservice.Service, maxTokens int) *Extractor {
	return &Extractor{service: service, maxTokens: maxTokens}
}

// Analyze runs the extraction expert. It never returns an error: LLM
// or parse failure is encoded in the returned Opinion's analysis.
func (e *Extractor) Analyze(ctx context.Context, in ExtractionInput) Opinion {
	op := Opinion{ExpertName: NameExtraction, Type: OpinionExtraction}

	userMsg := buildExtractionUserMessage(in)
	res, err := e.service.Call(ctx, llm.Request{
		SystemPrompt: extractionSystemPrompt,
		UserMessage:  userMsg,
		MaxTokens:    e.maxTokens,
		OutputSchema: &llm.OutputSchema{Name: "extract_quote_data", Schema: extractionSchema()},
	})
	op.fromResult(res)
	if err != nil {
		logger.Debug("extraction expert llm call failed", "error", err)
		op.Extraction = &ExtractionAnalysis{Success: false, Error: err.Error()}
		return op
	}

	parsed := parser.ParseExtraction(res.Response.Content)
	if !parsed.Success {
		op.Extraction = &ExtractionAnalysis{Success: false, Error: parsed.Error}
		return op
	}

	op.Extraction = &ExtractionAnalysis{
		Success:       true,
		Confidence:    parsed.Confidence,
		ExtractedData: parsed.Data,
		Notes:         parsed.Notes,
	}
	return op
}

func buildExtractionUserMessage(in ExtractionInput) string {
	var b strings.Builder

	if in.PriorExtractedData != nil && !quote.IsZero(*in.PriorExtractedData) {
		b.WriteString("## Previously Extracted Data\n")
		b.WriteString(formatPriorData(*in.PriorExtractedData))
		b.WriteString("\n\nRefine or extend this with anything new in the latest message below; do not drop fields the new message doesn't mention.\n\n")
	}

	if in.ConversationHistory != "" {
		b.WriteString("## Conversation So Far\n")
		b.WriteString(in.ConversationHistory)
		b.WriteString("\n\n")
	}

	b.WriteString("## Latest Supplier Message\n")
	b.WriteString(in.SupplierMessage)

	return b.String()
}

func formatPriorData(d quote.Data) string {
	var b strings.Builder
	if d.QuotedPrice != nil {
		b.WriteString(fmt.Sprintf("quotedPrice: %v %s\n", *d.QuotedPrice, d.QuotedPriceCurrency))
	}
	if d.AvailableQuantity != nil {
		b.WriteString(fmt.Sprintf("availableQuantity: %v\n", *d.AvailableQuantity))
	}
	if d.MOQ != nil {
		b.WriteString(fmt.Sprintf("moq: %v\n", *d.MOQ))
	}
	if d.LeadTimeMinDays != nil || d.LeadTimeMaxDays != nil {
		b.WriteString(fmt.Sprintf("leadTimeMinDays: %v, leadTimeMaxDays: %v\n", intOrNil(d.LeadTimeMinDays), intOrNil(d.LeadTimeMaxDays)))
	}
	if d.PaymentTerms != nil {
		b.WriteString(fmt.Sprintf("paymentTerms: %v\n", *d.PaymentTerms))
	}
	if d.ValidityPeriod != nil {
		b.WriteString(fmt.Sprintf("validityPeriod: %v\n", *d.ValidityPeriod))
	}
	return b.String()
}

func intOrNil(v *int) any {
	if v == nil {
		return "null"
	}
	return *v
}

func extractionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quotedPrice":         map[string]any{"type": []string{"number", "null"}},
			"quotedPriceCurrency": map[string]any{"type": "string"},
			"availableQuantity":   map[string]any{"type": []string{"integer", "null"}},
			"moq":                 map[string]any{"type": []string{"integer", "null"}},
			"leadTimeMinDays":     map[string]any{"type": []string{"integer", "null"}},
			"leadTimeMaxDays":     map[string]any{"type": []string{"integer", "null"}},
			"paymentTerms":        map[string]any{"type": []string{"string", "null"}},
			"validityPeriod":      map[string]any{"type": []string{"string", "null"}},
			"confidence":          map[string]any{"type": "number"},
		},
		"required": []any{"confidence"},
	}
}
