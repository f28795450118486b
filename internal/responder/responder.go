// Package responder implements the response generator (C9): it turns
// a decided action into a concrete artifact, a structured approval,
// a counter-offer draft, a clarification email, or an escalation
// reason. Counter and clarify make one LLM call each; accept and
// escalate never do. The generator never throws: an LLM failure on
// counter/clarify degrades to an escalation reason instead.
package responder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
)

const counterSystemPrompt = `You draft counter-offer emails in a supplier negotiation. Given the supplier's quote and the merchant's target terms, write a firm but courteous email proposing the merchant's terms.

Return a single JSON object: {"emailText": string, "proposedTermsSummary": string}.`

const clarifySystemPrompt = `You draft clarification emails in a supplier negotiation, asking the supplier for information the negotiation cannot proceed without.

Ask about the most important missing item first. Keep it short and courteous.

Return the email body as plain text, no JSON, no preamble.`

// ProposedApproval is the accept branch's artifact.
type ProposedApproval struct {
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Total    float64 `json:"total"`
	Summary  string  `json:"summary"`
}

// CounterOffer is the counter branch's artifact.
type CounterOffer struct {
	DraftEmail    string `json:"draftEmail"`
	ProposedTerms string `json:"proposedTerms"`
}

// Input is the per-call input to the response generator.
type Input struct {
	Action               parser.Action
	ExtractedData        *quote.Data
	Reasoning            string
	OrderContext         order.Context
	NegotiationRules     string
	PrioritizedQuestions []string // from the needs expert, for clarify
	TargetTerms          string   // merchant's target terms, for counter
}

// Result is the response generator's output: exactly one of the four
// artifact fields is populated, matching Input.Action, except that a
// failed or unusable counter/clarify call populates EscalationReason
// instead. LLMCall is the
// underlying llmservice.Result for counter/clarify's single call, nil
// for accept/escalate which never call the LLM.
type Result struct {
	ProposedApproval   *ProposedApproval  `json:"proposedApproval,omitempty"`
	CounterOffer       *CounterOffer      `json:"counterOffer,omitempty"`
	ClarificationEmail string             `json:"clarificationEmail,omitempty"`
	EscalationReason   string             `json:"escalationReason,omitempty"`
	LLMCall            *llmservice.Result `json:"-"`
}

// Generator is the response generator (C9).
type Generator struct {
	service *llmservice.Service
}

// NewGenerator creates a response generator backed by the shared LLM service.
func NewGenerator(service *llmservice.Service) *Generator {
	return &Generator{service: service}
}

// Generate materializes in.Action into a concrete artifact.
func (g *Generator) Generate(ctx context.Context, in Input) Result {
	switch in.Action {
	case parser.ActionAccept:
		return Result{ProposedApproval: buildApproval(in)}
	case parser.ActionEscalate:
		return Result{EscalationReason: in.Reasoning}
	case parser.ActionCounter:
		return g.generateCounter(ctx, in)
	case parser.ActionClarify:
		return g.generateClarify(ctx, in)
	default:
		return Result{EscalationReason: fmt.Sprintf("unrecognized action %q, escalating", in.Action)}
	}
}

func buildApproval(in Input) *ProposedApproval {
	quantity := coerceQuantity(in.ExtractedData, in.OrderContext.QuantityRequested)

	var price float64
	if in.ExtractedData != nil && in.ExtractedData.QuotedPrice != nil {
		price = *in.ExtractedData.QuotedPrice
	}

	total := float64(quantity) * price

	return &ProposedApproval{
		Quantity: quantity,
		Price:    price,
		Total:    total,
		Summary:  fmt.Sprintf("Approved %d units at %.2f %s each, total %.2f.", quantity, price, currencyOrDefault(in.ExtractedData), total),
	}
}

func currencyOrDefault(d *quote.Data) string {
	if d == nil || d.QuotedPriceCurrency == "" {
		return "USD"
	}
	return d.QuotedPriceCurrency
}

// coerceQuantity prefers the supplier's stated availableQuantity;
// failing that, parses the order context's requested quantity; if
// neither is usable, it resolves to zero.
func coerceQuantity(d *quote.Data, quantityRequested string) int {
	if d != nil && d.AvailableQuantity != nil {
		return *d.AvailableQuantity
	}
	if quantityRequested != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(quantityRequested)); err == nil {
			return n
		}
	}
	return 0
}

func (g *Generator) generateCounter(ctx context.Context, in Input) Result {
	res, err := g.service.Call(ctx, llm.Request{
		SystemPrompt: counterSystemPrompt,
		UserMessage:  buildCounterPrompt(in),
		OutputSchema: &llm.OutputSchema{Name: "draft_counter", Schema: counterSchema()},
	})
	if err != nil {
		logger.Debug("response generator counter llm call failed, degrading to escalation", "error", err)
		return Result{EscalationReason: fmt.Sprintf("could not draft counter-offer: %v", err), LLMCall: &res}
	}

	fields, perr := parser.ParseJSONObject(res.Response.Content)
	if perr != nil {
		logger.Debug("response generator counter response unparseable, degrading to escalation", "error", perr)
		return Result{EscalationReason: fmt.Sprintf("counter-offer response could not be parsed: %v", perr), LLMCall: &res}
	}

	emailText, _ := fields["emailText"].(string)
	summary, _ := fields["proposedTermsSummary"].(string)
	if emailText == "" {
		return Result{EscalationReason: "counter-offer response had no email text", LLMCall: &res}
	}

	return Result{CounterOffer: &CounterOffer{DraftEmail: emailText, ProposedTerms: summary}, LLMCall: &res}
}

func buildCounterPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("## Negotiation Rules\n")
	b.WriteString(in.NegotiationRules)

	if in.TargetTerms != "" {
		b.WriteString("\n\n## Target Terms\n")
		b.WriteString(in.TargetTerms)
	}

	b.WriteString("\n\n## Current Quote\n")
	if in.ExtractedData != nil {
		b.WriteString(describeQuote(in.ExtractedData))
	} else {
		b.WriteString("(no quote extracted)")
	}

	b.WriteString(fmt.Sprintf("\n\n## Order\nSKU: %s (supplier SKU %s)\n", in.OrderContext.SKUName, in.OrderContext.SupplierSKU))

	return b.String()
}

func describeQuote(d *quote.Data) string {
	var b strings.Builder
	if d.QuotedPrice != nil {
		b.WriteString(fmt.Sprintf("Price: %.2f %s\n", *d.QuotedPrice, currencyOrDefault(d)))
	}
	if d.MOQ != nil {
		b.WriteString(fmt.Sprintf("MOQ: %d\n", *d.MOQ))
	}
	if d.LeadTimeMinDays != nil || d.LeadTimeMaxDays != nil {
		b.WriteString(fmt.Sprintf("Lead time: %v-%v days\n", intOrNil(d.LeadTimeMinDays), intOrNil(d.LeadTimeMaxDays)))
	}
	if d.PaymentTerms != nil {
		b.WriteString(fmt.Sprintf("Payment terms: %s\n", *d.PaymentTerms))
	}
	return b.String()
}

func intOrNil(v *int) any {
	if v == nil {
		return "unstated"
	}
	return *v
}

func counterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"emailText":            map[string]any{"type": "string"},
			"proposedTermsSummary": map[string]any{"type": "string"},
		},
		"required": []any{"emailText", "proposedTermsSummary"},
	}
}

func (g *Generator) generateClarify(ctx context.Context, in Input) Result {
	res, err := g.service.Call(ctx, llm.Request{
		SystemPrompt: clarifySystemPrompt,
		UserMessage:  buildClarifyPrompt(in),
	})
	if err != nil {
		logger.Debug("response generator clarify llm call failed, degrading to escalation", "error", err)
		return Result{EscalationReason: fmt.Sprintf("could not draft clarification email: %v", err), LLMCall: &res}
	}

	email := strings.TrimSpace(res.Response.Content)
	if email == "" {
		return Result{EscalationReason: "clarification email response was empty", LLMCall: &res}
	}

	return Result{ClarificationEmail: email, LLMCall: &res}
}

func buildClarifyPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("## Questions To Ask, In Priority Order\n")
	if len(in.PrioritizedQuestions) == 0 {
		b.WriteString("(none supplied: ask generally what additional detail is needed to proceed)\n")
	}
	for i, q := range in.PrioritizedQuestions {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
	}

	b.WriteString(fmt.Sprintf("\n## Order\nSKU: %s (supplier SKU %s)\n", in.OrderContext.SKUName, in.OrderContext.SupplierSKU))

	return b.String()
}
