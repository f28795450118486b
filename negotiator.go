// Package negotiator is the public entry point for the negotiation
// pipeline: it wires the conversation context, the three experts, the
// orchestrator, and the response generator behind two synchronous
// calls, GenerateInitialEmail and Process.
package negotiator

import (
	"context"
	"fmt"

	"github.com/dealbroker/negotiator/internal/experts"
	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/orchestrator"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
	"github.com/dealbroker/negotiator/internal/responder"
)

const draftEmailSystemPrompt = `You write the first outreach email to a supplier to open a negotiation for a specific SKU.

Be brief and professional. If the negotiation style is "ask_for_quote", request pricing, MOQ, and lead time without stating a target price. If it is "state_price_upfront", state the merchant's last known price as the opening anchor and ask the supplier to confirm or counter.

Return a single JSON object: {"subjectLine": string, "emailText": string}.`

// ExpertOpinion re-exports the orchestrator's opinion type so callers
// don't need to import internal/experts directly.
type ExpertOpinion = experts.Opinion

// OrderContext re-exports the order context type for callers.
type OrderContext = order.Context

// ExtractedQuoteData re-exports the quote data type for callers.
type ExtractedQuoteData = quote.Data

// Action is the final decision: accept, counter, clarify, or escalate.
type Action = parser.Action

// AgentDecision is the pipeline's output for one Process call.
type AgentDecision struct {
	Action             Action              `json:"action"`
	Reasoning          string              `json:"reasoning"`
	ExtractedData      *ExtractedQuoteData `json:"extractedData,omitempty"`
	ExpertOpinions     []ExpertOpinion     `json:"expertOpinions"`
	OrchestratorTrace  orchestrator.Trace  `json:"orchestratorTrace"`
	ResponseGeneration *responder.Result   `json:"responseGeneration,omitempty"`

	ProposedApproval   *responder.ProposedApproval `json:"proposedApproval,omitempty"`
	CounterOffer       *responder.CounterOffer     `json:"counterOffer,omitempty"`
	ClarificationEmail string                      `json:"clarificationEmail,omitempty"`
	EscalationReason   string                      `json:"escalationReason,omitempty"`

	TotalLLMCalls     int   `json:"totalLLMCalls"`
	TotalInputTokens  int   `json:"totalInputTokens"`
	TotalOutputTokens int   `json:"totalOutputTokens"`
	TotalLatencyMs    int64 `json:"totalLatencyMs"`
}

// InitialEmail is the result of GenerateInitialEmail.
type InitialEmail struct {
	SubjectLine  string `json:"subjectLine"`
	EmailText    string `json:"emailText"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	LatencyMs    int64  `json:"latencyMs"`
}

// Request is the input to Process.
type Request struct {
	SupplierMessage      string
	NegotiationRules     string
	EscalationTriggers   string
	OrderContext         order.Context
	ConversationHistory  string
	PriorExtractedData   *quote.Data
	MerchantInstructions string
	TargetTerms          string // merchant's target terms, embedded in a counter-offer prompt
}

// Pipeline wires every component together and owns one instance of
// each expert plus the shared, stateless LLM service, the way the
// teacher's Refyne owns one cleaner.Chain and one extractor.Extractor.
type Pipeline struct {
	service      *llmservice.Service
	orchestrator *orchestrator.Orchestrator
	responder    *responder.Generator
}

// New creates a Pipeline backed by primary (required) and fallback
// (optional, pass nil to disable) LLM providers. expertMaxTokens caps
// the output tokens of every expert call; 0 leaves the provider's own
// default.
func New(primary, fallback llm.Provider, serviceCfg llmservice.Config, maxIterations, expertMaxTokens int) *Pipeline {
	service := llmservice.New(primary, fallback, serviceCfg)

	extractor := experts.NewExtractor(service, expertMaxTokens)
	escalator := experts.NewEscalator(service, expertMaxTokens)
	needs := experts.NewNeedsAssessor(service, expertMaxTokens)

	return &Pipeline{
		service:      service,
		orchestrator: orchestrator.New(service, extractor, escalator, needs, maxIterations),
		responder:    responder.NewGenerator(service),
	}
}

// GenerateInitialEmail drafts the first outreach message for an order
// context. It makes a single LLM call, with no experts and no
// orchestration loop: used for first outreach only.
func (p *Pipeline) GenerateInitialEmail(ctx context.Context, oc order.Context) (InitialEmail, error) {
	res, err := p.service.Call(ctx, llm.Request{
		SystemPrompt: draftEmailSystemPrompt,
		UserMessage:  buildDraftEmailPrompt(oc),
	})
	if err != nil {
		return InitialEmail{}, err
	}

	fields, perr := parser.ParseJSONObject(res.Response.Content)
	if perr != nil {
		return InitialEmail{}, fmt.Errorf("initial email response could not be parsed: %w", perr)
	}

	subject, _ := fields["subjectLine"].(string)
	body, _ := fields["emailText"].(string)

	return InitialEmail{
		SubjectLine:  subject,
		EmailText:    body,
		Provider:     res.Response.Provider,
		Model:        res.Response.Model,
		InputTokens:  res.Response.InputTokens,
		OutputTokens: res.Response.OutputTokens,
		LatencyMs:    res.Response.LatencyMs,
	}, nil
}

func buildDraftEmailPrompt(oc order.Context) string {
	msg := fmt.Sprintf("SKU: %s (supplier SKU %s)\n", oc.SKUName, oc.SupplierSKU)
	if oc.QuantityRequested != "" {
		msg += fmt.Sprintf("Quantity requested: %s\n", oc.QuantityRequested)
	}
	if oc.LastKnownPrice != nil {
		msg += fmt.Sprintf("Last known price: %.2f\n", *oc.LastKnownPrice)
	}
	if oc.NegotiationStyle != "" {
		msg += fmt.Sprintf("Negotiation style: %s\n", oc.NegotiationStyle)
	}
	return msg
}

// Process drives the orchestrator and response generator end to end,
// aggregating every LLM call's accounting into the returned
// AgentDecision. It never throws AllProvidersExhausted in practice:
// every expert and the orchestrator itself degrade to action=escalate
// on total LLM failure rather than propagating an error (see DESIGN.md
// for the all-providers-fail resolution).
func (p *Pipeline) Process(ctx context.Context, req Request) AgentDecision {
	orchResult := p.orchestrator.Run(ctx, orchestrator.Input{
		SupplierMessage:      req.SupplierMessage,
		NegotiationRules:     req.NegotiationRules,
		EscalationTriggers:   req.EscalationTriggers,
		OrderContext:         req.OrderContext,
		ConversationHistory:  req.ConversationHistory,
		PriorExtractedData:   req.PriorExtractedData,
		MerchantInstructions: req.MerchantInstructions,
	})

	extracted := latestExtraction(orchResult.ExpertOpinions, req.PriorExtractedData)
	questions := latestQuestions(orchResult.ExpertOpinions)

	genResult := p.responder.Generate(ctx, responder.Input{
		Action:               orchResult.Action,
		ExtractedData:        extracted,
		Reasoning:            orchResult.Reasoning,
		OrderContext:         req.OrderContext,
		NegotiationRules:     req.NegotiationRules,
		PrioritizedQuestions: questions,
		TargetTerms:          req.TargetTerms,
	})

	decision := AgentDecision{
		Action:             orchResult.Action,
		Reasoning:          orchResult.Reasoning,
		ExtractedData:      extracted,
		ExpertOpinions:     orchResult.ExpertOpinions,
		OrchestratorTrace:  orchResult.Trace,
		ResponseGeneration: &genResult,
		ProposedApproval:   genResult.ProposedApproval,
		CounterOffer:       genResult.CounterOffer,
		ClarificationEmail: genResult.ClarificationEmail,
		EscalationReason:   genResult.EscalationReason,
	}

	applyAccounting(&decision, orchResult.ExpertOpinions, orchResult.SynthesisCalls, genResult.LLMCall)
	return decision
}

func latestExtraction(opinions []experts.Opinion, fallback *quote.Data) *quote.Data {
	for _, op := range opinions {
		if op.Type == experts.OpinionExtraction && op.Extraction != nil && op.Extraction.ExtractedData != nil {
			return op.Extraction.ExtractedData
		}
	}
	return fallback
}

func latestQuestions(opinions []experts.Opinion) []string {
	for _, op := range opinions {
		if op.Type == experts.OpinionNeeds && op.Needs != nil {
			return op.Needs.PrioritizedQuestions
		}
	}
	return nil
}

// applyAccounting sums token/latency totals across every logical LLM
// call made during the invocation: the three expert calls, every
// orchestrator synthesis round, and the response generator's single
// counter/clarify call if one was made. totalLLMCalls counts
// invocations, not attempts; totals sum only the successful attempt of
// each invocation, per the Open Question resolution in DESIGN.md.
func applyAccounting(decision *AgentDecision, opinions []experts.Opinion, synthesisCalls []llmservice.Result, responderCall *llmservice.Result) {
	for _, op := range opinions {
		addInvocationAccounting(decision, op.Attempts, op.InputTokens, op.OutputTokens, op.LatencyMs)
	}
	for _, syn := range synthesisCalls {
		addInvocationAccounting(decision, syn.Attempts, syn.Response.InputTokens, syn.Response.OutputTokens, syn.Response.LatencyMs)
	}
	if responderCall != nil {
		addInvocationAccounting(decision, responderCall.Attempts, responderCall.Response.InputTokens, responderCall.Response.OutputTokens, responderCall.Response.LatencyMs)
	}
}

func addInvocationAccounting(decision *AgentDecision, attempts []llmservice.Attempt, inputTokens, outputTokens int, latencyMs int64) {
	if len(attempts) == 0 {
		return
	}
	decision.TotalLLMCalls++

	succeeded := false
	for _, a := range attempts {
		if a.Success {
			succeeded = true
			break
		}
	}
	if succeeded {
		decision.TotalInputTokens += inputTokens
		decision.TotalOutputTokens += outputTokens
		decision.TotalLatencyMs += latencyMs
	}
}
