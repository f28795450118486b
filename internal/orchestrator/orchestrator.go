// Package orchestrator implements the synthesis component (C8) that
// gathers expert opinions and decides an action. It fans out to the
// three experts concurrently, synthesizes their opinions with a single
// LLM call, and loops a bounded number of times when the synthesis
// model requests another expert pass.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dealbroker/negotiator/internal/experts"
	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
)

// DefaultMaxIterations is the hard ceiling on synthesis rounds; at most
// DefaultMaxIterations-1 of them follow an expert re-invocation.
const DefaultMaxIterations = 2

const synthesisSystemPrompt = `You are the decision-making layer of a commercial negotiation agent. You receive opinions from three specialist analyses (extraction, escalation, and needs-assessment) plus the merchant's negotiation rules and standing instructions. Decide the overall action.

Respond with exactly these XML blocks, in this order:

<systematic_evaluation>
Walk through each expert opinion against the negotiation rules and merchant instructions.
</systematic_evaluation>

<decision>
State your reasoning, then end with a line of the exact form:
Overall Action: ACCEPT|COUNTER|CLARIFY|ESCALATE
</decision>

<request_followup>
Only include this block if you need one more expert pass before you can decide. Format: expert=needs|extraction|escalation; question=<your question>
</request_followup>

If escalation reported shouldEscalate=true with severity high or critical, you MUST choose ESCALATE.`

// Input is the orchestrator's per-invocation input.
type Input struct {
	SupplierMessage      string
	NegotiationRules     string
	EscalationTriggers   string
	OrderContext         order.Context
	ConversationHistory  string
	PriorExtractedData   *quote.Data
	MerchantInstructions string
}

// IterationTrace records one round of the synthesis loop.
type IterationTrace struct {
	SynthesisOutput   string `json:"synthesisOutput"`
	RequestedExpert   string `json:"requestedExpert,omitempty"`
	RequestedQuestion string `json:"requestedQuestion,omitempty"`
}

// Trace is the orchestrator's record of its own decision process,
// returned on every invocation regardless of outcome.
type Trace struct {
	Iterations      []IterationTrace `json:"iterations"`
	TotalIterations int              `json:"totalIterations"`
}

// Result is the orchestrator's output: the decided action, its
// reasoning, the final set of expert opinions, and the trace.
type Result struct {
	Action         parser.Action
	Reasoning      string
	ExpertOpinions []experts.Opinion
	Trace          Trace
	SynthesisCalls []llmservice.Result
}

// Orchestrator owns stateless references to the three experts and the
// shared LLM service it uses for its own synthesis call.
type Orchestrator struct {
	service       *llmservice.Service
	extractor     *experts.Extractor
	escalator     *experts.Escalator
	needs         *experts.NeedsAssessor
	maxIterations int
}

// New creates an orchestrator. maxIterations <= 0 defaults to
// DefaultMaxIterations.
func New(service *llmservice.Service, extractor *experts.Extractor, escalator *experts.Escalator, needs *experts.NeedsAssessor, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Orchestrator{service: service, extractor: extractor, escalator: escalator, needs: needs, maxIterations: maxIterations}
}

// Run executes the bounded fan-out/synthesize/follow-up loop and
// returns a decided action. It never returns an error: total LLM
// failure during synthesis is encoded as action=escalate with a
// diagnostic reasoning.
func (o *Orchestrator) Run(ctx context.Context, in Input) Result {
	opinions := o.initialFanOut(ctx, in)

	trace := Trace{}
	var synthesisCalls []llmservice.Result

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		synRes, err := o.service.Call(ctx, llm.Request{SystemPrompt: synthesisSystemPrompt, UserMessage: buildSynthesisPrompt(in, opinions)})
		synthesisCalls = append(synthesisCalls, synRes)
		trace.TotalIterations++

		if err != nil {
			logger.Debug("orchestrator synthesis call failed", "iteration", iteration, "error", err)
			trace.Iterations = append(trace.Iterations, IterationTrace{SynthesisOutput: ""})
			return Result{
				Action:         parser.ActionEscalate,
				Reasoning:      fmt.Sprintf("orchestrator synthesis failed: %v", err),
				ExpertOpinions: opinions,
				Trace:          trace,
				SynthesisCalls: synthesisCalls,
			}
		}
		synthesisContent := synRes.Response.Content

		it := IterationTrace{SynthesisOutput: synthesisContent}

		followupBlock, hasFollowup := parser.ExtractXMLTag(synthesisContent, "request_followup")
		if hasFollowup {
			if followup, ok := parser.ParseFollowup(followupBlock); ok && iteration < o.maxIterations-1 {
				it.RequestedExpert = followup.Expert
				it.RequestedQuestion = followup.Question
				trace.Iterations = append(trace.Iterations, it)

				opinions = o.reinvoke(ctx, in, opinions, followup)
				continue
			}
			logger.Debug("orchestrator follow-up requested but iteration budget exhausted", "iteration", iteration)
		}

		trace.Iterations = append(trace.Iterations, it)
		res := o.finalize(synthesisContent, opinions, trace)
		res.SynthesisCalls = synthesisCalls
		return res
	}

	// Ceiling exceeded: proceed with the best opinions in hand.
	res := o.finalize("", opinions, trace)
	res.SynthesisCalls = synthesisCalls
	return res
}

// initialFanOut invokes the three experts concurrently, collecting
// results into a pre-sized slice by index so the opinion order in the
// synthesis prompt is stable regardless of completion order.
func (o *Orchestrator) initialFanOut(ctx context.Context, in Input) []experts.Opinion {
	opinions := make([]experts.Opinion, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		opinions[0] = o.extractor.Analyze(ctx, experts.ExtractionInput{
			SupplierMessage:     in.SupplierMessage,
			ConversationHistory: in.ConversationHistory,
			PriorExtractedData:  in.PriorExtractedData,
		})
	}()
	go func() {
		defer wg.Done()
		opinions[1] = o.escalator.Analyze(ctx, experts.EscalationInput{
			SupplierMessage:     in.SupplierMessage,
			EscalationTriggers:  in.EscalationTriggers,
			ExtractedData:       in.PriorExtractedData,
			ConversationHistory: in.ConversationHistory,
			OrderContext:        in.OrderContext,
		})
	}()
	go func() {
		defer wg.Done()
		opinions[2] = o.needs.Analyze(ctx, experts.NeedsInput{
			ExtractedData:       in.PriorExtractedData,
			NegotiationRules:    in.NegotiationRules,
			OrderContext:        in.OrderContext,
			ConversationHistory: in.ConversationHistory,
		})
	}()

	wg.Wait()
	return opinions
}

// reinvoke re-runs only the named expert, replacing that expert's
// opinion in place so declared order is preserved. The synthesis
// model's follow-up question is passed to the needs expert only;
// extraction and escalation are re-run with the latest extracted data
// and do not receive the question.
func (o *Orchestrator) reinvoke(ctx context.Context, in Input, opinions []experts.Opinion, followup parser.FollowupRequest) []experts.Opinion {
	extracted := currentExtraction(opinions, in.PriorExtractedData)

	switch experts.Name(followup.Expert) {
	case experts.NameExtraction:
		opinions[0] = o.extractor.Analyze(ctx, experts.ExtractionInput{
			SupplierMessage:     in.SupplierMessage,
			ConversationHistory: in.ConversationHistory,
			PriorExtractedData:  extracted,
		})
	case experts.NameEscalation:
		opinions[1] = o.escalator.Analyze(ctx, experts.EscalationInput{
			SupplierMessage:     in.SupplierMessage,
			EscalationTriggers:  in.EscalationTriggers,
			ExtractedData:       extracted,
			ConversationHistory: in.ConversationHistory,
			OrderContext:        in.OrderContext,
		})
	case experts.NameNeeds:
		opinions[2] = o.needs.Analyze(ctx, experts.NeedsInput{
			ExtractedData:       extracted,
			NegotiationRules:    in.NegotiationRules,
			OrderContext:        in.OrderContext,
			AdditionalQuestion:  followup.Question,
			ConversationHistory: in.ConversationHistory,
		})
	default:
		logger.Debug("orchestrator follow-up named an unknown expert", "expert", followup.Expert)
	}

	return opinions
}

func currentExtraction(opinions []experts.Opinion, fallback *quote.Data) *quote.Data {
	if len(opinions) > 0 && opinions[0].Extraction != nil && opinions[0].Extraction.ExtractedData != nil {
		return opinions[0].Extraction.ExtractedData
	}
	return fallback
}

// buildSynthesisPrompt embeds every expert opinion, the negotiation
// rules, the merchant's standing instructions, the order context, and
// the full conversation into the single LLM call that decides an
// action.
func buildSynthesisPrompt(in Input, opinions []experts.Opinion) string {
	var b strings.Builder

	b.WriteString("## Order Context\n")
	b.WriteString(fmt.Sprintf("SKU: %s (supplier SKU %s)\n", in.OrderContext.SKUName, in.OrderContext.SupplierSKU))
	if in.OrderContext.QuantityRequested != "" {
		b.WriteString(fmt.Sprintf("Quantity requested: %s\n", in.OrderContext.QuantityRequested))
	}

	b.WriteString("\n## Negotiation Rules\n")
	b.WriteString(in.NegotiationRules)

	if in.MerchantInstructions != "" {
		b.WriteString("\n\n## Merchant Standing Instructions\n")
		b.WriteString(in.MerchantInstructions)
	}

	b.WriteString("\n\n## Conversation So Far\n")
	b.WriteString(in.ConversationHistory)

	b.WriteString("\n\n## Latest Supplier Message\n")
	b.WriteString(in.SupplierMessage)

	b.WriteString("\n\n## Expert Opinions\n")
	for _, op := range opinions {
		b.WriteString(formatOpinion(op))
		b.WriteString("\n")
	}

	return b.String()
}

func formatOpinion(op experts.Opinion) string {
	switch op.Type {
	case experts.OpinionExtraction:
		if op.Extraction == nil {
			return "### Extraction\n(no opinion)\n"
		}
		if !op.Extraction.Success {
			return fmt.Sprintf("### Extraction\nFAILED: %s\n", op.Extraction.Error)
		}
		return fmt.Sprintf("### Extraction (confidence %.2f)\n%s\n", op.Extraction.Confidence, describeData(op.Extraction.ExtractedData))
	case experts.OpinionEscalation:
		if op.Escalation == nil {
			return "### Escalation\n(no opinion)\n"
		}
		return fmt.Sprintf("### Escalation\nshouldEscalate=%v severity=%s\nreasoning: %s\ntriggered: %v\n",
			op.Escalation.ShouldEscalate, op.Escalation.Severity, op.Escalation.Reasoning, op.Escalation.TriggeredTriggers)
	case experts.OpinionNeeds:
		if op.Needs == nil {
			return "### Needs\n(no opinion)\n"
		}
		return fmt.Sprintf("### Needs\nmissing: %v\nquestions (priority order): %v\nreasoning: %s\n",
			op.Needs.MissingFields, op.Needs.PrioritizedQuestions, op.Needs.Reasoning)
	default:
		return ""
	}
}

func describeData(d *quote.Data) string {
	if d == nil {
		return "(nothing extracted)"
	}
	var parts []string
	if d.QuotedPrice != nil {
		parts = append(parts, fmt.Sprintf("price=%.2f %s", *d.QuotedPrice, d.QuotedPriceCurrency))
	}
	if d.AvailableQuantity != nil {
		parts = append(parts, fmt.Sprintf("availableQuantity=%d", *d.AvailableQuantity))
	}
	if d.MOQ != nil {
		parts = append(parts, fmt.Sprintf("moq=%d", *d.MOQ))
	}
	if d.LeadTimeMinDays != nil {
		parts = append(parts, fmt.Sprintf("leadTimeMinDays=%d", *d.LeadTimeMinDays))
	}
	if d.LeadTimeMaxDays != nil {
		parts = append(parts, fmt.Sprintf("leadTimeMaxDays=%d", *d.LeadTimeMaxDays))
	}
	if d.PaymentTerms != nil {
		parts = append(parts, fmt.Sprintf("paymentTerms=%s", *d.PaymentTerms))
	}
	if len(parts) == 0 {
		return "(nothing extracted)"
	}
	return strings.Join(parts, ", ")
}

// finalize parses the synthesis model's decision and applies the
// fail-safe escalation precedence rule: a high/critical escalation
// opinion always wins, regardless of what synthesis emitted.
func (o *Orchestrator) finalize(synthesisContent string, opinions []experts.Opinion, trace Trace) Result {
	action := parser.ActionEscalate
	reasoning := "orchestrator exceeded its iteration budget"

	if synthesisContent != "" {
		action = parser.ParseDecision(synthesisContent)
		if decisionBlock, ok := parser.ExtractXMLTag(synthesisContent, "decision"); ok {
			reasoning = decisionBlock
		}
	}

	for _, op := range opinions {
		if op.Escalation != nil && op.Escalation.ShouldEscalate && op.Escalation.Severity.IsHighOrCritical() {
			if action != parser.ActionEscalate {
				reasoning = op.Escalation.Reasoning
			}
			action = parser.ActionEscalate
			break
		}
	}

	return Result{
		Action:         action,
		Reasoning:      reasoning,
		ExpertOpinions: opinions,
		Trace:          trace,
	}
}
