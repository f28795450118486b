package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/dealbroker/negotiator/internal/experts"
	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/parser"
)

// scriptedProvider returns successive canned responses on each call,
// keyed by how many times it has already been called, so a single
// provider can stand in for expert calls (extraction/escalation/needs)
// and the orchestrator's own synthesis call across a test.
type scriptedProvider struct {
	name      string
	responses []string
	err       error
	calls     int
}

func (s *scriptedProvider) Execute(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return llm.Response{Content: s.responses[idx], Provider: s.name, Model: "stub"}, nil
}

func (s *scriptedProvider) Name() string  { return s.name }
func (s *scriptedProvider) Model() string { return "stub" }

func newService(p llm.Provider) *llmservice.Service {
	return llmservice.New(p, nil, llmservice.Config{MaxRetriesPerProvider: 1, RetryDelayMs: 0})
}

const escalateDecision = `<systematic_evaluation>product is discontinued per escalation trigger</systematic_evaluation>
<decision>
Cannot proceed.
Overall Action: ESCALATE
</decision>`

const acceptDecision = `<systematic_evaluation>price and lead time within rules</systematic_evaluation>
<decision>
Within bounds.
Overall Action: ACCEPT
</decision>`

func buildOrchestrator(extractionResp, escalationResp, needsResp, synthesisResp string) *Orchestrator {
	extractionSvc := newService(&scriptedProvider{name: "stub", responses: []string{extractionResp}})
	escalationSvc := newService(&scriptedProvider{name: "stub", responses: []string{escalationResp}})
	needsSvc := newService(&scriptedProvider{name: "stub", responses: []string{needsResp}})
	synthesisSvc := newService(&scriptedProvider{name: "stub", responses: []string{synthesisResp}})

	return New(
		synthesisSvc,
		experts.NewExtractor(extractionSvc, 0),
		experts.NewEscalator(escalationSvc, 0),
		experts.NewNeedsAssessor(needsSvc, 0),
		2,
	)
}

func TestRun_CleanQuote_Accepts(t *testing.T) {
	o := buildOrchestrator(
		`{"quotedPrice": 4.5, "confidence": 0.9}`,
		`{"shouldEscalate": false, "reasoning": "no triggers fired", "severity": "low", "triggersEvaluated": [], "triggeredTriggers": []}`,
		`{"missingFields": [], "prioritizedQuestions": [], "reasoning": "all rule-relevant fields present"}`,
		acceptDecision,
	)

	res := o.Run(context.Background(), Input{
		SupplierMessage:    "$4.50/unit, MOQ 500, 25-30 day lead time, NET 30",
		NegotiationRules:   "Accept if price <= $5 and lead time <= 30 days",
		EscalationTriggers: "Product discontinued",
		OrderContext:       order.Context{SKUName: "widget"},
	})

	if res.Action != parser.ActionAccept {
		t.Errorf("Action = %v, want accept", res.Action)
	}
	if len(res.ExpertOpinions) != 3 {
		t.Errorf("expected 3 expert opinions, got %d", len(res.ExpertOpinions))
	}
	if res.Trace.TotalIterations != 1 {
		t.Errorf("TotalIterations = %d, want 1", res.Trace.TotalIterations)
	}
}

func TestRun_EscalationPrecedence_OverridesSynthesis(t *testing.T) {
	// Synthesis says ACCEPT, but escalation expert fired critical: the
	// orchestrator must still choose escalate.
	o := buildOrchestrator(
		`{"confidence": 0.5}`,
		`{"shouldEscalate": true, "reasoning": "discontinued", "severity": "critical", "triggersEvaluated": ["Product discontinued"], "triggeredTriggers": ["Product discontinued"]}`,
		`{"missingFields": [], "prioritizedQuestions": [], "reasoning": ""}`,
		acceptDecision,
	)

	res := o.Run(context.Background(), Input{
		SupplierMessage:    "Unfortunately, this product has been discontinued.",
		NegotiationRules:   "Accept if price <= $5",
		EscalationTriggers: "Product discontinued",
		OrderContext:       order.Context{SKUName: "widget"},
	})

	if res.Action != parser.ActionEscalate {
		t.Errorf("Action = %v, want escalate (precedence rule)", res.Action)
	}
}

func TestRun_SynthesisFailure_DegradesToEscalate(t *testing.T) {
	extractionSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"confidence": 0.5}`}})
	escalationSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"shouldEscalate": false, "reasoning": "none", "severity": "low"}`}})
	needsSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"missingFields": [], "prioritizedQuestions": [], "reasoning": ""}`}})
	synthesisSvc := newService(&scriptedProvider{name: "stub", err: errors.New("synthesis down")})

	o := New(synthesisSvc, experts.NewExtractor(extractionSvc, 0), experts.NewEscalator(escalationSvc, 0), experts.NewNeedsAssessor(needsSvc, 0), 2)

	res := o.Run(context.Background(), Input{
		SupplierMessage:  "hi",
		NegotiationRules: "rules",
		OrderContext:     order.Context{SKUName: "widget"},
	})

	if res.Action != parser.ActionEscalate {
		t.Errorf("Action = %v, want escalate on synthesis failure", res.Action)
	}
	if res.Reasoning == "" {
		t.Error("expected a diagnostic reasoning on synthesis failure")
	}
}

func TestRun_FollowupRequest_ReinvokesNamedExpert(t *testing.T) {
	firstSynthesis := `<systematic_evaluation>need lead time</systematic_evaluation>
<decision>
Need more info.
Overall Action: CLARIFY
</decision>
<request_followup>expert=needs; question=what is the lead time?</request_followup>`

	extractionSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"confidence": 0.5}`}})
	escalationSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"shouldEscalate": false, "reasoning": "none", "severity": "low"}`}})
	needsSvc := newService(&scriptedProvider{name: "stub", responses: []string{
		`{"missingFields": ["leadTimeMaxDays"], "prioritizedQuestions": ["what is lead time?"], "reasoning": "initial pass"}`,
		`{"missingFields": [], "prioritizedQuestions": [], "reasoning": "resolved after followup"}`,
	}})
	synthesisSvc := newService(&scriptedProvider{name: "stub", responses: []string{firstSynthesis, acceptDecision}})

	o := New(synthesisSvc, experts.NewExtractor(extractionSvc, 0), experts.NewEscalator(escalationSvc, 0), experts.NewNeedsAssessor(needsSvc, 0), 2)

	res := o.Run(context.Background(), Input{
		SupplierMessage:  "price only",
		NegotiationRules: "lead time required",
		OrderContext:     order.Context{SKUName: "widget"},
	})

	if res.Trace.TotalIterations != 2 {
		t.Errorf("TotalIterations = %d, want 2 (one followup round)", res.Trace.TotalIterations)
	}
	if res.Trace.Iterations[0].RequestedExpert != "needs" {
		t.Errorf("RequestedExpert = %q, want needs", res.Trace.Iterations[0].RequestedExpert)
	}
	if res.Action != parser.ActionAccept {
		t.Errorf("Action = %v, want accept after followup resolves", res.Action)
	}
}

func TestRun_IterationCeiling_ProceedsWithBestOpinions(t *testing.T) {
	alwaysFollowup := `<systematic_evaluation>still unsure</systematic_evaluation>
<decision>
Unsure.
Overall Action: CLARIFY
</decision>
<request_followup>expert=needs; question=more?</request_followup>`

	extractionSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"confidence": 0.5}`}})
	escalationSvc := newService(&scriptedProvider{name: "stub", responses: []string{`{"shouldEscalate": false, "reasoning": "none", "severity": "low"}`}})
	needsSvc := newService(&scriptedProvider{name: "stub", responses: []string{
		`{"missingFields": ["a"], "prioritizedQuestions": ["q"], "reasoning": "r1"}`,
		`{"missingFields": ["a"], "prioritizedQuestions": ["q"], "reasoning": "r2"}`,
	}})
	synthesisSvc := newService(&scriptedProvider{name: "stub", responses: []string{alwaysFollowup, alwaysFollowup}})

	o := New(synthesisSvc, experts.NewExtractor(extractionSvc, 0), experts.NewEscalator(escalationSvc, 0), experts.NewNeedsAssessor(needsSvc, 0), 2)

	res := o.Run(context.Background(), Input{
		SupplierMessage:  "price only",
		NegotiationRules: "lead time required",
		OrderContext:     order.Context{SKUName: "widget"},
	})

	if res.Trace.TotalIterations != 2 {
		t.Errorf("TotalIterations = %d, want 2 (hard ceiling)", res.Trace.TotalIterations)
	}
	if res.Action != parser.ActionClarify {
		t.Errorf("Action = %v, want clarify (synthesis's last decision, taken as-is once the ceiling is hit)", res.Action)
	}
}
