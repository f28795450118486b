package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/parser"
	"github.com/dealbroker/negotiator/internal/quote"
)

type stubProvider struct {
	name    string
	content string
	err     error
	calls   int
}

func (s *stubProvider) Execute(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.calls++
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Content: s.content, Provider: s.name, Model: "stub"}, nil
}
func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "stub" }

func newService(p llm.Provider) *llmservice.Service {
	return llmservice.New(p, nil, llmservice.Config{MaxRetriesPerProvider: 1, RetryDelayMs: 0})
}

func TestGenerate_Accept_NoLLMCall(t *testing.T) {
	provider := &stubProvider{name: "stub", content: "should not be called"}
	g := NewGenerator(newService(provider))

	price := 4.5
	qty := 500
	res := g.Generate(context.Background(), Input{
		Action:        parser.ActionAccept,
		ExtractedData: &quote.Data{QuotedPrice: &price, AvailableQuantity: &qty, QuotedPriceCurrency: "USD"},
		OrderContext:  order.Context{SKUName: "widget"},
	})

	if provider.calls != 0 {
		t.Errorf("accept should not call the LLM, got %d calls", provider.calls)
	}
	if res.ProposedApproval == nil {
		t.Fatal("expected a ProposedApproval")
	}
	if res.ProposedApproval.Quantity != 500 {
		t.Errorf("Quantity = %d, want 500", res.ProposedApproval.Quantity)
	}
	if res.ProposedApproval.Price != 4.5 {
		t.Errorf("Price = %v, want 4.5", res.ProposedApproval.Price)
	}
	if res.ProposedApproval.Total != 2250 {
		t.Errorf("Total = %v, want 2250", res.ProposedApproval.Total)
	}
}

func TestGenerate_Accept_QuantityFallsBackToRequested(t *testing.T) {
	g := NewGenerator(newService(&stubProvider{name: "stub"}))

	price := 4.5
	res := g.Generate(context.Background(), Input{
		Action:        parser.ActionAccept,
		ExtractedData: &quote.Data{QuotedPrice: &price},
		OrderContext:  order.Context{SKUName: "widget", QuantityRequested: "250"},
	})

	if res.ProposedApproval.Quantity != 250 {
		t.Errorf("Quantity = %d, want 250 (fallback to requested)", res.ProposedApproval.Quantity)
	}
}

func TestGenerate_Accept_QuantityDefaultsToZero(t *testing.T) {
	g := NewGenerator(newService(&stubProvider{name: "stub"}))

	res := g.Generate(context.Background(), Input{
		Action:        parser.ActionAccept,
		ExtractedData: &quote.Data{},
		OrderContext:  order.Context{SKUName: "widget"},
	})

	if res.ProposedApproval.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0", res.ProposedApproval.Quantity)
	}
}

func TestGenerate_Escalate_NoLLMCall(t *testing.T) {
	provider := &stubProvider{name: "stub"}
	g := NewGenerator(newService(provider))

	res := g.Generate(context.Background(), Input{
		Action:    parser.ActionEscalate,
		Reasoning: "discontinued product",
	})

	if provider.calls != 0 {
		t.Errorf("escalate should not call the LLM, got %d calls", provider.calls)
	}
	if res.EscalationReason != "discontinued product" {
		t.Errorf("EscalationReason = %q, want %q", res.EscalationReason, "discontinued product")
	}
}

func TestGenerate_Counter_Success(t *testing.T) {
	provider := &stubProvider{name: "stub", content: `{"emailText": "We'd like to propose $4/unit.", "proposedTermsSummary": "target $4"}`}
	g := NewGenerator(newService(provider))

	price := 6.0
	res := g.Generate(context.Background(), Input{
		Action:        parser.ActionCounter,
		ExtractedData: &quote.Data{QuotedPrice: &price},
		TargetTerms:   "target $4/unit",
		OrderContext:  order.Context{SKUName: "widget"},
	})

	if res.CounterOffer == nil {
		t.Fatal("expected a CounterOffer")
	}
	if res.CounterOffer.DraftEmail == "" {
		t.Error("expected non-empty draft email")
	}
}

func TestGenerate_Counter_LLMFailure_DegradesToEscalation(t *testing.T) {
	provider := &stubProvider{name: "stub", err: errors.New("down")}
	g := NewGenerator(newService(provider))

	res := g.Generate(context.Background(), Input{Action: parser.ActionCounter, OrderContext: order.Context{SKUName: "widget"}})

	if res.CounterOffer != nil {
		t.Error("expected no CounterOffer on LLM failure")
	}
	if res.EscalationReason == "" {
		t.Error("expected a degraded EscalationReason on LLM failure")
	}
}

func TestGenerate_Clarify_Success(t *testing.T) {
	provider := &stubProvider{name: "stub", content: "What is your lead time for this order?"}
	g := NewGenerator(newService(provider))

	res := g.Generate(context.Background(), Input{
		Action:               parser.ActionClarify,
		PrioritizedQuestions: []string{"What is your lead time?"},
		OrderContext:         order.Context{SKUName: "widget"},
	})

	if res.ClarificationEmail == "" {
		t.Error("expected a non-empty clarification email")
	}
}

func TestGenerate_Clarify_LLMFailure_DegradesToEscalation(t *testing.T) {
	provider := &stubProvider{name: "stub", err: errors.New("down")}
	g := NewGenerator(newService(provider))

	res := g.Generate(context.Background(), Input{Action: parser.ActionClarify, OrderContext: order.Context{SKUName: "widget"}})

	if res.ClarificationEmail != "" {
		t.Error("expected no ClarificationEmail on LLM failure")
	}
	if res.EscalationReason == "" {
		t.Error("expected a degraded EscalationReason on LLM failure")
	}
}
