package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxRetriesPerProvider != 3 {
		t.Errorf("MaxRetriesPerProvider = %d, want 3", cfg.MaxRetriesPerProvider)
	}
	if cfg.RetryDelayMs != 1000 {
		t.Errorf("RetryDelayMs = %d, want 1000", cfg.RetryDelayMs)
	}
	if cfg.OrchestratorMaxIter != 2 {
		t.Errorf("OrchestratorMaxIter = %d, want 2", cfg.OrchestratorMaxIter)
	}
}

func TestBuildProvider_EmptyKindReturnsNilNoError(t *testing.T) {
	p, err := BuildProvider(ProviderSettings{})
	if err != nil {
		t.Fatalf("BuildProvider() error = %v, want nil", err)
	}
	if p != nil {
		t.Errorf("BuildProvider() = %v, want nil provider for empty kind", p)
	}
}

func TestBuildProvider_UnknownKindErrors(t *testing.T) {
	_, err := BuildProvider(ProviderSettings{Kind: "bedrock"})
	if err == nil {
		t.Fatal("BuildProvider() error = nil, want error for unrecognized kind")
	}
}

func TestBuildProvider_Claude(t *testing.T) {
	p, err := BuildProvider(ProviderSettings{Kind: "claude", APIKey: "sk-test", Model: "claude-sonnet"})
	if err != nil {
		t.Fatalf("BuildProvider() error = %v", err)
	}
	if p.Name() != "claude" {
		t.Errorf("Name() = %q, want claude", p.Name())
	}
	if p.Model() != "claude-sonnet" {
		t.Errorf("Model() = %q, want claude-sonnet", p.Model())
	}
}

func TestBuildProvider_OpenAI(t *testing.T) {
	p, err := BuildProvider(ProviderSettings{Kind: "openai", APIKey: "sk-test", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("BuildProvider() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
}

func TestServiceConfig_Projection(t *testing.T) {
	cfg := Config{MaxRetriesPerProvider: 5, RetryDelayMs: 250}
	sc := cfg.ServiceConfig()
	if sc.MaxRetriesPerProvider != 5 || sc.RetryDelayMs != 250 {
		t.Errorf("ServiceConfig() = %+v, want {5 250}", sc)
	}
}
