// Package config defines the negotiator's typed constructor options and
// the viper-driven CLI/environment bindings that populate them. The
// core packages never read viper or the environment directly; they
// only see the typed Config this package builds.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/llmservice"
)

// ProviderSettings is the apiKey/model pair recognized for both the
// primary and fallback provider.
type ProviderSettings struct {
	Kind   string // "claude" or "openai"
	APIKey string
	Model  string
}

// Config holds every recognized negotiator option. It is built from
// viper-bound CLI flags and environment variables by Load, then passed
// to the constructors in internal/llm and the root negotiator
// package: the core itself never reads viper or the environment
// directly.
type Config struct {
	PrimaryProvider       ProviderSettings
	FallbackProvider      ProviderSettings // Kind == "" disables the fallback
	MaxRetriesPerProvider int
	RetryDelayMs          int
	OrchestratorMaxIter   int
	ExpertMaxTokens       int
}

// Default returns negotiator's baseline configuration.
func Default() Config {
	return Config{
		MaxRetriesPerProvider: 3,
		RetryDelayMs:          1000,
		OrchestratorMaxIter:   2,
	}
}

// Load reads negotiator's configuration from viper, which by the time
// this is called has already had its config file loaded and its
// environment prefix/binding set up by the CLI's initConfig (see
// cmd/negotiator/commands/root.go).
func Load() Config {
	cfg := Default()

	if v := viper.GetString("primary_provider"); v != "" {
		cfg.PrimaryProvider.Kind = v
	}
	cfg.PrimaryProvider.APIKey = viper.GetString("primary_api_key")
	cfg.PrimaryProvider.Model = viper.GetString("primary_model")

	cfg.FallbackProvider.Kind = viper.GetString("fallback_provider")
	cfg.FallbackProvider.APIKey = viper.GetString("fallback_api_key")
	cfg.FallbackProvider.Model = viper.GetString("fallback_model")

	if n := viper.GetInt("max_retries_per_provider"); n > 0 {
		cfg.MaxRetriesPerProvider = n
	}
	if n := viper.GetInt("retry_delay_ms"); n > 0 || viper.IsSet("retry_delay_ms") {
		cfg.RetryDelayMs = n
	}
	if n := viper.GetInt("orchestrator_max_iterations"); n > 0 {
		cfg.OrchestratorMaxIter = n
	}
	cfg.ExpertMaxTokens = viper.GetInt("expert_max_tokens")

	return cfg
}

// BuildProvider constructs the llm.Provider named by s.Kind. An empty
// Kind returns (nil, nil): callers use this to detect "no fallback
// configured" without an error branch.
func BuildProvider(s ProviderSettings) (llm.Provider, error) {
	if s.Kind == "" {
		return nil, nil
	}

	pc := llm.ProviderConfig{APIKey: s.APIKey, Model: s.Model}
	switch s.Kind {
	case "claude":
		return llm.NewClaudeProvider(pc)
	case "openai":
		return llm.NewOpenAIProvider(pc)
	default:
		return nil, fmt.Errorf("unknown provider kind %q (want claude or openai)", s.Kind)
	}
}

// ServiceConfig projects the retry settings into llmservice.Config.
func (c Config) ServiceConfig() llmservice.Config {
	return llmservice.Config{
		MaxRetriesPerProvider: c.MaxRetriesPerProvider,
		RetryDelayMs:          c.RetryDelayMs,
	}
}
