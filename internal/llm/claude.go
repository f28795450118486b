package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider wraps the Anthropic SDK.
type ClaudeProvider struct {
	client anthropic.Client
	model  string
}

// NewClaudeProvider creates a new Claude provider.
func NewClaudeProvider(cfg ProviderConfig) (*ClaudeProvider, error) {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Execute sends a completion request to Claude and measures wall-clock latency.
func (p *ClaudeProvider) Execute(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	params.Temperature = anthropic.Float(req.Temperature)

	// Structured output is requested via a forced tool call, same trick
	// as the extractor's tool-based JSON extraction: the tool input IS
	// the extracted data, which sidesteps free-text JSON wrangling.
	if req.OutputSchema != nil {
		properties, _ := req.OutputSchema.Schema["properties"].(map[string]any)
		required, _ := req.OutputSchema.Schema["required"].([]any)
		requiredStrings := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				requiredStrings = append(requiredStrings, s)
			}
		}

		toolName := req.OutputSchema.Name
		if toolName == "" {
			toolName = "emit_result"
		}

		params.Tools = []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        toolName,
					Description: anthropic.String("Emit the structured result for this analysis"),
					InputSchema: anthropic.ToolInputSchemaParam{
						Type:       "object",
						Properties: properties,
						Required:   requiredStrings,
					},
				},
			},
		}
		params.ToolChoice = anthropic.ToolChoiceParamOfTool(toolName)
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return Response{}, &Error{Provider: p.Name(), Model: p.model, Upstream: err}
	}

	var content string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content = b.Text
		case anthropic.ToolUseBlock:
			jsonBytes, jerr := json.Marshal(b.Input)
			if jerr != nil {
				return Response{}, &Error{Provider: p.Name(), Model: p.model, Upstream: jerr}
			}
			content = string(jsonBytes)
		}
	}

	return Response{
		Content:      content,
		Provider:     p.Name(),
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		LatencyMs:    latency.Milliseconds(),
	}, nil
}

// Name returns the provider identifier.
func (p *ClaudeProvider) Name() string { return "claude" }

// Model returns the configured model name.
func (p *ClaudeProvider) Model() string { return p.model }
