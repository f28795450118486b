// Package parser implements tolerant extraction of structured data
// out of free-form LLM output: a brace-counting JSON locator (so bare
// JSON, markdown-fenced JSON, and JSON embedded in prose all parse the
// same way), currency/confidence normalization, and the orchestrator's
// XML-tag and decision-line readers.
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dealbroker/negotiator/internal/quote"
)

// ExtractionResult is the outcome of parseExtraction.
type ExtractionResult struct {
	Success    bool
	Data       *quote.Data
	Confidence float64
	Notes      []string
	Error      string
}

// ParseError wraps a JSON-shape failure from ParseExtraction.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// ParseJSONObject locates the first JSON object in text, whether it
// is the entire string, fenced in a ```json block, or surrounded by
// free-text prose, and unmarshals it into a generic map. Callers that
// need a typed result on top of this (quote extraction, escalation,
// needs) decode the map themselves.
func ParseJSONObject(text string) (map[string]any, error) {
	raw, err := extractFirstJSONObject(text)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return fields, nil
}

// ParseExtraction locates the first JSON object in text, whether it
// is the entire string, fenced in a ```json block, or surrounded by
// free-text prose, and validates it into a quote.Data.
func ParseExtraction(text string) ExtractionResult {
	fields, err := ParseJSONObject(text)
	if err != nil {
		return ExtractionResult{Success: false, Error: err.Error()}
	}

	data := quote.Data{RawExtractionJSON: fields}

	if v, ok := fields["quotedPrice"]; ok {
		data.QuotedPrice = toFloatPtr(v)
	}
	data.QuotedPriceCurrency = quote.NormalizeCurrency(toString(fields["quotedPriceCurrency"]))
	if v, ok := fields["quotedPriceUsd"]; ok {
		data.QuotedPriceUSD = toFloatPtr(v)
	}
	if v, ok := fields["availableQuantity"]; ok {
		data.AvailableQuantity = toIntPtr(v)
	}
	if v, ok := fields["moq"]; ok {
		data.MOQ = toIntPtr(v)
	}
	if v, ok := fields["leadTimeMinDays"]; ok {
		data.LeadTimeMinDays = toIntPtr(v)
	}
	if v, ok := fields["leadTimeMaxDays"]; ok {
		data.LeadTimeMaxDays = toIntPtr(v)
	}
	if v, ok := fields["paymentTerms"]; ok {
		data.PaymentTerms = toStringPtr(v)
	}
	if v, ok := fields["validityPeriod"]; ok {
		data.ValidityPeriod = toStringPtr(v)
	}

	confidence := quote.ClampConfidence(toFloat(fields["confidence"]))

	var notes []string
	if violations := quote.Validate(data); len(violations) > 0 {
		for _, v := range violations {
			notes = append(notes, v.Error())
		}
	}

	return ExtractionResult{
		Success:    true,
		Data:       &data,
		Confidence: confidence,
		Notes:      notes,
	}
}

// extractFirstJSONObject finds the first '{' and its matching '}' by
// brace counting, respecting string literals and escape sequences so
// braces inside quoted strings don't throw the count off.
func extractFirstJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	return "", &ParseError{Message: "no complete JSON object found in response"}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func toFloatPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if n == "" {
			return nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func toIntPtr(v any) *int {
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case string:
		if n == "" {
			return nil
		}
		i, err := strconv.Atoi(n)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return nil
			}
			i = int(f)
		}
		return &i
	}
	return nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
