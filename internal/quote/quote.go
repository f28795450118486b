// Package quote defines the extracted-quote data model shared by the
// parser, the experts, and the conversation context, and validates it
// with struct tags.
package quote

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Data is a mapping of optional quote fields pulled from a single
// supplier message. Every field except QuotedPriceCurrency is a
// pointer (or nil map) so that "not mentioned" and "explicitly zero"
// are distinguishable; QuotedPriceCurrency uses "" for "not mentioned".
// MergeInto depends on this: nil (or "") never overwrites a previously
// set field.
type Data struct {
	QuotedPrice         *float64       `json:"quotedPrice,omitempty" validate:"omitempty,gte=0"`
	QuotedPriceCurrency string         `json:"quotedPriceCurrency,omitempty" validate:"omitempty,len=3"`
	QuotedPriceUSD      *float64       `json:"quotedPriceUsd,omitempty" validate:"omitempty,gte=0"`
	AvailableQuantity   *int           `json:"availableQuantity,omitempty" validate:"omitempty,gte=0"`
	MOQ                 *int           `json:"moq,omitempty" validate:"omitempty,gte=0"`
	LeadTimeMinDays     *int           `json:"leadTimeMinDays,omitempty" validate:"omitempty,gte=0"`
	LeadTimeMaxDays     *int           `json:"leadTimeMaxDays,omitempty" validate:"omitempty,gte=0"`
	PaymentTerms        *string        `json:"paymentTerms,omitempty"`
	ValidityPeriod      *string        `json:"validityPeriod,omitempty"`
	RawExtractionJSON   map[string]any `json:"rawExtractionJson,omitempty"`
}

// SchemaViolation is raised when a structurally-parsed extraction
// fails validation (a required invariant, not a JSON syntax error).
type SchemaViolation struct {
	Field   string
	Message string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation on %q: %s", e.Field, e.Message)
}

// Validate enforces the struct tags above plus the lead-time ordering
// invariant: if both bounds are present, min must not exceed max.
func Validate(d Data) []SchemaViolation {
	var violations []SchemaViolation

	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				violations = append(violations, SchemaViolation{
					Field:   fe.Field(),
					Message: fe.Tag(),
				})
			}
		}
	}

	if d.LeadTimeMinDays != nil && d.LeadTimeMaxDays != nil && *d.LeadTimeMinDays > *d.LeadTimeMaxDays {
		violations = append(violations, SchemaViolation{
			Field:   "LeadTimeMinDays",
			Message: "lead time minimum exceeds maximum",
		})
	}

	return violations
}

// NormalizeCurrency uppercases a currency code and maps the common
// "RMB" colloquialism to its ISO-4217 code. An empty input defaults
// to "USD".
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	if code == "RMB" {
		return "CNY"
	}
	return code
}

// ClampConfidence restricts a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// MergeInto applies incoming on top of base: every non-nil field of
// incoming overwrites the corresponding field of base; nil fields of
// incoming never clear an already-set field of base. This is the
// monotonic merge a cumulative extraction accumulator requires.
func MergeInto(base, incoming Data) Data {
	merged := base

	if incoming.QuotedPrice != nil {
		merged.QuotedPrice = incoming.QuotedPrice
	}
	if incoming.QuotedPriceCurrency != "" {
		merged.QuotedPriceCurrency = incoming.QuotedPriceCurrency
	}
	if incoming.QuotedPriceUSD != nil {
		merged.QuotedPriceUSD = incoming.QuotedPriceUSD
	}
	if incoming.AvailableQuantity != nil {
		merged.AvailableQuantity = incoming.AvailableQuantity
	}
	if incoming.MOQ != nil {
		merged.MOQ = incoming.MOQ
	}
	if incoming.LeadTimeMinDays != nil {
		merged.LeadTimeMinDays = incoming.LeadTimeMinDays
	}
	if incoming.LeadTimeMaxDays != nil {
		merged.LeadTimeMaxDays = incoming.LeadTimeMaxDays
	}
	if incoming.PaymentTerms != nil {
		merged.PaymentTerms = incoming.PaymentTerms
	}
	if incoming.ValidityPeriod != nil {
		merged.ValidityPeriod = incoming.ValidityPeriod
	}
	if incoming.RawExtractionJSON != nil {
		merged.RawExtractionJSON = incoming.RawExtractionJSON
	}

	return merged
}

// IsZero reports whether d carries no extracted fields at all.
func IsZero(d Data) bool {
	return d.QuotedPrice == nil && d.QuotedPriceCurrency == "" && d.QuotedPriceUSD == nil &&
		d.AvailableQuantity == nil && d.MOQ == nil && d.LeadTimeMinDays == nil &&
		d.LeadTimeMaxDays == nil && d.PaymentTerms == nil && d.ValidityPeriod == nil &&
		d.RawExtractionJSON == nil
}
