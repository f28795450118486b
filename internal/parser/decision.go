package parser

import (
	"regexp"
	"strings"
)

// Action is the orchestrator's final decision.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionCounter  Action = "counter"
	ActionClarify  Action = "clarify"
	ActionEscalate Action = "escalate"
)

var decisionLinePattern = regexp.MustCompile(`(?i)Overall Action:\s*(ACCEPT|COUNTER|CLARIFY|ESCALATE)`)

// ParseDecision reads the first "Overall Action: ..." line anywhere in
// text (normally the orchestrator's <decision> block; the block itself
// is not isolated first). Any ambiguity (no match, an
// unrecognized token) defaults to escalate, per the fail-safe policy
// that governs the whole pipeline.
func ParseDecision(text string) Action {
	m := decisionLinePattern.FindStringSubmatch(text)
	if m == nil {
		return ActionEscalate
	}
	switch strings.ToLower(m[1]) {
	case "accept":
		return ActionAccept
	case "counter":
		return ActionCounter
	case "clarify":
		return ActionClarify
	default:
		return ActionEscalate
	}
}
