package parser

import (
	"regexp"
	"strings"
)

// ExtractXMLTag returns the trimmed content of the first <tag>…</tag>
// pair in text (non-greedy, spanning multiple lines), and whether a
// match was found at all.
func ExtractXMLTag(text, tag string) (string, bool) {
	pattern := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// FollowupRequest is the parsed content of a <request_followup> block:
// "expert=needs|extraction|escalation; question=…".
type FollowupRequest struct {
	Expert   string
	Question string
}

var followupFieldPattern = regexp.MustCompile(`(?i)expert\s*=\s*([a-z]+)\s*;\s*question\s*=\s*(.*)`)

// ParseFollowup extracts the expert/question pair from a
// <request_followup> block's inner text. If multiple
// <request_followup> blocks appear in one synthesis turn, callers
// should only ever pass the first one found by ExtractXMLTag: this
// parser never looks for a second.
func ParseFollowup(text string) (FollowupRequest, bool) {
	m := followupFieldPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return FollowupRequest{}, false
	}
	return FollowupRequest{
		Expert:   strings.ToLower(strings.TrimSpace(m[1])),
		Question: strings.TrimSpace(m[2]),
	}, true
}
