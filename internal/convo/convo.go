// Package convo implements the ordered message log and merged
// extraction accumulator that a caller carries across pipeline
// invocations for a single negotiation thread.
package convo

import (
	"fmt"
	"strings"

	"github.com/dealbroker/negotiator/internal/quote"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleSupplier Role = "supplier"
)

// Message is one append-only entry in a Context's log. Ordering is
// insertion order; Timestamp is informational only.
type Message struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Context holds the ordered message log and the rolling merged
// extraction for one in-flight negotiation. Thread-unsafe by design: it
// scopes to one conversation at a time and carries no internal locking.
// Callers MUST NOT share a Context across concurrent pipeline
// invocations.
type Context struct {
	messages        []Message
	mergedExtracted quote.Data
	now             func() int64
}

// New creates an empty conversation context. WithClock lets callers
// supply a deterministic clock in tests; without it the clock defaults
// to a monotonically increasing counter so message ordering is always
// well-defined without depending on wall-clock resolution.
func New(opts ...Option) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	if c.now == nil {
		var counter int64
		c.now = func() int64 {
			counter++
			return counter
		}
	}
	return c
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithClock overrides the timestamp source used by AddAgentMessage and
// AddSupplierMessage.
func WithClock(now func() int64) Option {
	return func(c *Context) { c.now = now }
}

// WithPriorExtraction seeds the merged extraction from a caller-
// supplied record, so a resumed conversation starts from where it left
// off.
func WithPriorExtraction(d quote.Data) Option {
	return func(c *Context) { c.mergedExtracted = d }
}

// AddAgentMessage appends an agent-authored message to the log.
func (c *Context) AddAgentMessage(text string) {
	c.messages = append(c.messages, Message{Role: RoleAgent, Text: text, Timestamp: c.now()})
}

// AddSupplierMessage appends a supplier-authored message to the log.
func (c *Context) AddSupplierMessage(text string) {
	c.messages = append(c.messages, Message{Role: RoleSupplier, Text: text, Timestamp: c.now()})
}

// MergeExtraction folds a new per-turn extraction into the rolling
// merged record: a non-null field in incoming overwrites the
// corresponding field, nulls never overwrite. Monotonic: once a field
// is set it is never cleared by a later merge.
func (c *Context) MergeExtraction(incoming quote.Data) {
	c.mergedExtracted = quote.MergeInto(c.mergedExtracted, incoming)
}

// GetMergedData returns the current rolling merged extraction.
func (c *Context) GetMergedData() quote.Data {
	return c.mergedExtracted
}

// GetMessageCount returns the number of messages logged so far.
func (c *Context) GetMessageCount() int {
	return len(c.messages)
}

// Messages returns the ordered message log. The returned slice is a
// copy; mutating it does not affect the Context.
func (c *Context) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// FormatForPrompt renders the message log as "[AGENT] …\n[SUPPLIER] …"
// lines, in insertion order, for embedding in an LLM prompt.
func (c *Context) FormatForPrompt() string {
	var b strings.Builder
	for i, m := range c.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("[%s] %s", strings.ToUpper(string(m.Role)), m.Text))
	}
	return b.String()
}
