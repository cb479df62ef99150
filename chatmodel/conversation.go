package chatmodel

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// PreambleSeparator joins preamble fragments.
const PreambleSeparator = "\n\n"

// Conversation is an append-only transcript with a system preamble.
// Appended messages are never removed or modified.
type Conversation struct {
	lock     sync.RWMutex
	preamble string
	messages []Message
}

// NewConversation returns an empty Conversation with the given preamble.
func NewConversation(preamble string) *Conversation {
	return &Conversation{preamble: preamble}
}

// Preamble returns the system preamble.
func (c *Conversation) Preamble() string {
	return c.preamble
}

// Append adds messages to the end of the transcript.
func (c *Conversation) Append(msgs ...Message) error {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return errors.Newf("invalid message role: %q", m.Role)
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	for _, m := range msgs {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		m.Results = slices.Clone(m.Results)
		c.messages = append(c.messages, m)
	}
	return nil
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := make([]Message, len(c.messages))
	for i, m := range c.messages {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		m.Results = slices.Clone(m.Results)
		ret[i] = m
	}
	return ret
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastAssistantText returns the text of the most recent assistant message
// that carried any.
func (c *Conversation) LastAssistantText() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == RoleAssistant && m.Text != "" {
			return m.Text
		}
	}
	return ""
}

// ToolCalls returns every tool call in transcript order.
func (c *Conversation) ToolCalls() []ToolCall {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var ret []ToolCall
	for _, m := range c.messages {
		ret = append(ret, m.ToolCalls...)
	}
	return ret
}

// ToolResults returns every tool result in transcript order.
func (c *Conversation) ToolResults() []ToolResult {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var ret []ToolResult
	for _, m := range c.messages {
		ret = append(ret, m.Results...)
	}
	return ret
}

// Size returns the number of text bytes in the transcript.
func (c *Conversation) Size() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	size := len(c.preamble)
	for _, m := range c.messages {
		size += len(m.Text)
		for _, tc := range m.ToolCalls {
			size += len(tc.Name) + len(tc.Arguments.JSON())
		}
		for _, r := range m.Results {
			size += len(r.Text())
		}
	}
	return size
}
