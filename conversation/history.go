// Package conversation holds the append-only conversation history exchanged
// with the model: role-tagged turns whose content is either plain text or an
// ordered list of text, tool-use and tool-result blocks.
package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one unit of turn content. The set of implementations is closed:
// TextBlock, ToolUseBlock and ToolResultBlock.
type Block interface {
	blockType() string
}

// TextBlock is plain model or user text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock answers the ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) blockType() string       { return "text" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }

// NewToolUse builds a ToolUseBlock with its input compacted, so equal
// arguments always compare equal regardless of the whitespace they arrived with.
func NewToolUse(id, name string, input json.RawMessage) ToolUseBlock {
	return ToolUseBlock{ID: id, Name: name, Input: compactInput(input)}
}

func compactInput(input json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(input)) == 0 {
		return json.RawMessage("{}")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return input
	}
	return json.RawMessage(buf.Bytes())
}

// Turn is one role-tagged entry of the history. When Blocks is nil the turn
// carries plain Text; otherwise Blocks is the content and Text is unused.
type Turn struct {
	Role   Role
	Text   string
	Blocks []Block
}

// UserText returns a plain-text user turn.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantText returns a plain-text assistant turn.
func AssistantText(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// NewTurn returns a turn whose content is the given blocks.
func NewTurn(role Role, blocks ...Block) Turn {
	if blocks == nil {
		blocks = []Block{}
	}
	return Turn{Role: role, Blocks: blocks}
}

// IsText reports whether the turn carries plain text rather than blocks.
func (t Turn) IsText() bool {
	return t.Blocks == nil
}

// History is the ordered conversation. Callers append; they never rewrite
// earlier turns.
type History []Turn

// Clone returns a copy that shares no slices with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, t := range h {
		out[i] = t
		if t.Blocks != nil {
			out[i].Blocks = append([]Block{}, t.Blocks...)
		}
	}
	return out
}

// Validate checks the tool pairing invariant: tool uses appear only in
// assistant turns and tool results only in user turns, every tool use is
// answered by exactly one tool result before the next assistant turn, and
// no tool use is left open at the end.
func (h History) Validate() error {
	open := make(map[string]bool)
	for i, t := range h {
		if t.Role == RoleAssistant && len(open) > 0 {
			return fmt.Errorf("turn %d: tool_use %s has no tool_result", i, firstOpen(open))
		}
		for _, b := range t.Blocks {
			switch b := b.(type) {
			case ToolUseBlock:
				if t.Role != RoleAssistant {
					return fmt.Errorf("turn %d: tool_use %s in %s turn", i, b.ID, t.Role)
				}
				if open[b.ID] {
					return fmt.Errorf("turn %d: duplicate tool_use %s", i, b.ID)
				}
				open[b.ID] = true
			case ToolResultBlock:
				if t.Role != RoleUser {
					return fmt.Errorf("turn %d: tool_result for %s in %s turn", i, b.ToolUseID, t.Role)
				}
				if !open[b.ToolUseID] {
					return fmt.Errorf("turn %d: tool_result for unknown tool_use %s", i, b.ToolUseID)
				}
				delete(open, b.ToolUseID)
			}
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("turn %d: tool_use %s has no tool_result", len(h)-1, firstOpen(open))
	}
	return nil
}

func firstOpen(open map[string]bool) string {
	return slices.Sorted(maps.Keys(open))[0]
}

// ToolUses returns every tool use in the history, in order.
func (h History) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, t := range h {
		for _, b := range t.Blocks {
			if u, ok := b.(ToolUseBlock); ok {
				uses = append(uses, u)
			}
		}
	}
	return uses
}
