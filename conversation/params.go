package conversation

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// ToParams converts the history into Messages API params. Empty text blocks
// are dropped because the API rejects them; a turn left with no content is
// dropped as well.
func (h History) ToParams() []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(h))
	for _, t := range h {
		var blocks []anthropic.ContentBlockParamUnion
		if t.IsText() {
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
		} else {
			for _, b := range t.Blocks {
				if p, ok := blockParam(b); ok {
					blocks = append(blocks, p)
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if t.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func blockParam(b Block) (anthropic.ContentBlockParamUnion, bool) {
	switch b := b.(type) {
	case TextBlock:
		if b.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(b.Text), true
	case ToolUseBlock:
		return anthropic.NewToolUseBlock(b.ID, json.RawMessage(compactInput(b.Input)), b.Name), true
	case ToolResultBlock:
		return anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError), true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}
