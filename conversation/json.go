package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireBlock is the on-disk shape of a Block, shared by all block types.
type wireBlock struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   *string         `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTurn struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func toWire(b Block) (wireBlock, error) {
	switch b := b.(type) {
	case TextBlock:
		return wireBlock{Type: b.blockType(), Text: &b.Text}, nil
	case ToolUseBlock:
		return wireBlock{Type: b.blockType(), ID: b.ID, Name: b.Name, Input: compactInput(b.Input)}, nil
	case ToolResultBlock:
		return wireBlock{Type: b.blockType(), ToolUseID: b.ToolUseID, Content: &b.Content, IsError: b.IsError}, nil
	default:
		return wireBlock{}, fmt.Errorf("unsupported block %T", b)
	}
}

func fromWire(w wireBlock) (Block, error) {
	switch w.Type {
	case "text":
		if w.Text == nil {
			return nil, fmt.Errorf("text block without text")
		}
		return TextBlock{Text: *w.Text}, nil
	case "tool_use":
		if w.ID == "" || w.Name == "" {
			return nil, fmt.Errorf("tool_use block requires id and name")
		}
		return NewToolUse(w.ID, w.Name, w.Input), nil
	case "tool_result":
		if w.ToolUseID == "" {
			return nil, fmt.Errorf("tool_result block requires tool_use_id")
		}
		var content string
		if w.Content != nil {
			content = *w.Content
		}
		return ToolResultBlock{ToolUseID: w.ToolUseID, Content: content, IsError: w.IsError}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", w.Type)
	}
}

// MarshalJSON writes plain-text turns as {"role","content":"text"} and block
// turns as {"role","content":[...]}.
func (t Turn) MarshalJSON() ([]byte, error) {
	var content any = t.Text
	if !t.IsText() {
		blocks := make([]wireBlock, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			w, err := toWire(b)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, w)
		}
		content = blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireTurn{Role: t.Role, Content: raw})
}

// UnmarshalJSON accepts either content shape written by MarshalJSON.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Role != RoleUser && w.Role != RoleAssistant {
		return fmt.Errorf("unknown role %q", w.Role)
	}

	content := bytes.TrimSpace(w.Content)
	if len(content) > 0 && content[0] == '"' {
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return err
		}
		*t = Turn{Role: w.Role, Text: text}
		return nil
	}

	var wires []wireBlock
	if err := json.Unmarshal(content, &wires); err != nil {
		return fmt.Errorf("turn content: %w", err)
	}
	blocks := make([]Block, 0, len(wires))
	for i, wb := range wires {
		b, err := fromWire(wb)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	*t = Turn{Role: w.Role, Blocks: blocks}
	return nil
}
