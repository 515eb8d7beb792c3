package server

import (
	"encoding/json"
	"fmt"

	bridge "github.com/armatrix/mcp-bridge-go"
)

// Inbound frame types.
const (
	TypeQuery     = "query"
	TypeGetPrompt = "get_prompt"
	TypeClear     = "clear"
	TypeSave      = "save"
	TypeLoad      = "load"
)

// Outbound frame types.
const (
	TypeInitialization = "initialization"
	TypeResponse       = "response"
	TypePrompt         = "prompt"
	TypeCleared        = "cleared"
	TypeSaved          = "saved"
	TypeLoaded         = "loaded"
	TypeError          = "error"
)

// InboundFrame is a message sent by a WebSocket client. Which of the
// optional fields is required depends on Type.
type InboundFrame struct {
	Type     string `json:"type" jsonschema:"required,enum=query,enum=get_prompt,enum=clear,enum=save,enum=load"`
	Content  string `json:"content,omitempty" jsonschema:"description=Query text for type query"`
	Name     string `json:"name,omitempty" jsonschema:"description=Prompt name for type get_prompt"`
	Filename string `json:"filename,omitempty" jsonschema:"description=Document name for types save and load"`
}

// OutboundFrame is a message sent to a WebSocket client.
type OutboundFrame struct {
	Type     string `json:"type" jsonschema:"required"`
	Data     any    `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InitData is the payload of the initialization frame.
type InitData struct {
	Tools   []bridge.ToolDescriptor `json:"tools"`
	Prompts []InitPrompt            `json:"prompts"`
}

// InitPrompt lists a prompt without its parameters; clients fetch those with
// a get_prompt frame.
type InitPrompt struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FrameSchemas is the document served on /schema.
type FrameSchemas struct {
	Inbound  InboundFrame  `json:"inbound"`
	Outbound OutboundFrame `json:"outbound"`
	Init     InitData      `json:"initialization"`
}

// decodeFrame parses one inbound message and checks the fields its type
// needs. A syntax error wraps bridge.ErrProtocolFormat.
func decodeFrame(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %w", bridge.ErrProtocolFormat, err)
	}
	var missing string
	switch f.Type {
	case TypeQuery:
		if f.Content == "" {
			missing = "content"
		}
	case TypeGetPrompt:
		if f.Name == "" {
			missing = "name"
		}
	case TypeSave, TypeLoad:
		if f.Filename == "" {
			missing = "filename"
		}
	case TypeClear:
	case "":
		missing = "type"
	default:
		return f, fmt.Errorf("unknown message type %q", f.Type)
	}
	if missing != "" {
		return f, fmt.Errorf("missing field %q", missing)
	}
	return f, nil
}

func initFrame(tools []bridge.ToolDescriptor, prompts []bridge.PromptDescriptor) OutboundFrame {
	data := InitData{
		Tools:   tools,
		Prompts: make([]InitPrompt, 0, len(prompts)),
	}
	if data.Tools == nil {
		data.Tools = []bridge.ToolDescriptor{}
	}
	for _, p := range prompts {
		data.Prompts = append(data.Prompts, InitPrompt{
			Name:        p.Name,
			Description: p.Description,
			Parameters:  map[string]any{},
		})
	}
	return OutboundFrame{Type: TypeInitialization, Data: data}
}

func errorFrame(msg string) OutboundFrame {
	return OutboundFrame{Type: TypeError, Data: msg}
}
