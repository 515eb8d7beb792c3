package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Content is a tool result payload, classified by shape when it crosses the
// protocol boundary. It is one of SingleText, TextList or Opaque.
type Content interface {
	// String returns the normalized text form of the payload.
	String() string
	content()
}

// SingleText is a result carrying exactly one text block.
type SingleText struct {
	Text string
}

// TextList is a result whose blocks are all text. An empty result is an
// empty TextList.
type TextList struct {
	Items []string
}

// Opaque is any other result, kept as its JSON encoding.
type Opaque struct {
	Raw json.RawMessage
}

func (c SingleText) String() string { return c.Text }
func (c TextList) String() string   { return strings.Join(c.Items, "\n") }
func (c Opaque) String() string     { return string(c.Raw) }

func (SingleText) content() {}
func (TextList) content()   {}
func (Opaque) content()     {}

// ContentFromSDK classifies the content blocks of a tools/call result.
func ContentFromSDK(blocks []sdk.Content) Content {
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		tc, ok := b.(*sdk.TextContent)
		if !ok {
			return opaque(blocks)
		}
		texts = append(texts, tc.Text)
	}
	if len(texts) == 1 {
		return SingleText{Text: texts[0]}
	}
	return TextList{Items: texts}
}

func opaque(blocks []sdk.Content) Opaque {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return Opaque{Raw: json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(blocks)))}
	}
	return Opaque{Raw: raw}
}
