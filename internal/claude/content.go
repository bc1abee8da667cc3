package claude

import (
	"encoding/json"
	"fmt"
)

// ContentBlock is one block inside an assistant or user message.
type ContentBlock interface {
	BlockType() string
}

// TextBlock is a chunk of assistant text.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BlockType returns the block type.
func (b TextBlock) BlockType() string { return "text" }

// ThinkingBlock is extended thinking content.
type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

// BlockType returns the block type.
func (b ThinkingBlock) BlockType() string { return "thinking" }

// ToolUseBlock is a tool invocation with its fully-assembled input.
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// BlockType returns the block type.
func (b ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock carries the outcome of a tool invocation. Content may be
// a string or an array of blocks, so it stays raw.
type ToolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`
}

// BlockType returns the block type.
func (b ToolResultBlock) BlockType() string { return "tool_result" }

// ContentText returns the result content as display text. Array content is
// flattened by concatenating the text of its text blocks.
func (b ToolResultBlock) ContentText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &parts); err != nil {
		return string(b.Content)
	}
	var out string
	for _, p := range parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// UnknownBlock preserves block types this package does not model.
type UnknownBlock struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// BlockType returns the block type.
func (b UnknownBlock) BlockType() string { return b.Type }

// UnmarshalContentBlock decodes a single raw content block.
func UnmarshalContentBlock(raw json.RawMessage) (ContentBlock, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse content block type: %w", err)
	}
	switch base.Type {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "thinking":
		var b ThinkingBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return UnknownBlock{Type: base.Type, Raw: raw}, nil
	}
}

// ContentBlocks decodes an array of heterogeneous content blocks.
type ContentBlocks []ContentBlock

// UnmarshalJSON implements json.Unmarshaler.
func (cb *ContentBlocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	blocks := make(ContentBlocks, 0, len(raws))
	for _, raw := range raws {
		b, err := UnmarshalContentBlock(raw)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}
	*cb = blocks
	return nil
}
