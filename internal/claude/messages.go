// Package claude models the Claude CLI stream-json wire protocol and provides
// a client for driving one CLI process. Messages are decoded once at the
// stream boundary into a closed set of variants; consumers switch on the
// concrete type instead of probing raw JSON.
package claude

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates between wire message kinds.
type MessageType string

const (
	MessageTypeSystem          MessageType = "system"
	MessageTypeAssistant       MessageType = "assistant"
	MessageTypeUser            MessageType = "user"
	MessageTypeResult          MessageType = "result"
	MessageTypeStreamEvent     MessageType = "stream_event"
	MessageTypeControlRequest  MessageType = "control_request"
	MessageTypeControlResponse MessageType = "control_response"
)

// Message is the interface for all wire messages.
type Message interface {
	MsgType() MessageType
}

// SystemMessage carries session initialization and other system events.
// Subtype "init" delivers the session id used for --resume.
type SystemMessage struct {
	Type           MessageType `json:"type"`
	Subtype        string      `json:"subtype"`
	SessionID      string      `json:"session_id,omitempty"`
	Model          string      `json:"model,omitempty"`
	CWD            string      `json:"cwd,omitempty"`
	PermissionMode string      `json:"permissionMode,omitempty"`
	Tools          []string    `json:"tools,omitempty"`
	Message        string      `json:"message,omitempty"`
	Text           string      `json:"text,omitempty"`
}

// MsgType returns the message type.
func (m SystemMessage) MsgType() MessageType { return MessageTypeSystem }

// DisplayText returns user-facing text carried by a system message, if any.
func (m SystemMessage) DisplayText() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Text
}

// Usage tracks token usage for one message or turn.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// FlexibleContent is message content that arrives either as a plain string
// or as an array of content blocks.
type FlexibleContent struct {
	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (fc *FlexibleContent) UnmarshalJSON(data []byte) error {
	fc.raw = data
	return nil
}

// MarshalJSON implements json.Marshaler.
func (fc FlexibleContent) MarshalJSON() ([]byte, error) {
	if fc.raw == nil {
		return []byte("null"), nil
	}
	return fc.raw, nil
}

// IsString reports whether the content is a plain string.
func (fc FlexibleContent) IsString() bool {
	return len(fc.raw) > 0 && fc.raw[0] == '"'
}

// AsString returns the content as a string, if it is one.
func (fc FlexibleContent) AsString() (string, bool) {
	if !fc.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(fc.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsBlocks returns the content as content blocks, if it is an array.
func (fc FlexibleContent) AsBlocks() (ContentBlocks, bool) {
	if fc.IsString() || len(fc.raw) == 0 {
		return nil, false
	}
	var blocks ContentBlocks
	if err := json.Unmarshal(fc.raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// MessageContent is the inner content of assistant/user messages.
type MessageContent struct {
	ID           string          `json:"id,omitempty"`
	Model        string          `json:"model,omitempty"`
	Role         string          `json:"role"`
	Content      FlexibleContent `json:"content"`
	StopReason   *string         `json:"stop_reason"`
	StopSequence *string         `json:"stop_sequence"`
	Usage        Usage           `json:"usage,omitempty"`
}

// AssistantMessage is a complete assistant message.
type AssistantMessage struct {
	Type            MessageType    `json:"type"`
	SessionID       string         `json:"session_id"`
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	Message         MessageContent `json:"message"`
}

// MsgType returns the message type.
func (m AssistantMessage) MsgType() MessageType { return MessageTypeAssistant }

// UserMessage carries tool results echoed back by the CLI.
type UserMessage struct {
	Type            MessageType    `json:"type"`
	SessionID       string         `json:"session_id"`
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	Message         MessageContent `json:"message"`
}

// MsgType returns the message type.
func (m UserMessage) MsgType() MessageType { return MessageTypeUser }

// ResultMessage terminates a turn with completion metrics.
type ResultMessage struct {
	Type          MessageType `json:"type"`
	Subtype       string      `json:"subtype"`
	SessionID     string      `json:"session_id"`
	Result        string      `json:"result"`
	IsError       bool        `json:"is_error"`
	NumTurns      int         `json:"num_turns"`
	DurationMs    int64       `json:"duration_ms"`
	DurationAPIMs int64       `json:"duration_api_ms"`
	TotalCostUSD  float64     `json:"total_cost_usd"`
	Usage         Usage       `json:"usage"`
}

// MsgType returns the message type.
func (m ResultMessage) MsgType() MessageType { return MessageTypeResult }

// StreamEvent wraps one incremental streaming update.
type StreamEvent struct {
	Type            MessageType     `json:"type"`
	SessionID       string          `json:"session_id"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Event           json.RawMessage `json:"event"`
}

// MsgType returns the message type.
func (m StreamEvent) MsgType() MessageType { return MessageTypeStreamEvent }

// ControlRequest wraps control messages from the CLI (permission prompts,
// MCP traffic). The runner does not service these; they are surfaced so a
// client configuration can answer them.
type ControlRequest struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// MsgType returns the message type.
func (m ControlRequest) MsgType() MessageType { return MessageTypeControlRequest }

// ControlResponsePayload is the inner payload of a control response.
type ControlResponsePayload struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"`
	Error     string          `json:"error,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// ControlResponse answers a control request we sent to the CLI.
type ControlResponse struct {
	Type     MessageType            `json:"type"`
	Response ControlResponsePayload `json:"response"`
}

// MsgType returns the message type.
func (m ControlResponse) MsgType() MessageType { return MessageTypeControlResponse }

// userMessageToSend is the wire form of an outbound user message.
type userMessageToSend struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Message   userMessageToSendInner `json:"message"`
}

type userMessageToSendInner struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// controlRequestToSend is the wire form of an outbound control request.
type controlRequestToSend struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   any    `json:"request"`
}

// ParseMessage decodes a raw NDJSON line into a typed message. Unknown
// message types return (nil, nil) so the reader can skip them.
func ParseMessage(line []byte) (Message, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(line, &base); err != nil {
		return nil, fmt.Errorf("parse message type: %w", err)
	}

	switch base.Type {
	case MessageTypeSystem:
		var m SystemMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse system message: %w", err)
		}
		return m, nil
	case MessageTypeAssistant:
		var m AssistantMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse assistant message: %w", err)
		}
		return m, nil
	case MessageTypeUser:
		var m UserMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse user message: %w", err)
		}
		return m, nil
	case MessageTypeResult:
		var m ResultMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse result message: %w", err)
		}
		return m, nil
	case MessageTypeStreamEvent:
		var m StreamEvent
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse stream event: %w", err)
		}
		return m, nil
	case MessageTypeControlRequest:
		var m ControlRequest
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse control request: %w", err)
		}
		return m, nil
	case MessageTypeControlResponse:
		var m ControlResponse
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse control response: %w", err)
		}
		return m, nil
	default:
		return nil, nil
	}
}
