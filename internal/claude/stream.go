package claude

import (
	"encoding/json"
	"fmt"
)

// StreamEventType discriminates inner streaming event kinds.
type StreamEventType string

const (
	StreamEventMessageStart      StreamEventType = "message_start"
	StreamEventContentBlockStart StreamEventType = "content_block_start"
	StreamEventContentBlockDelta StreamEventType = "content_block_delta"
	StreamEventContentBlockStop  StreamEventType = "content_block_stop"
	StreamEventMessageDelta      StreamEventType = "message_delta"
	StreamEventMessageStop       StreamEventType = "message_stop"
)

// InnerEvent is one decoded streaming event from inside a StreamEvent wrapper.
type InnerEvent interface {
	StreamType() StreamEventType
}

// MessageStartEvent opens a new streamed message.
type MessageStartEvent struct {
	Type    StreamEventType `json:"type"`
	Message MessageContent  `json:"message"`
}

// StreamType returns the stream event type.
func (e MessageStartEvent) StreamType() StreamEventType { return StreamEventMessageStart }

// ContentBlockStartEvent opens a content block at the given index.
type ContentBlockStartEvent struct {
	Type         StreamEventType `json:"type"`
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block"`
}

// StreamType returns the stream event type.
func (e ContentBlockStartEvent) StreamType() StreamEventType { return StreamEventContentBlockStart }

// Block decodes the opened content block.
func (e ContentBlockStartEvent) Block() (ContentBlock, error) {
	return UnmarshalContentBlock(e.ContentBlock)
}

// ContentBlockDeltaEvent carries an incremental update to an open block.
type ContentBlockDeltaEvent struct {
	Type  StreamEventType `json:"type"`
	Index int             `json:"index"`
	Delta json.RawMessage `json:"delta"`
}

// StreamType returns the stream event type.
func (e ContentBlockDeltaEvent) StreamType() StreamEventType { return StreamEventContentBlockDelta }

// ContentBlockStopEvent closes the content block at the given index.
type ContentBlockStopEvent struct {
	Type  StreamEventType `json:"type"`
	Index int             `json:"index"`
}

// StreamType returns the stream event type.
func (e ContentBlockStopEvent) StreamType() StreamEventType { return StreamEventContentBlockStop }

// MessageDeltaEvent carries message-level updates such as stop_reason.
type MessageDeltaEvent struct {
	Type  StreamEventType `json:"type"`
	Delta struct {
		StopReason   *string `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	} `json:"delta"`
	Usage Usage `json:"usage"`
}

// StreamType returns the stream event type.
func (e MessageDeltaEvent) StreamType() StreamEventType { return StreamEventMessageDelta }

// MessageStopEvent closes the streamed message.
type MessageStopEvent struct {
	Type StreamEventType `json:"type"`
}

// StreamType returns the stream event type.
func (e MessageStopEvent) StreamType() StreamEventType { return StreamEventMessageStop }

// ParseInnerEvent decodes the payload of a StreamEvent wrapper. Unknown
// event types return (nil, nil).
func ParseInnerEvent(raw json.RawMessage) (InnerEvent, error) {
	var base struct {
		Type StreamEventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse stream event type: %w", err)
	}
	switch base.Type {
	case StreamEventMessageStart:
		var e MessageStartEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	case StreamEventContentBlockStart:
		var e ContentBlockStartEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	case StreamEventContentBlockDelta:
		var e ContentBlockDeltaEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	case StreamEventContentBlockStop:
		var e ContentBlockStopEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	case StreamEventMessageDelta:
		var e MessageDeltaEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	case StreamEventMessageStop:
		var e MessageStopEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, nil
	}
}

// Delta is an incremental update inside a content_block_delta event.
type Delta interface {
	DeltaType() string
}

// TextDelta appends text to an open text block.
type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DeltaType returns the delta type.
func (d TextDelta) DeltaType() string { return "text_delta" }

// ThinkingDelta appends thinking text to an open thinking block.
type ThinkingDelta struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

// DeltaType returns the delta type.
func (d ThinkingDelta) DeltaType() string { return "thinking_delta" }

// SignatureDelta carries the thinking signature.
type SignatureDelta struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
}

// DeltaType returns the delta type.
func (d SignatureDelta) DeltaType() string { return "signature_delta" }

// InputJSONDelta appends a fragment of tool input JSON.
type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

// DeltaType returns the delta type.
func (d InputJSONDelta) DeltaType() string { return "input_json_delta" }

// ParseDelta decodes the delta of a content_block_delta event. Unknown
// delta types return (nil, nil).
func ParseDelta(raw json.RawMessage) (Delta, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse delta type: %w", err)
	}
	switch base.Type {
	case "text_delta":
		var d TextDelta
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "thinking_delta":
		var d ThinkingDelta
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "signature_delta":
		var d SignatureDelta
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "input_json_delta":
		var d InputJSONDelta
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, nil
	}
}
