// Package agui defines the AG-UI protocol vocabulary: the typed events a
// runner emits to frontends and the message/input shapes it accepts.
package agui

// EventType discriminates between AG-UI event kinds.
type EventType string

const (
	EventTypeRunStarted  EventType = "RUN_STARTED"
	EventTypeRunFinished EventType = "RUN_FINISHED"
	EventTypeRunError    EventType = "RUN_ERROR"

	EventTypeTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTypeTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTypeTextMessageEnd     EventType = "TEXT_MESSAGE_END"

	EventTypeToolCallStart  EventType = "TOOL_CALL_START"
	EventTypeToolCallArgs   EventType = "TOOL_CALL_ARGS"
	EventTypeToolCallEnd    EventType = "TOOL_CALL_END"
	EventTypeToolCallResult EventType = "TOOL_CALL_RESULT"

	EventTypeThinkingStart              EventType = "THINKING_START"
	EventTypeThinkingEnd                EventType = "THINKING_END"
	EventTypeThinkingTextMessageStart   EventType = "THINKING_TEXT_MESSAGE_START"
	EventTypeThinkingTextMessageContent EventType = "THINKING_TEXT_MESSAGE_CONTENT"
	EventTypeThinkingTextMessageEnd     EventType = "THINKING_TEXT_MESSAGE_END"

	EventTypeStateSnapshot    EventType = "STATE_SNAPSHOT"
	EventTypeMessagesSnapshot EventType = "MESSAGES_SNAPSHOT"
)

// Event is the interface for all AG-UI events.
type Event interface {
	Type() EventType
}

// RunStartedEvent opens a run. Input echoes the run request so clients can
// correlate the stream with what they submitted.
type RunStartedEvent struct {
	EventType   EventType      `json:"type"`
	ThreadID    string         `json:"threadId"`
	RunID       string         `json:"runId"`
	ParentRunID string         `json:"parentRunId,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
}

// Type returns the event type.
func (e RunStartedEvent) Type() EventType { return EventTypeRunStarted }

// RunFinishedEvent closes a run successfully. Result carries turn metadata
// (usage, cost, duration) when the vendor reported it.
type RunFinishedEvent struct {
	EventType EventType      `json:"type"`
	ThreadID  string         `json:"threadId"`
	RunID     string         `json:"runId"`
	Result    map[string]any `json:"result,omitempty"`
}

// Type returns the event type.
func (e RunFinishedEvent) Type() EventType { return EventTypeRunFinished }

// RunErrorEvent closes a run with an error.
type RunErrorEvent struct {
	EventType EventType `json:"type"`
	ThreadID  string    `json:"threadId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	Message   string    `json:"message"`
}

// Type returns the event type.
func (e RunErrorEvent) Type() EventType { return EventTypeRunError }

// TextMessageStartEvent opens a streamed text message.
type TextMessageStartEvent struct {
	EventType EventType `json:"type"`
	ThreadID  string    `json:"threadId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
}

// Type returns the event type.
func (e TextMessageStartEvent) Type() EventType { return EventTypeTextMessageStart }

// TextMessageContentEvent carries one text delta.
type TextMessageContentEvent struct {
	EventType EventType `json:"type"`
	ThreadID  string    `json:"threadId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	MessageID string    `json:"messageId"`
	Delta     string    `json:"delta"`
}

// Type returns the event type.
func (e TextMessageContentEvent) Type() EventType { return EventTypeTextMessageContent }

// TextMessageEndEvent closes a streamed text message.
type TextMessageEndEvent struct {
	EventType EventType `json:"type"`
	ThreadID  string    `json:"threadId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	MessageID string    `json:"messageId"`
}

// Type returns the event type.
func (e TextMessageEndEvent) Type() EventType { return EventTypeTextMessageEnd }

// ToolCallStartEvent opens a tool call. ToolCallName is the display name
// (transport prefixes stripped) so frontends can match registered tools.
type ToolCallStartEvent struct {
	EventType       EventType `json:"type"`
	ThreadID        string    `json:"threadId,omitempty"`
	RunID           string    `json:"runId,omitempty"`
	ToolCallID      string    `json:"toolCallId"`
	ToolCallName    string    `json:"toolCallName"`
	ParentMessageID string    `json:"parentMessageId,omitempty"`
}

// Type returns the event type.
func (e ToolCallStartEvent) Type() EventType { return EventTypeToolCallStart }

// ToolCallArgsEvent carries one raw-JSON argument delta.
type ToolCallArgsEvent struct {
	EventType  EventType `json:"type"`
	ThreadID   string    `json:"threadId,omitempty"`
	RunID      string    `json:"runId,omitempty"`
	ToolCallID string    `json:"toolCallId"`
	Delta      string    `json:"delta"`
}

// Type returns the event type.
func (e ToolCallArgsEvent) Type() EventType { return EventTypeToolCallArgs }

// ToolCallEndEvent closes a tool call.
type ToolCallEndEvent struct {
	EventType  EventType `json:"type"`
	ThreadID   string    `json:"threadId,omitempty"`
	RunID      string    `json:"runId,omitempty"`
	ToolCallID string    `json:"toolCallId"`
}

// Type returns the event type.
func (e ToolCallEndEvent) Type() EventType { return EventTypeToolCallEnd }

// ToolCallResultEvent delivers a backend tool's result content.
type ToolCallResultEvent struct {
	EventType  EventType `json:"type"`
	ThreadID   string    `json:"threadId,omitempty"`
	RunID      string    `json:"runId,omitempty"`
	MessageID  string    `json:"messageId"`
	ToolCallID string    `json:"toolCallId"`
	Content    string    `json:"content"`
	Role       string    `json:"role,omitempty"`
}

// Type returns the event type.
func (e ToolCallResultEvent) Type() EventType { return EventTypeToolCallResult }

// ThinkingStartEvent opens a reasoning block.
type ThinkingStartEvent struct {
	EventType EventType `json:"type"`
}

// Type returns the event type.
func (e ThinkingStartEvent) Type() EventType { return EventTypeThinkingStart }

// ThinkingEndEvent closes a reasoning block.
type ThinkingEndEvent struct {
	EventType EventType `json:"type"`
}

// Type returns the event type.
func (e ThinkingEndEvent) Type() EventType { return EventTypeThinkingEnd }

// ThinkingTextMessageStartEvent opens the text stream inside a reasoning block.
type ThinkingTextMessageStartEvent struct {
	EventType EventType `json:"type"`
}

// Type returns the event type.
func (e ThinkingTextMessageStartEvent) Type() EventType { return EventTypeThinkingTextMessageStart }

// ThinkingTextMessageContentEvent carries one reasoning text delta.
type ThinkingTextMessageContentEvent struct {
	EventType EventType `json:"type"`
	Delta     string    `json:"delta"`
}

// Type returns the event type.
func (e ThinkingTextMessageContentEvent) Type() EventType { return EventTypeThinkingTextMessageContent }

// ThinkingTextMessageEndEvent closes the text stream inside a reasoning block.
type ThinkingTextMessageEndEvent struct {
	EventType EventType `json:"type"`
}

// Type returns the event type.
func (e ThinkingTextMessageEndEvent) Type() EventType { return EventTypeThinkingTextMessageEnd }

// StateSnapshotEvent publishes the full shared state after a change.
type StateSnapshotEvent struct {
	EventType EventType      `json:"type"`
	Snapshot  map[string]any `json:"snapshot"`
}

// Type returns the event type.
func (e StateSnapshotEvent) Type() EventType { return EventTypeStateSnapshot }

// MessagesSnapshotEvent publishes the full conversation (input messages plus
// everything produced during the run) once the stream settles.
type MessagesSnapshotEvent struct {
	EventType EventType `json:"type"`
	Messages  []Message `json:"messages"`
}

// Type returns the event type.
func (e MessagesSnapshotEvent) Type() EventType { return EventTypeMessagesSnapshot }
