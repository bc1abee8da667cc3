package agui

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
)

// FunctionCall names a tool and carries its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation attached to an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	CallType string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one entry in the conversation. Content holds either plain text
// or, for user input, an array of content blocks; both forms are accepted.
type Message struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall      `json:"toolCalls,omitempty"`
}

// NewTextMessage builds a message whose content is a plain string.
func NewTextMessage(id string, role Role, text string) Message {
	content, _ := json.Marshal(text)
	return Message{ID: id, Role: role, Content: content}
}

// TextContent extracts the text of a message. Plain-string content is
// returned directly; block-array content yields the first text block.
func (m Message) TextContent() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &blocks); err == nil {
		for _, b := range blocks {
			if b.Text != "" {
				return b.Text
			}
		}
	}
	return ""
}

// Tool is a frontend tool definition offered to the agent for one run.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ContextItem is one piece of application context passed with a run.
type ContextItem struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// RunAgentInput is the request body for one run.
type RunAgentInput struct {
	ThreadID       string         `json:"threadId"`
	RunID          string         `json:"runId"`
	ParentRunID    string         `json:"parentRunId,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Tools          []Tool         `json:"tools,omitempty"`
	Context        []ContextItem  `json:"context,omitempty"`
	State          map[string]any `json:"state,omitempty"`
	ForwardedProps map[string]any `json:"forwardedProps,omitempty"`
}

// ToolNames returns the declared frontend tool names in input order.
func (in RunAgentInput) ToolNames() []string {
	names := make([]string, 0, len(in.Tools))
	for _, t := range in.Tools {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// Prompt extracts the vendor prompt from the last input message, whatever
// its role. The vendor keeps its own history, so only the latest entry is
// forwarded.
func (in RunAgentInput) Prompt() string {
	if len(in.Messages) == 0 {
		return ""
	}
	return in.Messages[len(in.Messages)-1].TextContent()
}
