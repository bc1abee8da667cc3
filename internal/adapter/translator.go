// Package adapter translates the Claude CLI message stream of one turn into
// AG-UI protocol events. The translator is pure protocol plumbing: the
// caller owns the client lifecycle and feeds it messages.
package adapter

import (
	"encoding/json"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/claude"
)

// Translator converts one turn's vendor messages into AG-UI events. It is
// single-use: build one per run.
type Translator struct {
	input         agui.RunAgentInput
	threadID      string
	runID         string
	frontendTools map[string]struct{}
	log           *slog.Logger

	state  map[string]any
	result map[string]any
	halted bool

	// OnHalt, when set, runs the moment a frontend tool halts the stream.
	// The runner uses it to interrupt the in-flight turn so the drained
	// stream reaches its terminal marker promptly.
	OnHalt func()
}

// NewTranslator builds a translator for one run. The input's frontend tool
// names drive human-in-the-loop halt detection; its state seeds the shared
// state that ag_ui_update_state mutates.
func NewTranslator(input agui.RunAgentInput) *Translator {
	frontend := make(map[string]struct{}, len(input.Tools))
	for _, name := range input.ToolNames() {
		frontend[name] = struct{}{}
	}
	return &Translator{
		input:         input,
		threadID:      input.ThreadID,
		runID:         input.RunID,
		frontendTools: frontend,
		log:           slog.Default().With("component", "translator", "run_id", input.RunID),
		state:         input.State,
	}
}

// Result returns the turn metadata captured from the result message, or nil
// if the stream ended before one arrived.
func (t *Translator) Result() map[string]any { return t.result }

// State returns the shared state after any updates made during the run.
func (t *Translator) State() map[string]any { return t.state }

// Halted reports whether the stream stopped for a frontend tool call. The
// caller should interrupt the in-flight turn and wait for the client to
// submit the tool result in a follow-up run.
func (t *Translator) Halted() bool { return t.halted }

// turnState is the mutable per-stream framing state.
type turnState struct {
	messageID       string
	hasStreamedText bool
	inThinking      bool

	toolID      string
	toolName    string
	toolDisplay string
	toolJSON    string
	toolIsState bool

	processedToolIDs map[string]struct{}
	toolNameByID     map[string]string

	runMessages []agui.Message
	pending     *pendingMessage

	thinkingText string
}

// pendingMessage accumulates the streamed assistant message so the final
// snapshot carries exactly what was streamed.
type pendingMessage struct {
	id        string
	content   string
	toolCalls []agui.ToolCall
}

func (s *turnState) upsert(m agui.Message) {
	if m.ID != "" {
		for i := range s.runMessages {
			if s.runMessages[i].ID == m.ID {
				s.runMessages[i] = m
				return
			}
		}
	}
	s.runMessages = append(s.runMessages, m)
}

func (s *turnState) flushPending() {
	if s.pending == nil {
		return
	}
	// A message with empty content but tool calls is still valid.
	if s.pending.content != "" || len(s.pending.toolCalls) > 0 {
		m := agui.Message{ID: s.pending.id, Role: agui.RoleAssistant, ToolCalls: s.pending.toolCalls}
		if s.pending.content != "" {
			m.Content, _ = json.Marshal(s.pending.content)
		}
		s.upsert(m)
	}
	s.pending = nil
}

func (s *turnState) resetTool() {
	s.toolID = ""
	s.toolName = ""
	s.toolDisplay = ""
	s.toolJSON = ""
	s.toolIsState = false
}

// Translate consumes the turn's message stream and yields AG-UI events.
// Whatever happens mid-stream, open framing is closed innermost-first
// (tool call, then thinking, then text) before the messages snapshot, and a
// stream error is surfaced only after cleanup so frontends never see a run
// die with dangling START events.
func (t *Translator) Translate(stream iter.Seq2[claude.Message, error]) iter.Seq2[agui.Event, error] {
	return func(yield func(agui.Event, error) bool) {
		s := &turnState{
			processedToolIDs: make(map[string]struct{}),
			toolNameByID:     make(map[string]string),
		}
		alive := true
		emit := func(ev agui.Event) bool {
			if alive && !yield(ev, nil) {
				alive = false
			}
			return alive
		}

		var streamErr error
		for msg, err := range stream {
			if err != nil {
				streamErr = err
				break
			}
			// Once halted, keep consuming so the turn drains to its
			// terminal marker, but emit nothing further.
			if t.halted {
				continue
			}
			if !alive {
				break
			}
			switch m := msg.(type) {
			case claude.StreamEvent:
				t.handleStreamEvent(s, m, emit)
			case claude.AssistantMessage:
				t.handleCompleteMessage(s, m.Message, m.ParentToolUseID, true, emit)
			case claude.UserMessage:
				t.handleCompleteMessage(s, m.Message, m.ParentToolUseID, false, emit)
			case claude.SystemMessage:
				t.handleSystemMessage(s, m, emit)
			case claude.ResultMessage:
				t.handleResultMessage(s, m, emit)
			}
		}

		// Close hanging framing, innermost first.
		if s.toolID != "" && !s.toolIsState {
			emit(agui.ToolCallEndEvent{EventType: agui.EventTypeToolCallEnd, ThreadID: t.threadID, RunID: t.runID, ToolCallID: s.toolID})
			s.resetTool()
		}
		if s.inThinking {
			emit(agui.ThinkingTextMessageEndEvent{EventType: agui.EventTypeThinkingTextMessageEnd})
			emit(agui.ThinkingEndEvent{EventType: agui.EventTypeThinkingEnd})
			if s.thinkingText != "" {
				s.upsert(agui.NewTextMessage(uuid.NewString(), agui.RoleDeveloper, s.thinkingText))
				s.thinkingText = ""
			}
			s.inThinking = false
		}
		if s.hasStreamedText && s.messageID != "" {
			emit(agui.TextMessageEndEvent{EventType: agui.EventTypeTextMessageEnd, ThreadID: t.threadID, RunID: t.runID, MessageID: s.messageID})
		}
		s.flushPending()

		if len(s.runMessages) > 0 {
			all := make([]agui.Message, 0, len(t.input.Messages)+len(s.runMessages))
			all = append(all, t.input.Messages...)
			for _, m := range s.runMessages {
				if m.Role == agui.RoleTool && m.ToolCallID != "" {
					if name, ok := s.toolNameByID[m.ToolCallID]; ok {
						m.Name = name
					}
				}
				all = append(all, m)
			}
			emit(agui.MessagesSnapshotEvent{EventType: agui.EventTypeMessagesSnapshot, Messages: all})
		}

		if streamErr != nil && alive {
			yield(nil, streamErr)
		}
	}
}

func (t *Translator) handleStreamEvent(s *turnState, m claude.StreamEvent, emit func(agui.Event) bool) {
	inner, err := claude.ParseInnerEvent(m.Event)
	if err != nil {
		t.log.Warn("skipping malformed stream event", "error", err)
		return
	}
	switch e := inner.(type) {
	case claude.MessageStartEvent:
		s.messageID = uuid.NewString()
		s.hasStreamedText = false
		s.pending = &pendingMessage{id: s.messageID}

	case claude.ContentBlockStartEvent:
		block, err := e.Block()
		if err != nil {
			t.log.Warn("skipping malformed content block", "error", err)
			return
		}
		switch b := block.(type) {
		case claude.ThinkingBlock:
			s.inThinking = true
			emit(agui.ThinkingStartEvent{EventType: agui.EventTypeThinkingStart})
			emit(agui.ThinkingTextMessageStartEvent{EventType: agui.EventTypeThinkingTextMessageStart})
		case claude.ToolUseBlock:
			s.toolJSON = ""
			s.toolID = b.ID
			s.toolName = b.Name
			s.toolIsState = isStateTool(b.Name)
			if s.toolID == "" {
				return
			}
			s.toolDisplay = StripMCPPrefix(s.toolName)
			s.processedToolIDs[s.toolID] = struct{}{}
			if s.toolIsState {
				// The state tool never surfaces as an ordinary tool call;
				// its arguments accumulate silently until the block closes.
				return
			}
			s.toolNameByID[s.toolID] = s.toolDisplay
			emit(agui.ToolCallStartEvent{
				EventType:       agui.EventTypeToolCallStart,
				ThreadID:        t.threadID,
				RunID:           t.runID,
				ToolCallID:      s.toolID,
				ToolCallName:    s.toolDisplay,
				ParentMessageID: s.messageID,
			})
		}

	case claude.ContentBlockDeltaEvent:
		d, err := claude.ParseDelta(e.Delta)
		if err != nil {
			t.log.Warn("skipping malformed delta", "error", err)
			return
		}
		switch delta := d.(type) {
		case claude.TextDelta:
			if delta.Text == "" || s.messageID == "" {
				return
			}
			if !s.hasStreamedText {
				emit(agui.TextMessageStartEvent{EventType: agui.EventTypeTextMessageStart, ThreadID: t.threadID, RunID: t.runID, MessageID: s.messageID, Role: "assistant"})
			}
			s.hasStreamedText = true
			if s.pending != nil {
				s.pending.content += delta.Text
			}
			emit(agui.TextMessageContentEvent{EventType: agui.EventTypeTextMessageContent, ThreadID: t.threadID, RunID: t.runID, MessageID: s.messageID, Delta: delta.Text})
		case claude.ThinkingDelta:
			if delta.Thinking == "" {
				return
			}
			s.thinkingText += delta.Thinking
			emit(agui.ThinkingTextMessageContentEvent{EventType: agui.EventTypeThinkingTextMessageContent, Delta: delta.Thinking})
		case claude.InputJSONDelta:
			if delta.PartialJSON == "" || s.toolID == "" {
				return
			}
			s.toolJSON += delta.PartialJSON
			if s.toolIsState {
				return
			}
			emit(agui.ToolCallArgsEvent{EventType: agui.EventTypeToolCallArgs, ThreadID: t.threadID, RunID: t.runID, ToolCallID: s.toolID, Delta: delta.PartialJSON})
		}

	case claude.ContentBlockStopEvent:
		if s.inThinking {
			s.inThinking = false
			emit(agui.ThinkingTextMessageEndEvent{EventType: agui.EventTypeThinkingTextMessageEnd})
			emit(agui.ThinkingEndEvent{EventType: agui.EventTypeThinkingEnd})
			if s.thinkingText != "" {
				s.upsert(agui.NewTextMessage(uuid.NewString(), agui.RoleDeveloper, s.thinkingText))
				s.thinkingText = ""
			}
		}
		if s.toolID == "" {
			return
		}
		if isStateTool(s.toolName) {
			t.applyStateUpdate(json.RawMessage(s.toolJSON), emit)
		} else if s.pending != nil && s.toolDisplay != "" {
			s.pending.toolCalls = append(s.pending.toolCalls, agui.ToolCall{
				ID:       s.toolID,
				CallType: "function",
				Function: agui.FunctionCall{Name: s.toolDisplay, Arguments: s.toolJSON},
			})
		}
		if _, isFrontend := t.frontendTools[s.toolDisplay]; isFrontend {
			// Human-in-the-loop halt: close everything that is open, then
			// stop translating so the client can execute the tool. The
			// result comes back in the next run's messages.
			s.flushPending()
			emit(agui.ToolCallEndEvent{EventType: agui.EventTypeToolCallEnd, ThreadID: t.threadID, RunID: t.runID, ToolCallID: s.toolID})
			if s.messageID != "" && s.hasStreamedText {
				emit(agui.TextMessageEndEvent{EventType: agui.EventTypeTextMessageEnd, ThreadID: t.threadID, RunID: t.runID, MessageID: s.messageID})
				s.messageID = ""
			}
			t.log.Debug("frontend tool halt", "tool", s.toolDisplay)
			s.resetTool()
			t.halted = true
			if t.OnHalt != nil {
				t.OnHalt()
			}
			return
		}
		// Backend tools keep the call open until their result block, which
		// emits TOOL_CALL_END and TOOL_CALL_RESULT together.
		s.resetTool()

	case claude.MessageStopEvent:
		s.flushPending()
		if s.messageID != "" && s.hasStreamedText {
			emit(agui.TextMessageEndEvent{EventType: agui.EventTypeTextMessageEnd, ThreadID: t.threadID, RunID: t.runID, MessageID: s.messageID})
		}
		s.messageID = ""

	case claude.MessageDeltaEvent:
		if e.Delta.StopReason != nil {
			t.log.Debug("message stop reason", "stop_reason", *e.Delta.StopReason)
		}
	}
}

// handleCompleteMessage is the fallback path for turns where the CLI sends
// whole messages instead of (or in addition to) incremental events. Tool
// uses already seen via the stream are deduplicated by id.
func (t *Translator) handleCompleteMessage(s *turnState, content claude.MessageContent, parentToolUseID *string, isAssistant bool, emit func(agui.Event) bool) {
	blocks, ok := content.Content.AsBlocks()
	if !ok {
		return
	}

	if isAssistant {
		msgID := s.messageID
		if msgID == "" {
			msgID = uuid.NewString()
		}
		if m, ok := buildAssistantMessage(blocks, msgID); ok {
			s.upsert(m)
		}
	}

	parentID := ""
	if parentToolUseID != nil {
		parentID = *parentToolUseID
	}

	for _, block := range blocks {
		switch b := block.(type) {
		case claude.ToolUseBlock:
			if b.ID != "" {
				if _, seen := s.processedToolIDs[b.ID]; seen {
					continue
				}
			}
			toolID := b.ID
			if toolID == "" {
				toolID = uuid.NewString()
			}
			display := StripMCPPrefix(b.Name)
			s.toolNameByID[toolID] = display
			s.processedToolIDs[toolID] = struct{}{}

			if isStateTool(b.Name) {
				t.applyStateInput(b.Input, emit)
				continue
			}
			emit(agui.ToolCallStartEvent{
				EventType:       agui.EventTypeToolCallStart,
				ThreadID:        t.threadID,
				RunID:           t.runID,
				ToolCallID:      toolID,
				ToolCallName:    display,
				ParentMessageID: parentID,
			})
			if len(b.Input) > 0 {
				if args, err := json.Marshal(b.Input); err == nil {
					emit(agui.ToolCallArgsEvent{EventType: agui.EventTypeToolCallArgs, ThreadID: t.threadID, RunID: t.runID, ToolCallID: toolID, Delta: string(args)})
				}
			}

		case claude.ToolResultBlock:
			if b.ToolUseID == "" {
				continue
			}
			resultID := b.ToolUseID + "-result"
			s.upsert(agui.Message{
				ID:         resultID,
				Role:       agui.RoleTool,
				Content:    mustMarshalString(normalizeToolResult(b.Content)),
				ToolCallID: b.ToolUseID,
			})
			emit(agui.ToolCallEndEvent{EventType: agui.EventTypeToolCallEnd, ThreadID: t.threadID, RunID: t.runID, ToolCallID: b.ToolUseID})
			emit(agui.ToolCallResultEvent{
				EventType:  agui.EventTypeToolCallResult,
				ThreadID:   t.threadID,
				RunID:      t.runID,
				MessageID:  resultID,
				ToolCallID: b.ToolUseID,
				Content:    normalizeToolResult(b.Content),
				Role:       "tool",
			})
		}
	}
}

// buildAssistantMessage flattens a complete assistant message's blocks into
// an AG-UI message. Thinking blocks and the state tool are not conversation
// history and are skipped.
func buildAssistantMessage(blocks claude.ContentBlocks, msgID string) (agui.Message, bool) {
	var text string
	var toolCalls []agui.ToolCall
	for _, block := range blocks {
		switch b := block.(type) {
		case claude.TextBlock:
			text += b.Text
		case claude.ToolUseBlock:
			if isStateTool(b.Name) {
				continue
			}
			args, err := json.Marshal(b.Input)
			if err != nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, agui.ToolCall{
				ID:       b.ID,
				CallType: "function",
				Function: agui.FunctionCall{Name: StripMCPPrefix(b.Name), Arguments: string(args)},
			})
		}
	}
	if text == "" && len(toolCalls) == 0 {
		return agui.Message{}, false
	}
	m := agui.Message{ID: msgID, Role: agui.RoleAssistant, ToolCalls: toolCalls}
	if text != "" {
		m.Content = mustMarshalString(text)
	}
	return m, true
}

func (t *Translator) handleSystemMessage(s *turnState, m claude.SystemMessage, emit func(agui.Event) bool) {
	text := m.DisplayText()
	if text == "" {
		return
	}
	msgID := uuid.NewString()
	emit(agui.TextMessageStartEvent{EventType: agui.EventTypeTextMessageStart, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID, Role: "system"})
	emit(agui.TextMessageContentEvent{EventType: agui.EventTypeTextMessageContent, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID, Delta: text})
	emit(agui.TextMessageEndEvent{EventType: agui.EventTypeTextMessageEnd, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID})
	s.upsert(agui.NewTextMessage(msgID, agui.RoleSystem, text))
}

func (t *Translator) handleResultMessage(s *turnState, m claude.ResultMessage, emit func(agui.Event) bool) {
	t.result = map[string]any{
		"is_error":        m.IsError,
		"duration_ms":     m.DurationMs,
		"duration_api_ms": m.DurationAPIMs,
		"num_turns":       m.NumTurns,
		"total_cost_usd":  m.TotalCostUSD,
		"usage": map[string]any{
			"input_tokens":  m.Usage.InputTokens,
			"output_tokens": m.Usage.OutputTokens,
		},
	}
	// Non-streaming turns deliver their whole answer in the result; give
	// the frontend a proper message instead of silence.
	if !s.hasStreamedText && m.Result != "" {
		msgID := uuid.NewString()
		emit(agui.TextMessageStartEvent{EventType: agui.EventTypeTextMessageStart, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID, Role: "assistant"})
		emit(agui.TextMessageContentEvent{EventType: agui.EventTypeTextMessageContent, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID, Delta: m.Result})
		emit(agui.TextMessageEndEvent{EventType: agui.EventTypeTextMessageEnd, ThreadID: t.threadID, RunID: t.runID, MessageID: msgID})
		s.upsert(agui.NewTextMessage(msgID, agui.RoleAssistant, m.Result))
	}
}

// applyStateUpdate parses accumulated tool argument JSON and merges it into
// the shared state, emitting a snapshot. Malformed JSON is logged and the
// state left untouched.
func (t *Translator) applyStateUpdate(args json.RawMessage, emit func(agui.Event) bool) {
	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		t.log.Warn("state update arguments are not valid JSON", "error", err)
		return
	}
	t.applyStateInput(parsed, emit)
}

func (t *Translator) applyStateInput(input map[string]any, emit func(agui.Event) bool) {
	updates := any(input)
	if inner, ok := input["state_updates"]; ok {
		updates = inner
	}
	// state_updates may arrive as a JSON string.
	if s, ok := updates.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			t.log.Warn("nested state_updates is not valid JSON", "error", err)
			return
		}
		updates = parsed
	}
	if m, ok := updates.(map[string]any); ok && t.state != nil {
		merged := make(map[string]any, len(t.state)+len(m))
		for k, v := range t.state {
			merged[k] = v
		}
		for k, v := range m {
			merged[k] = v
		}
		t.state = merged
	} else if m, ok := updates.(map[string]any); ok {
		t.state = m
	} else {
		t.log.Warn("state update is not an object; ignoring")
		return
	}
	emit(agui.StateSnapshotEvent{EventType: agui.EventTypeStateSnapshot, Snapshot: t.state})
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
