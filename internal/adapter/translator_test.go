package adapter

import (
	"encoding/json"
	"errors"
	"iter"
	"testing"

	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/claude"
)

func msgStream(items ...any) iter.Seq2[claude.Message, error] {
	return func(yield func(claude.Message, error) bool) {
		for _, it := range items {
			switch v := it.(type) {
			case error:
				if !yield(nil, v) {
					return
				}
			case claude.Message:
				if !yield(v, nil) {
					return
				}
			default:
				panic("msgStream: bad item")
			}
		}
	}
}

func se(inner string) claude.StreamEvent {
	return claude.StreamEvent{Type: claude.MessageTypeStreamEvent, Event: json.RawMessage(inner)}
}

func wire(t *testing.T, line string) claude.Message {
	t.Helper()
	msg, err := claude.ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse wire line: %v", err)
	}
	return msg
}

func collect(tr *Translator, stream iter.Seq2[claude.Message, error]) ([]agui.Event, error) {
	var events []agui.Event
	var retErr error
	for ev, err := range tr.Translate(stream) {
		if err != nil {
			retErr = err
			continue
		}
		events = append(events, ev)
	}
	return events, retErr
}

func eventTypes(events []agui.Event) []agui.EventType {
	types := make([]agui.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type()
	}
	return types
}

func countType(events []agui.Event, want agui.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type() == want {
			n++
		}
	}
	return n
}

func textInput(text string) agui.RunAgentInput {
	return agui.RunAgentInput{
		ThreadID: "t1",
		RunID:    "r1",
		Messages: []agui.Message{agui.NewTextMessage("m0", agui.RoleUser, text)},
	}
}

func TestTranslateTextTurn(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`),
		se(`{"type":"message_stop"}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	want := []agui.EventType{
		agui.EventTypeTextMessageStart,
		agui.EventTypeTextMessageContent,
		agui.EventTypeTextMessageContent,
		agui.EventTypeTextMessageEnd,
		agui.EventTypeMessagesSnapshot,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	snap := events[len(events)-1].(agui.MessagesSnapshotEvent)
	if len(snap.Messages) != 2 {
		t.Fatalf("snapshot has %d messages, want input + assistant", len(snap.Messages))
	}
	if snap.Messages[0].ID != "m0" {
		t.Error("snapshot should lead with the input messages")
	}
	last := snap.Messages[1]
	if last.Role != agui.RoleAssistant || last.TextContent() != "Hi there" {
		t.Errorf("new message = role %s content %q, want assistant 'Hi there'", last.Role, last.TextContent())
	}
}

func TestTranslateLazyTextStart(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`),
		se(`{"type":"message_stop"}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("empty deltas should emit nothing, got %v", eventTypes(events))
	}
}

func TestTranslateThinkingBlock(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"let me"}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":" see"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		se(`{"type":"message_stop"}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	want := []agui.EventType{
		agui.EventTypeThinkingStart,
		agui.EventTypeThinkingTextMessageStart,
		agui.EventTypeThinkingTextMessageContent,
		agui.EventTypeThinkingTextMessageContent,
		agui.EventTypeThinkingTextMessageEnd,
		agui.EventTypeThinkingEnd,
		agui.EventTypeMessagesSnapshot,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	snap := events[len(events)-1].(agui.MessagesSnapshotEvent)
	dev := snap.Messages[len(snap.Messages)-1]
	if dev.Role != agui.RoleDeveloper || dev.TextContent() != "let me see" {
		t.Errorf("thinking should persist as developer message, got role %s content %q", dev.Role, dev.TextContent())
	}
}

func TestTranslateBackendToolLifecycle(t *testing.T) {
	tr := NewTranslator(textInput("read it"))
	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_1","name":"mcp__fs__read_file","input":{}}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"/tmp/x\"}"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		se(`{"type":"message_stop"}`),
		wire(t, `{"type":"user","session_id":"s1","parent_tool_use_id":null,"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":[{"type":"text","text":"{\"ok\":true}"}]}],"stop_reason":null,"stop_sequence":null}}`),
		wire(t, `{"type":"result","subtype":"success","session_id":"s1","result":"done","is_error":false,"num_turns":1,"duration_ms":10,"usage":{}}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	if n := countType(events, agui.EventTypeToolCallStart); n != 1 {
		t.Errorf("TOOL_CALL_START count = %d, want 1", n)
	}
	if n := countType(events, agui.EventTypeToolCallEnd); n != 1 {
		t.Errorf("TOOL_CALL_END count = %d, want 1", n)
	}

	var start agui.ToolCallStartEvent
	var result agui.ToolCallResultEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case agui.ToolCallStartEvent:
			start = e
		case agui.ToolCallResultEvent:
			result = e
		}
	}
	if start.ToolCallName != "read_file" {
		t.Errorf("tool display name = %q, want read_file", start.ToolCallName)
	}
	if result.Content != `{"ok":true}` {
		t.Errorf("tool result content = %q", result.Content)
	}

	// Result arrived after streamed args but before any text, so the
	// literal result text is synthesized as a message.
	if n := countType(events, agui.EventTypeTextMessageStart); n != 1 {
		t.Errorf("synthesized text count = %d, want 1", n)
	}

	snap := events[len(events)-1].(agui.MessagesSnapshotEvent)
	var toolMsg *agui.Message
	for i := range snap.Messages {
		if snap.Messages[i].Role == agui.RoleTool {
			toolMsg = &snap.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("snapshot missing tool result message")
	}
	if toolMsg.Name != "read_file" {
		t.Errorf("tool message name = %q, want read_file enrichment", toolMsg.Name)
	}
	if toolMsg.ToolCallID != "tu_1" {
		t.Errorf("tool message toolCallId = %q", toolMsg.ToolCallID)
	}
}

func TestTranslateStateToolSnapshotOnly(t *testing.T) {
	input := textInput("update it")
	input.State = map[string]any{"counter": float64(1), "theme": "dark"}
	tr := NewTranslator(input)

	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_s","name":"mcp__ag_ui__ag_ui_update_state","input":{}}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"state_updates\":{\"counter\":2}}"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		se(`{"type":"message_stop"}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	for _, et := range []agui.EventType{agui.EventTypeToolCallStart, agui.EventTypeToolCallArgs, agui.EventTypeToolCallEnd, agui.EventTypeToolCallResult} {
		if n := countType(events, et); n != 0 {
			t.Errorf("state tool leaked %d %s events", n, et)
		}
	}
	if n := countType(events, agui.EventTypeStateSnapshot); n != 1 {
		t.Fatalf("STATE_SNAPSHOT count = %d, want 1", n)
	}

	var snap agui.StateSnapshotEvent
	for _, ev := range events {
		if s, ok := ev.(agui.StateSnapshotEvent); ok {
			snap = s
		}
	}
	if snap.Snapshot["counter"] != float64(2) {
		t.Errorf("counter = %v, want 2", snap.Snapshot["counter"])
	}
	if snap.Snapshot["theme"] != "dark" {
		t.Error("untouched keys must survive a shallow merge")
	}
}

func TestTranslateStateToolMalformedJSON(t *testing.T) {
	input := textInput("update it")
	input.State = map[string]any{"counter": float64(1)}
	tr := NewTranslator(input)

	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_s","name":"ag_ui_update_state","input":{}}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"state_updates\": {bad"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		se(`{"type":"message_stop"}`),
	))
	if err != nil {
		t.Fatalf("malformed state update must not fail the run: %v", err)
	}
	if n := countType(events, agui.EventTypeStateSnapshot); n != 0 {
		t.Errorf("malformed update emitted %d snapshots, want 0", n)
	}
	if tr.State()["counter"] != float64(1) {
		t.Error("previous state must be retained on parse failure")
	}
}

func TestTranslateFrontendToolHalt(t *testing.T) {
	input := textInput("pick")
	input.Tools = []agui.Tool{{Name: "pick_color"}}
	tr := NewTranslator(input)

	halted := false
	tr.OnHalt = func() { halted = true }

	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_f","name":"mcp__ag_ui__pick_color","input":{}}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"hue\":\"red\"}"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		// Everything after the halt is drained, never emitted.
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"leaked"}}`),
		wire(t, `{"type":"result","subtype":"success","session_id":"s1","result":"","is_error":false,"num_turns":1,"duration_ms":5,"usage":{}}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	if !tr.Halted() {
		t.Fatal("translator should be halted")
	}
	if !halted {
		t.Error("OnHalt should fire")
	}
	if n := countType(events, agui.EventTypeToolCallEnd); n != 1 {
		t.Errorf("TOOL_CALL_END count = %d, want exactly 1", n)
	}
	if n := countType(events, agui.EventTypeTextMessageContent); n != 0 {
		t.Errorf("content leaked after halt: %v", eventTypes(events))
	}

	// TOOL_CALL_END is the last protocol event before the snapshot.
	last := events[len(events)-1]
	if _, ok := last.(agui.MessagesSnapshotEvent); !ok {
		t.Fatalf("last event = %T, want snapshot", last)
	}
	if events[len(events)-2].Type() != agui.EventTypeToolCallEnd {
		t.Errorf("event before snapshot = %s, want TOOL_CALL_END", events[len(events)-2].Type())
	}

	snap := last.(agui.MessagesSnapshotEvent)
	flushed := snap.Messages[len(snap.Messages)-1]
	if len(flushed.ToolCalls) != 1 || flushed.ToolCalls[0].Function.Name != "pick_color" {
		t.Errorf("flushed message should carry the halted tool call, got %+v", flushed.ToolCalls)
	}
	if flushed.ToolCalls[0].Function.Arguments != `{"hue":"red"}` {
		t.Errorf("arguments = %q", flushed.ToolCalls[0].Function.Arguments)
	}
}

func TestTranslateCleanupOnStreamError(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	streamErr := errors.New("process died")

	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`),
		se(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_x","name":"Bash","input":{}}}`),
		streamErr,
	))
	if !errors.Is(err, streamErr) {
		t.Fatalf("stream error must surface after cleanup, got %v", err)
	}

	// Innermost first: tool end before text end.
	var toolEndIdx, textEndIdx = -1, -1
	for i, ev := range events {
		switch ev.Type() {
		case agui.EventTypeToolCallEnd:
			toolEndIdx = i
		case agui.EventTypeTextMessageEnd:
			textEndIdx = i
		}
	}
	if toolEndIdx == -1 || textEndIdx == -1 {
		t.Fatalf("cleanup must close tool and text, got %v", eventTypes(events))
	}
	if toolEndIdx > textEndIdx {
		t.Error("tool call must close before the text message")
	}
	if countType(events, agui.EventTypeToolCallStart) != countType(events, agui.EventTypeToolCallEnd) {
		t.Error("every TOOL_CALL_START needs a matching TOOL_CALL_END")
	}

	// The partial text still reaches the snapshot.
	snap := events[len(events)-1].(agui.MessagesSnapshotEvent)
	if snap.Messages[len(snap.Messages)-1].TextContent() != "partial" {
		t.Error("pending message should be flushed into the snapshot")
	}
}

func TestTranslateCleanupMidThinking(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	streamErr := errors.New("process died")

	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"partial reasoning"}}`),
		streamErr,
	))
	if !errors.Is(err, streamErr) {
		t.Fatalf("stream error must surface after cleanup, got %v", err)
	}

	if countType(events, agui.EventTypeThinkingTextMessageEnd) != 1 {
		t.Errorf("thinking text must be closed, got %v", eventTypes(events))
	}
	if countType(events, agui.EventTypeThinkingEnd) != 1 {
		t.Errorf("thinking block must be closed, got %v", eventTypes(events))
	}

	// Accumulated thinking persists the same way a clean block stop does.
	snap := events[len(events)-1].(agui.MessagesSnapshotEvent)
	dev := snap.Messages[len(snap.Messages)-1]
	if dev.Role != agui.RoleDeveloper || dev.TextContent() != "partial reasoning" {
		t.Errorf("interrupted thinking should persist as developer message, got role %s content %q", dev.Role, dev.TextContent())
	}
}

func TestTranslateResultSynthesis(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	events, err := collect(tr, msgStream(
		wire(t, `{"type":"result","subtype":"success","session_id":"s1","result":"All done","is_error":false,"num_turns":2,"duration_ms":42,"total_cost_usd":0.01,"usage":{"input_tokens":5,"output_tokens":9}}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}

	want := []agui.EventType{
		agui.EventTypeTextMessageStart,
		agui.EventTypeTextMessageContent,
		agui.EventTypeTextMessageEnd,
		agui.EventTypeMessagesSnapshot,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	content := events[1].(agui.TextMessageContentEvent)
	if content.Delta != "All done" {
		t.Errorf("delta = %q, want result text", content.Delta)
	}

	result := tr.Result()
	if result == nil {
		t.Fatal("result metadata should be captured")
	}
	if result["num_turns"] != 2 || result["total_cost_usd"] != 0.01 {
		t.Errorf("result metadata = %v", result)
	}
}

func TestTranslateFallbackDedupesStreamedTools(t *testing.T) {
	tr := NewTranslator(textInput("go"))
	events, err := collect(tr, msgStream(
		se(`{"type":"message_start","message":{"role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}}`),
		se(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_1","name":"Bash","input":{}}}`),
		se(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`),
		se(`{"type":"content_block_stop","index":0}`),
		se(`{"type":"message_stop"}`),
		// Whole-message fallback repeats the same tool use.
		wire(t, `{"type":"assistant","session_id":"s1","parent_tool_use_id":null,"message":{"id":"m1","role":"assistant","content":[{"type":"tool_use","id":"tu_1","name":"Bash","input":{}}],"stop_reason":null,"stop_sequence":null}}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}
	if n := countType(events, agui.EventTypeToolCallStart); n != 1 {
		t.Errorf("TOOL_CALL_START count = %d, want 1 (deduplicated)", n)
	}
}

func TestTranslateSystemMessagePassthrough(t *testing.T) {
	tr := NewTranslator(textInput("hi"))
	events, err := collect(tr, msgStream(
		wire(t, `{"type":"system","subtype":"status","session_id":"s1","message":"compacting history"}`),
	))
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("event types = %v, want text triple + snapshot", eventTypes(events))
	}
	start := events[0].(agui.TextMessageStartEvent)
	if start.Role != "system" {
		t.Errorf("role = %q, want system", start.Role)
	}
	snap := events[3].(agui.MessagesSnapshotEvent)
	if snap.Messages[len(snap.Messages)-1].Role != agui.RoleSystem {
		t.Error("snapshot should record the system message")
	}
}

func TestStripMCPPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"mcp__weather__get_weather", "get_weather"},
		{"mcp__ag_ui__generate_haiku", "generate_haiku"},
		{"mcp__srv__tool__with__unders", "tool__with__unders"},
		{"local_tool", "local_tool"},
		{"mcp__broken", "mcp__broken"},
	}
	for _, tt := range tests {
		if got := StripMCPPrefix(tt.in); got != tt.want {
			t.Errorf("StripMCPPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
