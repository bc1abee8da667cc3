package claude

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseMessageSystemInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"sess-123","model":"claude-sonnet-4-5","tools":["Read","Bash"]}`
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	sys, ok := msg.(SystemMessage)
	if !ok {
		t.Fatalf("expected SystemMessage, got %T", msg)
	}
	if sys.Subtype != "init" {
		t.Errorf("subtype = %q, want init", sys.Subtype)
	}
	if sys.SessionID != "sess-123" {
		t.Errorf("session_id = %q, want sess-123", sys.SessionID)
	}
	if len(sys.Tools) != 2 {
		t.Errorf("tools = %v, want 2 entries", sys.Tools)
	}
}

func TestParseMessageAssistantBlocks(t *testing.T) {
	line := `{"type":"assistant","session_id":"s1","parent_tool_use_id":null,"message":{"id":"msg_1","role":"assistant","content":[{"type":"text","text":"hello"},{"type":"tool_use","id":"tu_1","name":"Read","input":{"path":"/tmp/x"}}],"stop_reason":null,"stop_sequence":null}}`
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	am, ok := msg.(AssistantMessage)
	if !ok {
		t.Fatalf("expected AssistantMessage, got %T", msg)
	}
	blocks, ok := am.Message.Content.AsBlocks()
	if !ok {
		t.Fatal("content should decode as blocks")
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	text, ok := blocks[0].(TextBlock)
	if !ok || text.Text != "hello" {
		t.Errorf("block 0 = %#v, want text 'hello'", blocks[0])
	}
	tu, ok := blocks[1].(ToolUseBlock)
	if !ok {
		t.Fatalf("block 1 = %T, want ToolUseBlock", blocks[1])
	}
	if tu.ID != "tu_1" || tu.Name != "Read" {
		t.Errorf("tool_use = %+v", tu)
	}
	if tu.Input["path"] != "/tmp/x" {
		t.Errorf("input = %v", tu.Input)
	}
}

func TestParseMessageResult(t *testing.T) {
	line := `{"type":"result","subtype":"success","session_id":"s1","result":"done","is_error":false,"num_turns":3,"duration_ms":1200,"total_cost_usd":0.0123,"usage":{"input_tokens":10,"output_tokens":20}}`
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	rm, ok := msg.(ResultMessage)
	if !ok {
		t.Fatalf("expected ResultMessage, got %T", msg)
	}
	if rm.Result != "done" || rm.IsError || rm.NumTurns != 3 {
		t.Errorf("result = %+v", rm)
	}
	if rm.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", rm.Usage)
	}
}

func TestParseMessageUnknownTypeSkipped(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"telemetry","whatever":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil for unknown type, got %T", msg)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	if _, err := ParseMessage([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestFlexibleContentString(t *testing.T) {
	var mc MessageContent
	if err := json.Unmarshal([]byte(`{"role":"user","content":"plain text","stop_reason":null,"stop_sequence":null}`), &mc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s, ok := mc.Content.AsString()
	if !ok || s != "plain text" {
		t.Errorf("AsString = %q, %v", s, ok)
	}
	if _, ok := mc.Content.AsBlocks(); ok {
		t.Error("string content should not decode as blocks")
	}
}

func TestToolResultContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"all good"`, "all good"},
		{"blocks", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "ab"},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ToolResultBlock{Content: json.RawMessage(tt.content)}
			if got := b.ContentText(); got != tt.want {
				t.Errorf("ContentText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInnerEventDeltas(t *testing.T) {
	raw := json.RawMessage(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"chunk"}}`)
	ev, err := ParseInnerEvent(raw)
	if err != nil {
		t.Fatalf("ParseInnerEvent: %v", err)
	}
	cbd, ok := ev.(ContentBlockDeltaEvent)
	if !ok {
		t.Fatalf("expected ContentBlockDeltaEvent, got %T", ev)
	}
	d, err := ParseDelta(cbd.Delta)
	if err != nil {
		t.Fatalf("ParseDelta: %v", err)
	}
	td, ok := d.(TextDelta)
	if !ok || td.Text != "chunk" {
		t.Errorf("delta = %#v", d)
	}
}

func TestParseInnerEventBlockStart(t *testing.T) {
	raw := json.RawMessage(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_9","name":"mcp__fs__read","input":{}}}`)
	ev, err := ParseInnerEvent(raw)
	if err != nil {
		t.Fatalf("ParseInnerEvent: %v", err)
	}
	start, ok := ev.(ContentBlockStartEvent)
	if !ok {
		t.Fatalf("expected ContentBlockStartEvent, got %T", ev)
	}
	block, err := start.Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	tu, ok := block.(ToolUseBlock)
	if !ok || tu.Name != "mcp__fs__read" {
		t.Errorf("block = %#v", block)
	}
}

func TestParseInnerEventUnknown(t *testing.T) {
	ev, err := ParseInnerEvent(json.RawMessage(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("expected nil for unknown inner event, got %T", ev)
	}
}

func TestBuildCLIArgs(t *testing.T) {
	opts := Options{
		Model:          "claude-sonnet-4-5",
		PermissionMode: "acceptEdits",
		Resume:         "sess-42",
		AllowedTools:   []string{"Read", "mcp__ag_ui__ag_ui_update_state"},
		MaxTurns:       8,
	}
	args := strings.Join(opts.BuildCLIArgs(), " ")
	for _, want := range []string{
		"--input-format stream-json",
		"--output-format stream-json",
		"--include-partial-messages",
		"--model claude-sonnet-4-5",
		"--permission-mode acceptEdits",
		"--resume sess-42",
		"--allowedTools Read,mcp__ag_ui__ag_ui_update_state",
		"--max-turns 8",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}
