package adapter

import (
	"encoding/json"
	"strings"
)

// Tool naming for the dynamic ag_ui MCP server. The CLI prefixes MCP tools
// with mcp__<server>__, so the state tool appears under both names.
const (
	MCPServerName     = "ag_ui"
	StateToolName     = "ag_ui_update_state"
	StateToolFullName = "mcp__ag_ui__ag_ui_update_state"
)

// StripMCPPrefix removes the mcp__<server>__ prefix from a tool name so it
// matches the name the frontend registered. Double underscores inside the
// tool name itself are preserved.
//
//	mcp__weather__get_weather -> get_weather
//	mcp__ag_ui__generate_haiku -> generate_haiku
//	local_tool -> local_tool
func StripMCPPrefix(name string) string {
	if !strings.HasPrefix(name, "mcp__") {
		return name
	}
	parts := strings.Split(name, "__")
	if len(parts) < 3 {
		return name
	}
	return strings.Join(parts[2:], "__")
}

func isStateTool(name string) bool {
	return name == StateToolName || name == StateToolFullName
}

// normalizeToolResult flattens a tool result's content into a display
// string. The common shape is [{"type":"text","text":"<json>"}]; the inner
// text is re-encoded compactly when it is itself JSON.
func normalizeToolResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var blocks []map[string]any
	if err := json.Unmarshal(raw, &blocks); err == nil {
		if len(blocks) == 0 {
			return ""
		}
		if t, _ := blocks[0]["type"].(string); t == "text" {
			text, _ := blocks[0]["text"].(string)
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				if compact, err := json.Marshal(parsed); err == nil {
					return string(compact)
				}
			}
			return text
		}
		if b, err := json.Marshal(blocks); err == nil {
			return string(b)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
