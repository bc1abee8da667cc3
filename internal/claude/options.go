package claude

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Options configures one CLI process.
type Options struct {
	// CLIPath is the path to the CLI binary. Defaults to "claude" on PATH.
	CLIPath string
	// Model selects the model, e.g. "claude-sonnet-4-5".
	Model string
	// WorkDir is the working directory for the process.
	WorkDir string
	// SystemPrompt is appended to the CLI's system prompt.
	SystemPrompt string
	// AllowedTools lists tool names the CLI may use without prompting.
	AllowedTools []string
	// DisallowedTools lists tool names the CLI must not use.
	DisallowedTools []string
	// PermissionMode controls the permission policy, e.g. "acceptEdits".
	PermissionMode string
	// Resume is a session id to resume from persisted CLI state.
	Resume string
	// MaxTurns caps agentic turns per query. Zero means no cap.
	MaxTurns int
	// MaxThinkingTokens caps extended thinking. Zero means CLI default.
	MaxThinkingTokens int
	// MCPServers is raw MCP server configuration passed through to the CLI.
	MCPServers map[string]any
	// Env adds environment variables for the process.
	Env map[string]string
	// ExtraArgs appends verbatim CLI arguments.
	ExtraArgs []string
}

func (o Options) cliPath() string {
	if o.CLIPath != "" {
		return o.CLIPath
	}
	return "claude"
}

// BuildCLIArgs assembles the argument list for a streaming session. Partial
// message events are always requested since the translator consumes deltas.
func (o Options) BuildCLIArgs() []string {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.SystemPrompt)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(o.DisallowedTools, ","))
	}
	if o.PermissionMode != "" {
		args = append(args, "--permission-mode", o.PermissionMode)
	}
	if o.Resume != "" {
		args = append(args, "--resume", o.Resume)
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if len(o.MCPServers) > 0 {
		cfg, err := json.Marshal(map[string]any{"mcpServers": o.MCPServers})
		if err == nil {
			args = append(args, "--mcp-config", string(cfg))
		}
	}
	args = append(args, o.ExtraArgs...)
	return args
}

func (o Options) processEnv() []string {
	env := make([]string, 0, len(o.Env)+1)
	for k, v := range o.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if o.MaxThinkingTokens > 0 {
		env = append(env, fmt.Sprintf("MAX_THINKING_TOKENS=%d", o.MaxThinkingTokens))
	}
	return env
}
