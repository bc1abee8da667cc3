package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/claude"
)

// allowedForwardedProps whitelists the per-run overrides a client may send
// via forwardedProps. These are execution controls, not identity or
// security settings.
var allowedForwardedProps = map[string]struct{}{
	"resume":              {},
	"model":               {},
	"max_turns":           {},
	"max_thinking_tokens": {},
}

// BuildOptions derives the per-run client options from the agent's base
// configuration and the run input: the shared state and application context
// go into the system prompt, frontend tools and the state tool are granted
// permission under their MCP names, and whitelisted forwardedProps apply as
// overrides.
func BuildOptions(base claude.Options, input agui.RunAgentInput) claude.Options {
	opts := base

	if addendum := stateContextAddendum(input); addendum != "" {
		if opts.SystemPrompt != "" {
			opts.SystemPrompt = opts.SystemPrompt + "\n\n" + addendum
		} else {
			opts.SystemPrompt = addendum
		}
	}

	if len(input.State) > 0 || len(input.Tools) > 0 {
		allowed := append([]string(nil), opts.AllowedTools...)
		have := make(map[string]struct{}, len(allowed))
		for _, name := range allowed {
			have[name] = struct{}{}
		}
		grant := func(name string) {
			if _, ok := have[name]; !ok {
				allowed = append(allowed, name)
				have[name] = struct{}{}
			}
		}
		if len(input.State) > 0 {
			grant(StateToolFullName)
		}
		for _, name := range input.ToolNames() {
			grant(fmt.Sprintf("mcp__%s__%s", MCPServerName, name))
		}
		opts.AllowedTools = allowed
	}

	applyForwardedProps(&opts, input.ForwardedProps)
	return opts
}

func applyForwardedProps(opts *claude.Options, props map[string]any) {
	log := slog.Default().With("component", "options_builder")
	for key, value := range props {
		if value == nil {
			continue
		}
		if _, ok := allowedForwardedProps[key]; !ok {
			log.Warn("ignoring non-whitelisted forwarded prop", "key", key)
			continue
		}
		switch key {
		case "resume":
			if s, ok := value.(string); ok {
				opts.Resume = s
			}
		case "model":
			if s, ok := value.(string); ok {
				opts.Model = s
			}
		case "max_turns":
			if n, ok := asInt(value); ok {
				opts.MaxTurns = n
			}
		case "max_thinking_tokens":
			if n, ok := asInt(value); ok {
				opts.MaxThinkingTokens = n
			}
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// stateContextAddendum renders the run's context items and shared state as
// a system prompt block so the agent can see current values without
// polluting the user message.
func stateContextAddendum(input agui.RunAgentInput) string {
	var b strings.Builder

	if len(input.Context) > 0 {
		b.WriteString("## Context from the application\n")
		for _, ctx := range input.Context {
			fmt.Fprintf(&b, "- %s: %s\n", ctx.Description, ctx.Value)
		}
		b.WriteString("\n")
	}

	if len(input.State) > 0 {
		b.WriteString("## Current Shared State\n")
		b.WriteString("This state is shared with the frontend UI and can be updated.\n")
		if stateJSON, err := json.MarshalIndent(input.State, "", "  "); err == nil {
			fmt.Fprintf(&b, "```json\n%s\n```\n", stateJSON)
		} else {
			fmt.Fprintf(&b, "State: %v\n", input.State)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "To update this state, use the `%s` tool with your changes.\n", StateToolName)
	}

	return strings.TrimRight(b.String(), "\n")
}
