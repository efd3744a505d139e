package extract

import (
	"fmt"
	"strings"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// DropOrder chooses which part of an over-budget prompt window is
// sacrificed first. The precise truncation policy is left to the host per
// the specification's open question; DropOldestFirst is the default.
type DropOrder string

const (
	DropOldestFirst     DropOrder = "oldest_first"
	DropNewestFirst     DropOrder = "newest_first"
	DropToolResultFirst DropOrder = "tool_result_first"
)

const systemDirective = "Return a single JSON object. No prose, no markdown fences. If you cannot produce JSON, return {}."

// Window is the raw material the extraction prompt is built from: a run
// of recent messages ending with the assistant turn being processed, plus
// an optional tool invocation that produced that turn.
type Window struct {
	Messages []memmodel.Message
	Tool     *memmodel.ToolInvocation
}

// estimateTokens is a coarse, allocation-free token estimate (roughly 4
// characters per token for English prose) good enough to drive a
// best-effort budget; correctness of extraction never depends on it being
// exact.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// buildPrompt assembles the extraction prompt, applying budget truncation
// per cfg.DropOrder until the estimated token count is at or under
// cfg.PromptBudgetTokens (or nothing further can be dropped).
func buildPrompt(cfg Config, window Window) string {
	messages := append([]memmodel.Message(nil), window.Messages...)
	tool := window.Tool

	for estimateTokens(renderPrompt(messages, tool)) > cfg.PromptBudgetTokens {
		switch cfg.DropOrder {
		case DropToolResultFirst:
			if tool != nil && tool.ResultText != "" {
				truncated := *tool
				truncated.ResultText = truncateToolResult(truncated.ResultText)
				tool = &truncated
				if tool.ResultText == "" && len(messages) > 1 {
					messages = messages[1:]
				}
				continue
			}
			if len(messages) > 1 {
				messages = messages[1:]
				continue
			}
		case DropNewestFirst:
			if len(messages) > 1 {
				// Keep the last message (the turn being processed) as
				// the anchor; drop the message just before it.
				messages = append(messages[:len(messages)-2:len(messages)-2], messages[len(messages)-1])
				continue
			}
			if tool != nil && tool.ResultText != "" {
				truncated := *tool
				truncated.ResultText = truncateToolResult(truncated.ResultText)
				tool = &truncated
				continue
			}
		default: // DropOldestFirst
			if len(messages) > 1 {
				messages = messages[1:]
				continue
			}
			if tool != nil && tool.ResultText != "" {
				truncated := *tool
				truncated.ResultText = truncateToolResult(truncated.ResultText)
				tool = &truncated
				continue
			}
		}
		// Nothing left to drop; accept whatever remains.
		break
	}

	return renderPrompt(messages, tool)
}

func truncateToolResult(s string) string {
	const keep = 200
	if len(s) <= keep {
		return ""
	}
	return s[:keep]
}

func renderPrompt(messages []memmodel.Message, tool *memmodel.ToolInvocation) string {
	var b strings.Builder
	b.WriteString(systemDirective)
	b.WriteString("\n\n")

	last := len(messages) - 1
	for i, m := range messages {
		if i == last && tool != nil {
			fmt.Fprintf(&b, "TOOL: %s(%s)\n", tool.Name, tool.Params)
			if tool.ResultText != "" {
				fmt.Fprintf(&b, "TOOL_OUT: %s\n", tool.ResultText)
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString(`Extract durable facts worth remembering as JSON: {"facts": [{"content": "...", "category": "infrastructure|architecture|debugging|pattern", "confidence": 0.0-1.0}]}`)
	return b.String()
}
