package episode

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

type refinerMessage struct {
	Index     int    `json:"i"`
	Role      string `json:"role"`
	Timestamp int64  `json:"t"`
	Content   string `json:"c"`
}

type refinerResult struct {
	Boundaries []int    `json:"boundaries"`
	Titles     []string `json:"titles"`
}

const refinerContentChars = 400

// refineBoundaries asks the LLM to verify and adjust the preliminary
// segmentation, returning the re-segmented episodes and true on success.
// On any failure — transport error, malformed JSON, empty result — it
// returns (nil, false) and the caller keeps its preliminary episodes.
func (d *Detector) refineBoundaries(ctx context.Context, messages []memmodel.Message, workspaceID string) ([]memmodel.Episode, bool) {
	payload := make([]refinerMessage, len(messages))
	for i, m := range messages {
		content := m.Content
		if len(content) > refinerContentChars {
			content = content[:refinerContentChars]
		}
		payload[i] = refinerMessage{
			Index:     i,
			Role:      string(m.Role),
			Timestamp: m.Timestamp.UnixNano(),
			Content:   content,
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		d.logger.Debug("boundary refinement: failed to encode conversation", "error", err)
		return nil, false
	}

	var prompt strings.Builder
	prompt.WriteString("Given this conversation as a JSON array of {i, role, t, c}, identify the message ")
	prompt.WriteString("indices where a new topic or task begins, and a short title for each resulting segment. ")
	prompt.WriteString(`Return a single JSON object {"boundaries": [int], "titles": [string]}. `)
	prompt.WriteString("No prose, no markdown fences.\n\n")
	prompt.Write(encoded)

	raw, err := d.llm.GenerateJSON(ctx, prompt.String(), memmodel.GenOptions{Temperature: 0.2, MaxTokens: 500})
	if err != nil {
		d.logger.Debug("boundary refinement: LLM call failed", "error", err)
		return nil, false
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result refinerResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		d.logger.Debug("boundary refinement: malformed JSON result", "error", err)
		return nil, false
	}

	cuts := sanitizeBoundaries(result.Boundaries, len(messages))
	if len(cuts) == 0 {
		return nil, false
	}

	episodes := buildEpisodes(messages, cuts, workspaceID)
	for i := range episodes {
		if i < len(result.Titles) {
			title := strings.TrimSpace(result.Titles[i])
			if title != "" {
				episodes[i].ContextDescription = title
			}
		}
	}
	return episodes, true
}

// sanitizeBoundaries keeps only indices within [0, n), force-includes 0,
// deduplicates, and sorts ascending.
func sanitizeBoundaries(raw []int, n int) []int {
	seen := map[int]bool{0: true}
	for _, idx := range raw {
		if idx >= 0 && idx < n {
			seen[idx] = true
		}
	}
	cuts := make([]int, 0, len(seen))
	for idx := range seen {
		cuts = append(cuts, idx)
	}
	sort.Ints(cuts)
	return cuts
}
