package memmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// EpisodeAnchorID computes the stable 10-hex-char fingerprint an episode is
// identified by. It depends only on the episode's anchor — the workspace,
// the first message's content (truncated to 120 bytes), and the first
// message's timestamp — never on messages appended to the episode later,
// so the ID stays stable as the episode grows across turns.
func EpisodeAnchorID(workspaceID string, firstMessageContent string, firstTimestampUnixNano int64) string {
	anchor := firstMessageContent
	if len(anchor) > 120 {
		anchor = anchor[:120]
	}

	h := sha256.New()
	h.Write([]byte(workspaceID))
	h.Write([]byte(anchor))
	h.Write([]byte(strconv.FormatInt(firstTimestampUnixNano, 10)))

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:10]
}
