package llm

import "slices"

// EstimateTokens approximates the token count of messages at four
// characters per token, plus a small per-message and per-conversation
// overhead. It is a heuristic, not a tokenizer.
func EstimateTokens(messages []Message) int {
	if len(messages) == 0 {
		return 0
	}

	chars := 16
	for _, msg := range messages {
		chars += 8
		for _, block := range msg.Content {
			switch b := block.(type) {
			case TextBlock:
				chars += len(b.Text)
			case ImageBlock:
				chars += len(b.URL)
			case ToolUseBlock:
				chars += len(b.Name) + len(b.ID) + len(b.Input)
			case ToolResultBlock:
				chars += len(b.ToolUseID) + len(b.Content)
			}
		}
	}

	return (chars + 3) / 4
}

// TruncateMessages keeps the last keep messages. With preserveSystem, a
// leading system message is kept as well, on top of keep. The input is
// not modified.
//
// Example:
//
//	if llm.EstimateTokens(client.History()) > 28000 {
//	    client.SetHistory(llm.TruncateMessages(client.History(), 10, true))
//	}
func TruncateMessages(messages []Message, keep int, preserveSystem bool) []Message {
	keep = max(keep, 0)
	if len(messages) <= keep {
		return slices.Clone(messages)
	}

	tail := messages[len(messages)-keep:]

	if preserveSystem && messages[0].Role == RoleSystem {
		out := make([]Message, 0, keep+1)
		out = append(out, messages[0])
		return append(out, tail...)
	}
	return slices.Clone(tail)
}

// IsApproachingLimit reports whether the estimated token count exceeds
// margin (e.g. 0.9) of limit.
func IsApproachingLimit(messages []Message, limit int, margin float64) bool {
	threshold := int(float64(limit) * margin)
	return EstimateTokens(messages) > threshold
}
