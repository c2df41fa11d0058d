package dialogue

import (
	"github.com/nivkeidan/hmochat/llm"
	"github.com/nivkeidan/hmochat/model"
)

// historyMessages flattens the conversation into role-tagged messages
// and trims from the front until the combined content length fits
// maxChars. Dropping oldest-first preserves recency and the user/
// assistant alternation of what remains.
func historyMessages(h model.ConversationHistory, maxChars int) []llm.Message {
	var msgs []llm.Message
	for _, t := range h.Turns {
		if t.UserText != "" {
			msgs = append(msgs, llm.Message{Role: "user", Content: t.UserText})
		}
		if t.AssistantText != "" {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: t.AssistantText})
		}
	}

	total := 0
	for _, m := range msgs {
		total += len([]rune(m.Content))
	}
	for len(msgs) > 0 && total > maxChars {
		total -= len([]rune(msgs[0].Content))
		msgs = msgs[1:]
	}
	return msgs
}
