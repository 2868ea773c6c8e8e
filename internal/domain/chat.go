package domain

import "time"

// Speaker tags who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one recorded utterance in a session's history.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// ChatMessage is the provider-agnostic chat message shape used by the LLM
// integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnsToMessages maps session turns onto chat roles, dropping empty text.
func TurnsToMessages(turns []Turn) []ChatMessage {
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		role := "user"
		if t.Speaker == SpeakerAssistant {
			role = "assistant"
		}
		out = append(out, ChatMessage{Role: role, Content: t.Text})
	}
	return out
}
