package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SessionID identifies one conversation memory.
type SessionID string

// NewSessionID generates a random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Turn is one memory record: the user input and the answer given for it.
// Output is empty for the placeholder written before a turn runs.
type Turn struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// RenderTranscript formats turns as the Human/AI transcript fed into the
// chat_history prompt variable.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: ")
		b.WriteString(t.Input)
		b.WriteString("\nAI: ")
		b.WriteString(t.Output)
	}
	return b.String()
}
