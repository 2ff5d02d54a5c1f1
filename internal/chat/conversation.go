package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"intake-chat/internal/types"
)

const (
	// ConversationKey and NotesKey match the browser page's localStorage keys.
	ConversationKey = "ngo-chat-messages"
	NotesKey        = "ngo-chat-padnotes"

	Greeting      = "Hallo, ich bin dein vertraulicher NGO-Chat. Wobei kann ich dich unterstützen?"
	EmptyReply    = "Entschuldige, ich habe gerade keine Antwort."
	UnknownError  = "Unbekannter Fehler"
	RequestFailed = "Fehler bei der Anfrage"
)

// Turn is one message of the conversation. Turns are never modified after
// they are appended.
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newTurn(role, content string, now time.Time) Turn {
	return Turn{ID: uuid.NewString(), Role: role, Content: content, Timestamp: now}
}

func greetingTurn(now time.Time) Turn {
	return newTurn(types.RoleAssistant, Greeting, now)
}

// history converts turns to the wire shape sent with each request.
func history(turns []Turn) []types.HistoryMessage {
	out := make([]types.HistoryMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, types.HistoryMessage{Role: t.Role, Content: t.Content})
	}
	return out
}

// decodeConversation returns the stored turns that have a known role, or
// nil when the snapshot is unusable.
func decodeConversation(b []byte) []Turn {
	var stored []Turn
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil
	}
	out := stored[:0]
	for _, t := range stored {
		if t.Role == types.RoleUser || t.Role == types.RoleAssistant {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
