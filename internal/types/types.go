package types

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is one prior turn as sent by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string           `json:"message"`
	History []HistoryMessage `json:"history"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
	Usage any    `json:"usage"`
	Model string `json:"model"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
