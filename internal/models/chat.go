package models

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single turn in the conversation transcript.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint. The server owns the
// transcript, so only the new question travels in the request.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

type ChatHistoryResponse struct {
	History []ChatMessage `json:"history"`
}
