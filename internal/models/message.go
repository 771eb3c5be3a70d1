package models

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleBot  MessageRole = "bot"
)

// Message is one entry in a user's chat transcript. The sequence is
// append-only and chronological.
type Message struct {
	ID      string              `json:"id"`
	Role    MessageRole         `json:"role"`
	Content string              `json:"content"`
	Payload *BotResponsePayload `json:"payload,omitempty"`
}
