package models

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of the user-facing transcript.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one question/answer pair of the model-visible history.
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
