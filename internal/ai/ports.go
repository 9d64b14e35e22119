package ai

import "context"

// ChatRequest is one user message relayed to the AI backend. An empty
// ConversationID asks the backend to start a new conversation.
type ChatRequest struct {
	Query          string
	ConversationID string
	Inputs         Inputs
}

// Inputs is per-conversation context the backend may condition on.
// Backends cache inputs per conversation keyed by the conversation ID, so
// they are only meaningful on the first message of a conversation.
type Inputs struct {
	ChatwootConversationID string `json:"chatwoot_conversation_id"`
	ConversationStatus     string `json:"conversation_status"`
	MessageDirection       string `json:"message_direction"`
}

// ChatReply is the backend's answer. ConversationID names the
// backend-side conversation the reply belongs to, freshly minted when the
// request carried none.
type ChatReply struct {
	ConversationID string
	Answer         string
}

// Backend is the conversational-AI service. It knows nothing about
// Chatwoot or the database.
type Backend interface {
	SendMessage(ctx context.Context, req ChatRequest) (*ChatReply, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}
