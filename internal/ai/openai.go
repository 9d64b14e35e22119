package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/remote"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

const openaiRemote = "openai"

// historyLimit bounds the per-conversation context window kept in memory.
const historyLimit = 40

// OpenAIBackend implements Backend over the OpenAI chat completion API.
// OpenAI has no server-side conversation state, so the backend keeps the
// turn history in memory keyed by a conversation ID it mints itself.
// Intended for local runs and staging where a Dify deployment is absent.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	log    *slog.Logger

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

func NewOpenAIBackend(apiKey, model string, log *slog.Logger) *OpenAIBackend {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIBackend{
		client:  openai.NewClient(apiKey),
		model:   model,
		log:     log.With(sl.Module("ai.openai")),
		history: make(map[string][]openai.ChatCompletionMessage),
	}
}

func (b *OpenAIBackend) SendMessage(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	b.mu.Lock()
	msgs := make([]openai.ChatCompletionMessage, 0, historyLimit+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(
			"You are a customer support assistant. Conversation status: %s.",
			req.Inputs.ConversationStatus,
		),
	})
	msgs = append(msgs, b.history[conversationID]...)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})
	b.mu.Unlock()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, remote.Unavailable(openaiRemote, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		b.log.Warn("empty choices from openai", slog.String("conversation_id", conversationID))
		return &ChatReply{ConversationID: conversationID}, nil
	}

	answer := resp.Choices[0].Message.Content

	b.mu.Lock()
	turns := append(b.history[conversationID],
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Query},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
	)
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	b.history[conversationID] = turns
	b.mu.Unlock()

	return &ChatReply{ConversationID: conversationID, Answer: answer}, nil
}

func (b *OpenAIBackend) DeleteConversation(_ context.Context, conversationID string) error {
	b.mu.Lock()
	delete(b.history, conversationID)
	b.mu.Unlock()
	return nil
}
