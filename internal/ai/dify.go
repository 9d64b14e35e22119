package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/remote"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

const difyRemote = "dify"

// DifyClient implements Backend against a Dify-style chat API.
type DifyClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

func NewDifyClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *DifyClient {
	return &DifyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.With(sl.Module("ai.dify")),
	}
}

type difyChatRequest struct {
	Query          string `json:"query"`
	Inputs         Inputs `json:"inputs"`
	ResponseMode   string `json:"response_mode"`
	User           string `json:"user"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type difyChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

func (c *DifyClient) SendMessage(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	body := difyChatRequest{
		Query:          req.Query,
		Inputs:         req.Inputs,
		ResponseMode:   "blocking",
		User:           "user",
		ConversationID: req.ConversationID,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, remote.Unavailable(difyRemote, "chat-messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.log.Error("dify api error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(respBody)),
		)
		return nil, fmt.Errorf("dify api error: %s body=%s", resp.Status, string(respBody))
	}

	var out difyChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("dify: decode chat response: %w", err)
	}

	// A creation call that comes back without a conversation ID leaves
	// the mapping unusable for follow-up turns; fail so the job retries.
	if req.ConversationID == "" && out.ConversationID == "" {
		return nil, fmt.Errorf("dify: chat response missing conversation_id on creation")
	}

	reply := &ChatReply{
		ConversationID: out.ConversationID,
		Answer:         out.Answer,
	}
	if reply.ConversationID == "" {
		reply.ConversationID = req.ConversationID
	}
	return reply, nil
}

func (c *DifyClient) DeleteConversation(ctx context.Context, conversationID string) error {
	url := fmt.Sprintf("%s/conversations/%s", c.baseURL, conversationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return remote.Unavailable(difyRemote, "delete conversation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dify api error: %s body=%s", resp.Status, string(respBody))
	}
	return nil
}
