package chatwoot

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

	"github.com/google/uuid"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/remote"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

const remoteName = "chatwoot"

// echoPrefix marks messages this bridge created so the webhook can skip
// its own echoes.
const echoPrefix = "ai-bridge-"

// Client talks to the Chatwoot REST API for one account.
type Client struct {
	baseURL   string
	accountID int64
	token     string
	client    *http.Client
	log       *slog.Logger
}

func NewClient(baseURL string, accountID int64, token string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		token:     strings.TrimSpace(token),
		client:    &http.Client{Timeout: timeout},
		log:       log.With(sl.Module("chatwoot.client")),
	}
}

func (c *Client) conversationPath(conversationID int64, suffix string) string {
	return fmt.Sprintf("/api/v1/accounts/%d/conversations/%d%s", c.accountID, conversationID, suffix)
}

func (c *Client) SendMessage(ctx context.Context, conversationID int64, text string, private bool) error {
	messageType := "outgoing"
	return c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/messages"), map[string]any{
		"content":      text,
		"message_type": messageType,
		"private":      private,
		"echo_id":      echoPrefix + uuid.NewString(),
	}, nil)
}

func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	path := fmt.Sprintf("/api/v1/accounts/%d/teams", c.accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (c *Client) AssignTeam(ctx context.Context, conversationID, teamID int64) error {
	return c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/assignments"), map[string]any{
		"team_id": teamID,
	}, nil)
}

func (c *Client) TogglePriority(ctx context.Context, conversationID int64, priority Priority) error {
	return c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/toggle_priority"), map[string]any{
		"priority": string(priority),
	}, nil)
}

// ToggleStatus flips the upstream conversation status. Error-induced
// transitions additionally leave a private note for the operators naming
// the previous status.
func (c *Client) ToggleStatus(ctx context.Context, conversationID int64, status Status, previous Status, isErrorTransition bool) error {
	err := c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/toggle_status"), map[string]any{
		"status": string(status),
	}, nil)
	if err != nil {
		return err
	}

	if isErrorTransition {
		note := fmt.Sprintf("Conversation set to %q after an AI relay failure", status)
		if previous != "" {
			note = fmt.Sprintf("%s (was %q)", note, previous)
		}
		if err := c.SendMessage(ctx, conversationID, note, true); err != nil {
			c.log.Warn("failed to leave error transition note",
				slog.Int64("conversation_id", conversationID),
				sl.Err(err),
			)
		}
	}
	return nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*ConversationSnapshot, error) {
	var snap ConversationSnapshot
	if err := c.do(ctx, http.MethodGet, c.conversationPath(conversationID, ""), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) SetCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error {
	return c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/custom_attributes"), map[string]any{
		"custom_attributes": attrs,
	}, nil)
}

func (c *Client) AddLabels(ctx context.Context, conversationID int64, labels []string) error {
	return c.do(ctx, http.MethodPost, c.conversationPath(conversationID, "/labels"), map[string]any{
		"labels": labels,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection failures both mean the remote is
		// unreachable from the caller's point of view.
		return remote.Unavailable(remoteName, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatwoot api error: %s %s: %s body=%s", method, path, resp.Status, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("chatwoot: decode %s response: %w", op, err)
		}
	}
	return nil
}
