package chatwoot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/remote"
)

type recordedRequest struct {
	Method string
	Path   string
	Token  string
	Body   map[string]any
}

// chatwootServer captures every request and replies with scripted
// responses, default 200 {}.
type chatwootServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	payload  string
}

func newChatwootServer() (*chatwootServer, *httptest.Server) {
	cs := &chatwootServer{status: http.StatusOK, payload: "{}"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Token:  r.Header.Get("api_access_token"),
		}
		if r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}

		cs.mu.Lock()
		cs.requests = append(cs.requests, rec)
		status, payload := cs.status, cs.payload
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	return cs, srv
}

func (cs *chatwootServer) recorded() []recordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]recordedRequest, len(cs.requests))
	copy(out, cs.requests)
	return out
}

func newTestClient(url string) *Client {
	return NewClient(url, 7, "secret-token", 5*time.Second, testLogger())
}

func TestClientSendMessageRequestShape(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.SendMessage(context.Background(), 100, "hello", false))

	reqs := cs.recorded()
	require.Len(t, reqs, 1)
	req := reqs[0]
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/api/v1/accounts/7/conversations/100/messages", req.Path)
	require.Equal(t, "secret-token", req.Token)

	require.Equal(t, "hello", req.Body["content"])
	require.Equal(t, "outgoing", req.Body["message_type"])
	require.Equal(t, false, req.Body["private"])

	echoID, ok := req.Body["echo_id"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(echoID, "ai-bridge-"),
		"outgoing messages carry the bridge echo marker")
}

func TestClientListTeams(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()
	cs.payload = `[{"id":5,"name":"Support"},{"id":9,"name":"Sales"}]`

	c := newTestClient(srv.URL)
	teams, err := c.ListTeams(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Team{{ID: 5, Name: "Support"}, {ID: 9, Name: "Sales"}}, teams)

	reqs := cs.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "/api/v1/accounts/7/teams", reqs[0].Path)
}

func TestClientAPIErrorIncludesBody(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()
	cs.status = http.StatusNotFound
	cs.payload = `{"error":"Resource could not be found"}`

	c := newTestClient(srv.URL)
	err := c.AssignTeam(context.Background(), 100, 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
	require.Contains(t, err.Error(), "Resource could not be found")
	require.False(t, remote.IsUnavailable(err), "an HTTP error is not an outage")
}

func TestClientUnreachableRemote(t *testing.T) {
	_, srv := newChatwootServer()
	srv.Close() // connection refused from now on

	c := newTestClient(srv.URL)
	err := c.TogglePriority(context.Background(), 100, PriorityHigh)
	require.Error(t, err)
	require.True(t, remote.IsUnavailable(err))
}

func TestClientToggleStatusErrorTransitionLeavesNote(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.ToggleStatus(context.Background(), 100, StatusOpen, StatusPending, true))

	reqs := cs.recorded()
	require.Len(t, reqs, 2, "toggle plus a private note")
	require.Equal(t, "/api/v1/accounts/7/conversations/100/toggle_status", reqs[0].Path)
	require.Equal(t, "open", reqs[0].Body["status"])

	note := reqs[1]
	require.Equal(t, "/api/v1/accounts/7/conversations/100/messages", note.Path)
	require.Equal(t, true, note.Body["private"])
	content, _ := note.Body["content"].(string)
	require.Contains(t, content, "relay failure")
	require.Contains(t, content, "pending")
}

func TestClientToggleStatusPlainTransitionNoNote(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.ToggleStatus(context.Background(), 100, StatusResolved, StatusOpen, false))

	require.Len(t, cs.recorded(), 1)
}

func TestClientGetConversation(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()
	cs.payload = `{"id":100,"status":"open"}`

	c := newTestClient(srv.URL)
	snap, err := c.GetConversation(context.Background(), 100)
	require.NoError(t, err)
	require.EqualValues(t, 100, snap.ID)
	require.Equal(t, StatusOpen, snap.Status)
}

func TestClientCustomAttributesAndLabels(t *testing.T) {
	cs, srv := newChatwootServer()
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.SetCustomAttributes(context.Background(), 100, map[string]any{"region": "Moscow"}))
	require.NoError(t, c.AddLabels(context.Background(), 100, []string{"vip", "billing"}))

	reqs := cs.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "/api/v1/accounts/7/conversations/100/custom_attributes", reqs[0].Path)
	require.Equal(t, map[string]any{"region": "Moscow"}, reqs[0].Body["custom_attributes"])
	require.Equal(t, "/api/v1/accounts/7/conversations/100/labels", reqs[1].Path)
	require.Equal(t, []any{"vip", "billing"}, reqs[1].Body["labels"])
}
