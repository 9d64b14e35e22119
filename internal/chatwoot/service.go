package chatwoot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/ai"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/tasks"
)

// Service is the bridge orchestration exposed to the HTTP layer.
type Service interface {
	HandleWebhook(ctx context.Context, ev *WebhookEvent) (*WebhookResult, error)
	SendMessage(ctx context.Context, conversationID int64, text string, private bool) error
	AssignTeam(ctx context.Context, conversationID int64, team string) (int64, error)
	TogglePriority(ctx context.Context, conversationID int64, priority Priority) error
	ToggleStatus(ctx context.Context, conversationID int64, status Status) error
	UpdateLabels(ctx context.Context, conversationID int64, labels []string) error
	UpdateCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error
	RefreshTeams(ctx context.Context) (teams int, cacheEnabled bool, err error)
	ConversationInfo(ctx context.Context, externalID string) (*ConversationRecord, error)
	ConversationByAIID(ctx context.Context, aiConversationID string) (*ConversationRecord, error)
}

type WebhookResult struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	RecordID       int64  `json:"record_id,omitempty"`
}

// Notices are the canned messages the bridge itself produces; inbound
// messages starting with one of them are bot echoes and must be skipped.
type Notices struct {
	OpenedExternal string
	ErrorInternal  string
}

type service struct {
	store    ConversationStore
	remote   Remote
	backend  ai.Backend
	teams    TeamResolver
	dispatch Dispatcher
	notices  Notices
	log      *slog.Logger
}

func NewService(
	store ConversationStore,
	remote Remote,
	backend ai.Backend,
	teams TeamResolver,
	dispatch Dispatcher,
	notices Notices,
	log *slog.Logger,
) Service {
	return &service{
		store:    store,
		remote:   remote,
		backend:  backend,
		teams:    teams,
		dispatch: dispatch,
		notices:  notices,
		log:      log.With(sl.Module("service")),
	}
}

func (s *service) HandleWebhook(ctx context.Context, ev *WebhookEvent) (*WebhookResult, error) {
	s.log.Info("webhook event", slog.String("event", ev.Event))

	switch ev.Event {
	case "message_created":
		return s.handleMessageCreated(ctx, ev)
	case "conversation_created", "conversation_updated":
		return s.handleConversationUpsert(ctx, ev)
	case "conversation_deleted":
		return s.handleConversationDeleted(ctx, ev)
	default:
		return &WebhookResult{Status: "ignored", Reason: "unhandled event"}, nil
	}
}

func (s *service) handleMessageCreated(ctx context.Context, ev *WebhookEvent) (*WebhookResult, error) {
	if ev.SenderType() == "agent_bot" || ev.EchoID != "" {
		s.log.Debug("skipping bot message", slog.String("echo_id", ev.EchoID))
		return &WebhookResult{Status: "skipped", Reason: "agent_bot message"}, nil
	}
	if s.isOwnNotice(ev.Content) {
		return &WebhookResult{Status: "skipped", Reason: "agent_bot message"}, nil
	}

	conversationID, ok := ev.ConversationID()
	if !ok {
		return &WebhookResult{Status: "skipped", Reason: "no conversation data"}, nil
	}
	externalID, _ := ev.ExternalID()

	rec, err := s.store.Resolve(ctx, externalID, ev.Patch())
	if err != nil {
		// The user's message would otherwise go unanswered; tell them a
		// human is coming before surfacing the failure.
		if sendErr := s.remote.SendMessage(ctx, conversationID, s.notices.OpenedExternal, false); sendErr != nil {
			s.log.Error("failed to send fallback notice",
				slog.Int64("conversation_id", conversationID),
				sl.Err(sendErr),
			)
		}
		return nil, err
	}

	var aiConversationID string
	if rec.AIConversationID != nil {
		aiConversationID = *rec.AIConversationID
	}

	relay := relayInput{
		conversationID:   conversationID,
		externalID:       externalID,
		aiConversationID: aiConversationID,
		status:           rec.Status,
		content:          ev.Content,
		messageType:      ev.MessageType,
	}
	s.dispatch.Submit(tasks.Job{
		Name: "relay-message",
		Run: func(jobCtx context.Context) error {
			return s.relayMessage(jobCtx, relay)
		},
		OnFailure: func(jobCtx context.Context) {
			s.relayFailed(jobCtx, relay)
		},
	})

	return &WebhookResult{Status: "processing", ConversationID: conversationID, RecordID: rec.ID}, nil
}

type relayInput struct {
	conversationID   int64
	externalID       string
	aiConversationID string
	status           Status
	content          string
	messageType      string
}

// relayMessage runs detached from the webhook request: ask the backend,
// persist a newly minted AI conversation ID, send the answer upstream.
func (s *service) relayMessage(ctx context.Context, in relayInput) error {
	reply, err := s.backend.SendMessage(ctx, ai.ChatRequest{
		Query:          in.content,
		ConversationID: in.aiConversationID,
		Inputs: ai.Inputs{
			ChatwootConversationID: in.externalID,
			ConversationStatus:     string(in.status),
			MessageDirection:       in.messageType,
		},
	})
	if err != nil {
		return fmt.Errorf("relay conversation %s: %w", in.externalID, err)
	}

	if in.aiConversationID == "" && reply.ConversationID != "" {
		if err := s.store.SetAIConversationID(ctx, in.externalID, reply.ConversationID); err != nil {
			s.log.Error("failed to persist ai conversation id",
				slog.String("chatwoot_conversation_id", in.externalID),
				slog.String("ai_conversation_id", reply.ConversationID),
				sl.Err(err),
			)
		}
	}

	if strings.TrimSpace(reply.Answer) == "" {
		s.log.Debug("empty answer, nothing to send",
			slog.String("chatwoot_conversation_id", in.externalID),
		)
		return nil
	}

	if err := s.remote.SendMessage(ctx, in.conversationID, reply.Answer, false); err != nil {
		return fmt.Errorf("send answer to conversation %s: %w", in.externalID, err)
	}
	return nil
}

// relayFailed is the terminal failure path: reopen the conversation for a
// human and post the canned notice. Failures here are logged only.
func (s *service) relayFailed(ctx context.Context, in relayInput) {
	log := s.log.With(slog.Int64("conversation_id", in.conversationID))

	if err := s.remote.ToggleStatus(ctx, in.conversationID, StatusOpen, in.status, true); err != nil {
		log.Error("failed to reopen conversation after relay failure", sl.Err(err))
	}
	if err := s.remote.SendMessage(ctx, in.conversationID, s.notices.OpenedExternal, false); err != nil {
		log.Error("failed to send fallback notice", sl.Err(err))
	}
}

func (s *service) handleConversationUpsert(ctx context.Context, ev *WebhookEvent) (*WebhookResult, error) {
	externalID, ok := ev.ExternalID()
	if !ok {
		return &WebhookResult{Status: "skipped", Reason: "no conversation data"}, nil
	}

	rec, err := s.store.Resolve(ctx, externalID, ev.Patch())
	if err != nil {
		return nil, err
	}
	conversationID, _ := ev.ConversationID()
	return &WebhookResult{Status: "success", ConversationID: conversationID, RecordID: rec.ID}, nil
}

func (s *service) handleConversationDeleted(ctx context.Context, ev *WebhookEvent) (*WebhookResult, error) {
	externalID, ok := ev.ExternalID()
	if !ok {
		return &WebhookResult{Status: "skipped", Reason: "no conversation data"}, nil
	}

	aiConversationID, existed, err := s.store.Delete(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !existed {
		return &WebhookResult{Status: "success", Reason: "unknown conversation"}, nil
	}

	if aiConversationID != "" {
		// Best effort: AI-side cleanup must never block local deletion.
		s.dispatch.Submit(tasks.Job{
			Name: "delete-ai-conversation",
			Run: func(jobCtx context.Context) error {
				return s.backend.DeleteConversation(jobCtx, aiConversationID)
			},
		})
	}
	return &WebhookResult{Status: "success"}, nil
}

func (s *service) isOwnNotice(content string) bool {
	if content == "" {
		return false
	}
	return strings.HasPrefix(content, s.notices.OpenedExternal) ||
		strings.HasPrefix(content, s.notices.ErrorInternal)
}

func (s *service) SendMessage(ctx context.Context, conversationID int64, text string, private bool) error {
	return s.remote.SendMessage(ctx, conversationID, text, private)
}

// AssignTeam resolves the team name and assigns the conversation. An
// unknown name gets exactly one cache refresh and a second lookup before
// it is reported as a definitive miss.
func (s *service) AssignTeam(ctx context.Context, conversationID int64, team string) (int64, error) {
	teamID, found, err := s.teams.ResolveTeamID(ctx, team)
	if err != nil {
		return 0, err
	}

	if !found && s.teams.Enabled() {
		if _, err := s.teams.Refresh(ctx); err != nil {
			return 0, err
		}
		teamID, found, err = s.teams.ResolveTeamID(ctx, team)
		if err != nil {
			return 0, err
		}
	}

	if !found {
		return 0, &TeamNotFoundError{Name: team, Known: s.knownTeamNames(ctx)}
	}

	if err := s.remote.AssignTeam(ctx, conversationID, teamID); err != nil {
		return 0, err
	}

	s.log.Info("conversation assigned to team",
		slog.Int64("conversation_id", conversationID),
		slog.String("team", team),
		slog.Int64("team_id", teamID),
	)
	return teamID, nil
}

func (s *service) knownTeamNames(ctx context.Context) []string {
	if names := s.teams.KnownTeams(); len(names) > 0 {
		return names
	}
	// Cache disabled or empty; fetch the list for the error message.
	teams, err := s.remote.ListTeams(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(teams))
	for _, t := range teams {
		names = append(names, strings.ToLower(t.Name))
	}
	return names
}

func (s *service) TogglePriority(ctx context.Context, conversationID int64, priority Priority) error {
	return s.remote.TogglePriority(ctx, conversationID, priority)
}

// ToggleStatus reads the current upstream status first so the transition
// can be reported with its previous value. A failed read is tolerated.
func (s *service) ToggleStatus(ctx context.Context, conversationID int64, status Status) error {
	var previous Status
	if snap, err := s.remote.GetConversation(ctx, conversationID); err != nil {
		s.log.Warn("could not fetch current status before toggle",
			slog.Int64("conversation_id", conversationID),
			sl.Err(err),
		)
	} else {
		previous = snap.Status
	}

	return s.remote.ToggleStatus(ctx, conversationID, status, previous, false)
}

func (s *service) UpdateLabels(ctx context.Context, conversationID int64, labels []string) error {
	return s.remote.AddLabels(ctx, conversationID, labels)
}

func (s *service) UpdateCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	return s.remote.SetCustomAttributes(ctx, conversationID, attrs)
}

func (s *service) RefreshTeams(ctx context.Context) (int, bool, error) {
	if !s.teams.Enabled() {
		teams, err := s.remote.ListTeams(ctx)
		if err != nil {
			return 0, false, err
		}
		return len(teams), false, nil
	}

	mapping, err := s.teams.Refresh(ctx)
	if err != nil {
		return 0, true, err
	}
	return len(mapping), true, nil
}

func (s *service) ConversationInfo(ctx context.Context, externalID string) (*ConversationRecord, error) {
	return s.store.GetByExternalID(ctx, externalID)
}

func (s *service) ConversationByAIID(ctx context.Context, aiConversationID string) (*ConversationRecord, error) {
	return s.store.GetByAIConversationID(ctx, aiConversationID)
}
