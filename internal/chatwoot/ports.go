package chatwoot

import (
	"context"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/tasks"
)

type Team struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ConversationSnapshot is the slice of upstream conversation state the
// bridge cares about.
type ConversationSnapshot struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
}

// ConversationStore owns the durable Chatwoot↔AI conversation mapping.
type ConversationStore interface {
	Resolve(ctx context.Context, externalID string, patch ConversationPatch) (*ConversationRecord, error)
	Delete(ctx context.Context, externalID string) (aiConversationID string, existed bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*ConversationRecord, error)
	GetByAIConversationID(ctx context.Context, aiConversationID string) (*ConversationRecord, error)
	SetAIConversationID(ctx context.Context, externalID, aiConversationID string) error
}

// Remote is the Chatwoot REST surface consumed by the bridge.
type Remote interface {
	SendMessage(ctx context.Context, conversationID int64, text string, private bool) error
	ListTeams(ctx context.Context) ([]Team, error)
	AssignTeam(ctx context.Context, conversationID, teamID int64) error
	TogglePriority(ctx context.Context, conversationID int64, priority Priority) error
	ToggleStatus(ctx context.Context, conversationID int64, status Status, previous Status, isErrorTransition bool) error
	GetConversation(ctx context.Context, conversationID int64) (*ConversationSnapshot, error)
	SetCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error
	AddLabels(ctx context.Context, conversationID int64, labels []string) error
}

// TeamResolver translates human-readable team names to Chatwoot team IDs.
type TeamResolver interface {
	ResolveTeamID(ctx context.Context, name string) (int64, bool, error)
	Refresh(ctx context.Context) (map[string]int64, error)
	KnownTeams() []string
	Enabled() bool
}

// Dispatcher accepts detached jobs decoupled from the request lifecycle.
type Dispatcher interface {
	Submit(job tasks.Job)
}
