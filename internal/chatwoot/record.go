package chatwoot

import "time"

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusPending  Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusPending:
		return true
	}
	return false
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// ConversationRecord is the durable mapping between a Chatwoot
// conversation and its AI-backend counterpart.
type ConversationRecord struct {
	ID                     int64
	ChatwootConversationID string
	AIConversationID       *string
	Status                 Status
	AssigneeID             *int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// OptionalInt64 distinguishes "field omitted" from "field explicitly set
// to null" in a patch.
type OptionalInt64 struct {
	Set   bool
	Value *int64
}

func SetInt64(v *int64) OptionalInt64 {
	return OptionalInt64{Set: true, Value: v}
}

// ConversationPatch carries only the fields an update wants to touch.
// Nil (or unset) fields leave the stored value alone.
type ConversationPatch struct {
	Status           *Status
	AssigneeID       OptionalInt64
	AIConversationID *string
}

// apply merges the patch into the record. The AI conversation ID is
// write-once: a patch carrying a different non-empty value is refused and
// reported via the returned flag so the caller can log the anomaly.
func (r *ConversationRecord) apply(p ConversationPatch, now time.Time) (aiIDConflict bool) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.AssigneeID.Set {
		r.AssigneeID = p.AssigneeID.Value
	}
	if p.AIConversationID != nil && *p.AIConversationID != "" {
		switch {
		case r.AIConversationID == nil:
			id := *p.AIConversationID
			r.AIConversationID = &id
		case *r.AIConversationID != *p.AIConversationID:
			aiIDConflict = true
		}
	}
	r.UpdatedAt = now
	return aiIDConflict
}
