package chatwoot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string   { return &s }
func int64Ptr(v int64) *int64   { return &v }
func statusPtr(s Status) *Status { return &s }

func TestApplyMergesOnlySuppliedFields(t *testing.T) {
	rec := &ConversationRecord{
		ChatwootConversationID: "42",
		Status:                 StatusOpen,
		AssigneeID:             int64Ptr(7),
	}

	conflict := rec.apply(ConversationPatch{Status: statusPtr(StatusResolved)}, time.Now())

	require.False(t, conflict)
	require.Equal(t, StatusResolved, rec.Status)
	require.NotNil(t, rec.AssigneeID)
	require.EqualValues(t, 7, *rec.AssigneeID)
}

func TestApplyDistinguishesOmittedFromNullAssignee(t *testing.T) {
	rec := &ConversationRecord{AssigneeID: int64Ptr(7)}

	rec.apply(ConversationPatch{}, time.Now())
	require.NotNil(t, rec.AssigneeID, "omitted assignee must not clear the stored value")

	rec.apply(ConversationPatch{AssigneeID: SetInt64(nil)}, time.Now())
	require.Nil(t, rec.AssigneeID, "explicit null assignee must clear the stored value")
}

func TestApplyAIConversationIDIsWriteOnce(t *testing.T) {
	rec := &ConversationRecord{}

	conflict := rec.apply(ConversationPatch{AIConversationID: strPtr("ai-abc")}, time.Now())
	require.False(t, conflict)
	require.Equal(t, "ai-abc", *rec.AIConversationID)

	// Same value again is a no-op, not a conflict.
	conflict = rec.apply(ConversationPatch{AIConversationID: strPtr("ai-abc")}, time.Now())
	require.False(t, conflict)
	require.Equal(t, "ai-abc", *rec.AIConversationID)

	// A different value is refused and flagged.
	conflict = rec.apply(ConversationPatch{AIConversationID: strPtr("ai-other")}, time.Now())
	require.True(t, conflict)
	require.Equal(t, "ai-abc", *rec.AIConversationID)

	// Omitted or empty never clears it.
	rec.apply(ConversationPatch{}, time.Now())
	require.NotNil(t, rec.AIConversationID)
	rec.apply(ConversationPatch{AIConversationID: strPtr("")}, time.Now())
	require.Equal(t, "ai-abc", *rec.AIConversationID)
}

func TestApplyTouchesUpdatedAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &ConversationRecord{CreatedAt: created, UpdatedAt: created}

	now := created.Add(time.Hour)
	rec.apply(ConversationPatch{}, now)

	require.Equal(t, created, rec.CreatedAt)
	require.Equal(t, now, rec.UpdatedAt)
}
