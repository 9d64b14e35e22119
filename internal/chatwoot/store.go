package chatwoot

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

type store struct {
	db  *sql.DB
	log *slog.Logger
}

func NewStore(db *sql.DB, log *slog.Logger) ConversationStore {
	return &store{
		db:  db,
		log: log.With(sl.Module("store")),
	}
}

// EnsureSchema creates the conversations table when it is missing.
// Schema migrations beyond this bootstrap are managed outside the app.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			chatwoot_conversation_id TEXT NOT NULL UNIQUE,
			ai_conversation_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			assignee_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

const recordColumns = `id, chatwoot_conversation_id, ai_conversation_id, status, assignee_id, created_at, updated_at`

func scanRecord(row *sql.Row) (*ConversationRecord, error) {
	var rec ConversationRecord
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.ChatwootConversationID,
		&rec.AIConversationID,
		&status,
		&rec.AssigneeID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}

// Resolve finds the record keyed by externalID and merges the patch into
// it, or creates it when unseen. Runs inside a single transaction with a
// row lock so repeated webhook deliveries cannot produce duplicates.
func (s *store) Resolve(ctx context.Context, externalID string, patch ConversationPatch) (*ConversationRecord, error) {
	if externalID == "" {
		return nil, &ValidationError{Field: "external_id", Reason: "must not be empty"}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "must be open, resolved or pending"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve: begin", Err: err}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE chatwoot_conversation_id = $1
		FOR UPDATE
	`, externalID)

	rec, err := scanRecord(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec, err = s.insert(ctx, tx, externalID, patch)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, &PersistenceError{Op: "resolve: select", Err: err}
	default:
		if conflict := rec.apply(patch, time.Now().UTC()); conflict {
			s.log.Warn("refusing to overwrite ai_conversation_id",
				slog.String("chatwoot_conversation_id", externalID),
				slog.String("current", *rec.AIConversationID),
				slog.String("attempted", *patch.AIConversationID),
			)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET ai_conversation_id = $2, status = $3, assignee_id = $4, updated_at = $5
			WHERE id = $1
		`,
			rec.ID,
			rec.AIConversationID,
			string(rec.Status),
			rec.AssigneeID,
			rec.UpdatedAt,
		)
		if err != nil {
			return nil, &PersistenceError{Op: "resolve: update", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "resolve: commit", Err: err}
	}
	return rec, nil
}

func (s *store) insert(ctx context.Context, tx *sql.Tx, externalID string, patch ConversationPatch) (*ConversationRecord, error) {
	now := time.Now().UTC()

	rec := &ConversationRecord{
		ChatwootConversationID: externalID,
		Status:                 StatusPending,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.AssigneeID.Set {
		rec.AssigneeID = patch.AssigneeID.Value
	}
	if patch.AIConversationID != nil && *patch.AIConversationID != "" {
		id := *patch.AIConversationID
		rec.AIConversationID = &id
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (chatwoot_conversation_id, ai_conversation_id, status, assignee_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		rec.ChatwootConversationID,
		rec.AIConversationID,
		string(rec.Status),
		rec.AssigneeID,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve: insert", Err: err}
	}
	return rec, nil
}

// Delete removes the record keyed by externalID. Deleting the unknown is
// a no-op. Returns any AI-side conversation ID so the caller can schedule
// remote cleanup.
func (s *store) Delete(ctx context.Context, externalID string) (string, bool, error) {
	if externalID == "" {
		return "", false, &ValidationError{Field: "external_id", Reason: "must not be empty"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, &PersistenceError{Op: "delete: begin", Err: err}
	}
	defer tx.Rollback()

	var aiID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT ai_conversation_id FROM conversations
		WHERE chatwoot_conversation_id = $1
		FOR UPDATE
	`, externalID).Scan(&aiID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &PersistenceError{Op: "delete: select", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE chatwoot_conversation_id = $1
	`, externalID); err != nil {
		return "", false, &PersistenceError{Op: "delete: exec", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return "", false, &PersistenceError{Op: "delete: commit", Err: err}
	}
	return aiID.String, true, nil
}

func (s *store) GetByExternalID(ctx context.Context, externalID string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM conversations
		WHERE chatwoot_conversation_id = $1
	`, externalID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get by external id", Err: err}
	}
	return rec, nil
}

func (s *store) GetByAIConversationID(ctx context.Context, aiConversationID string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM conversations
		WHERE ai_conversation_id = $1
	`, aiConversationID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get by ai id", Err: err}
	}
	return rec, nil
}

// SetAIConversationID stores the backend-assigned conversation ID.
// First writer wins: an already-set differing ID is left alone and the
// attempt is logged as an anomaly.
func (s *store) SetAIConversationID(ctx context.Context, externalID, aiConversationID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET ai_conversation_id = $2, updated_at = now()
		WHERE chatwoot_conversation_id = $1
		  AND (ai_conversation_id IS NULL OR ai_conversation_id = $2)
	`, externalID, aiConversationID)
	if err != nil {
		return &PersistenceError{Op: "set ai conversation id", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "set ai conversation id: rows affected", Err: err}
	}
	if affected == 0 {
		if _, err := s.GetByExternalID(ctx, externalID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		s.log.Warn("ai_conversation_id already set, skipping update",
			slog.String("chatwoot_conversation_id", externalID),
			slog.String("attempted", aiConversationID),
		)
	}
	return nil
}
