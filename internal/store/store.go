// Package store persists campaign drafts and publish attempt state. The
// publish attempt record is upserted, keyed by campaign id, with last-write-
// wins semantics; the precise stage is persisted as text so a crash leaves an
// exact durable record of the last completed step.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	CreateDraft(ctx context.Context, draft models.CampaignDraft) (models.CampaignDraft, error)
	GetDraft(ctx context.Context, id uuid.UUID) (models.CampaignDraft, error)
	UpsertAttempt(ctx context.Context, attempt models.PublishAttempt) (models.PublishAttempt, error)
	GetAttempt(ctx context.Context, campaignID uuid.UUID) (models.PublishAttempt, error)
	Ping(ctx context.Context) error
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(row rowScanner) (models.CampaignDraft, error) {
	var (
		draft models.CampaignDraft
		spec  []byte
	)
	if err := row.Scan(&draft.ID, &draft.UserID, &spec, &draft.CreatedAt, &draft.UpdatedAt); err != nil {
		return models.CampaignDraft{}, err
	}
	id, userID, createdAt, updatedAt := draft.ID, draft.UserID, draft.CreatedAt, draft.UpdatedAt
	if err := json.Unmarshal(spec, &draft); err != nil {
		return models.CampaignDraft{}, fmt.Errorf("decode draft spec: %w", err)
	}
	draft.ID, draft.UserID, draft.CreatedAt, draft.UpdatedAt = id, userID, createdAt, updatedAt
	return draft, nil
}

func scanAttempt(row rowScanner) (models.PublishAttempt, error) {
	var (
		attempt models.PublishAttempt
		stage   string
		objects []byte
		errMsg  sql.NullString
		message sql.NullString
	)
	if err := row.Scan(
		&attempt.CampaignID,
		&stage,
		&attempt.Progress,
		&message,
		&objects,
		&errMsg,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	); err != nil {
		return models.PublishAttempt{}, err
	}
	attempt.Stage = models.Stage(stage)
	if message.Valid {
		attempt.Message = message.String
	}
	if errMsg.Valid {
		attempt.ErrorMessage = errMsg.String
	}
	if len(objects) > 0 {
		if err := json.Unmarshal(objects, &attempt.CreatedObjects); err != nil {
			return models.PublishAttempt{}, fmt.Errorf("decode created objects: %w", err)
		}
	}
	return attempt, nil
}

func (s *PGStore) CreateDraft(ctx context.Context, draft models.CampaignDraft) (models.CampaignDraft, error) {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	spec, err := json.Marshal(draft)
	if err != nil {
		return models.CampaignDraft{}, fmt.Errorf("encode draft spec: %w", err)
	}
	const query = `
		INSERT INTO campaign_drafts (id, user_id, spec)
		VALUES ($1,$2,$3)
		RETURNING id, user_id, spec, created_at, updated_at
	`
	out, err := scanDraft(s.db.QueryRowContext(ctx, query, draft.ID, draft.UserID, spec))
	if err != nil {
		return models.CampaignDraft{}, fmt.Errorf("insert draft: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetDraft(ctx context.Context, id uuid.UUID) (models.CampaignDraft, error) {
	const query = `
		SELECT id, user_id, spec, created_at, updated_at
		FROM campaign_drafts WHERE id=$1
	`
	draft, err := scanDraft(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CampaignDraft{}, ErrNotFound
		}
		return models.CampaignDraft{}, fmt.Errorf("get draft: %w", err)
	}
	return draft, nil
}

func (s *PGStore) UpsertAttempt(ctx context.Context, attempt models.PublishAttempt) (models.PublishAttempt, error) {
	objects, err := json.Marshal(attempt.CreatedObjects)
	if err != nil {
		return models.PublishAttempt{}, fmt.Errorf("encode created objects: %w", err)
	}
	const query = `
		INSERT INTO publish_attempts (campaign_id, stage, progress, message, created_objects, error_message)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (campaign_id) DO UPDATE
		SET stage=EXCLUDED.stage,
		    progress=EXCLUDED.progress,
		    message=EXCLUDED.message,
		    created_objects=EXCLUDED.created_objects,
		    error_message=EXCLUDED.error_message,
		    updated_at=NOW()
		RETURNING campaign_id, stage, progress, message, created_objects, error_message, created_at, updated_at
	`
	row := s.db.QueryRowContext(ctx, query,
		attempt.CampaignID, string(attempt.Stage), attempt.Progress,
		attempt.Message, objects, nullable(attempt.ErrorMessage))
	out, err := scanAttempt(row)
	if err != nil {
		return models.PublishAttempt{}, fmt.Errorf("upsert publish attempt: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetAttempt(ctx context.Context, campaignID uuid.UUID) (models.PublishAttempt, error) {
	const query = `
		SELECT campaign_id, stage, progress, message, created_objects, error_message, created_at, updated_at
		FROM publish_attempts WHERE campaign_id=$1
	`
	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, campaignID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PublishAttempt{}, ErrNotFound
		}
		return models.PublishAttempt{}, fmt.Errorf("get publish attempt: %w", err)
	}
	return attempt, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
