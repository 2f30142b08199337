package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/models"
)

// MemoryStore is the in-memory Store used by tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	drafts   map[uuid.UUID]models.CampaignDraft
	attempts map[uuid.UUID]models.PublishAttempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts:   map[uuid.UUID]models.CampaignDraft{},
		attempts: map[uuid.UUID]models.PublishAttempt{},
	}
}

func (m *MemoryStore) CreateDraft(ctx context.Context, draft models.CampaignDraft) (models.CampaignDraft, error) {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draft.ID] = draft
	return draft, nil
}

func (m *MemoryStore) GetDraft(ctx context.Context, id uuid.UUID) (models.CampaignDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	draft, ok := m.drafts[id]
	if !ok {
		return models.CampaignDraft{}, ErrNotFound
	}
	return draft, nil
}

func (m *MemoryStore) UpsertAttempt(ctx context.Context, attempt models.PublishAttempt) (models.PublishAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.attempts[attempt.CampaignID]; ok {
		attempt.CreatedAt = existing.CreatedAt
	} else {
		attempt.CreatedAt = now
	}
	attempt.UpdatedAt = now
	attempt.CreatedObjects = copyObjects(attempt.CreatedObjects)
	m.attempts[attempt.CampaignID] = attempt
	return attempt, nil
}

func (m *MemoryStore) GetAttempt(ctx context.Context, campaignID uuid.UUID) (models.PublishAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt, ok := m.attempts[campaignID]
	if !ok {
		return models.PublishAttempt{}, ErrNotFound
	}
	attempt.CreatedObjects = copyObjects(attempt.CreatedObjects)
	return attempt, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func copyObjects(o models.CreatedObjects) models.CreatedObjects {
	o.ImageHandles = append([]string(nil), o.ImageHandles...)
	o.CreativeIDs = append([]string(nil), o.CreativeIDs...)
	o.AdIDs = append([]string(nil), o.AdIDs...)
	return o
}
