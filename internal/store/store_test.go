package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlift/publisher/internal/models"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreCreateDraft(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()

	draft := models.CampaignDraft{
		Name:     "Spring Sale",
		Goal:     "traffic",
		UserID:   "user_1",
		Currency: "USD",
	}
	mock.ExpectQuery(`INSERT INTO campaign_drafts`).
		WithArgs(sqlmock.AnyArg(), "user_1", sqlmock.AnyArg()).
		WillReturnRows(func() *sqlmock.Rows {
			id := uuid.New()
			spec, _ := json.Marshal(models.CampaignDraft{ID: id, Name: "Spring Sale", Goal: "traffic", Currency: "USD"})
			return sqlmock.NewRows([]string{"id", "user_id", "spec", "created_at", "updated_at"}).
				AddRow(id, "user_1", spec, now, now)
		}())

	out, err := st.CreateDraft(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, "Spring Sale", out.Name)
	assert.Equal(t, "user_1", out.UserID)
	assert.NotEqual(t, uuid.Nil, out.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetDraftNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT id, user_id, spec, created_at, updated_at`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetDraft(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreGetDraftColumnsWinOverSpec(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now().UTC()
	// The spec JSON carries a stale id; the column value is authoritative.
	spec, _ := json.Marshal(models.CampaignDraft{ID: uuid.New(), UserID: "stale", Name: "Spring Sale"})
	mock.ExpectQuery(`SELECT id, user_id, spec, created_at, updated_at`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "spec", "created_at", "updated_at"}).
			AddRow(id, "user_1", spec, now, now))

	draft, err := st.GetDraft(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, draft.ID)
	assert.Equal(t, "user_1", draft.UserID)
	assert.Equal(t, "Spring Sale", draft.Name)
}

func TestPGStoreUpsertAttempt(t *testing.T) {
	st, mock := newMockStore(t)
	campaignID := uuid.New()
	now := time.Now().UTC()

	attempt := models.PublishAttempt{
		CampaignID: campaignID,
		Stage:      models.StageCreatingAdSet,
		Progress:   70,
		Message:    "Creating ad set",
		CreatedObjects: models.CreatedObjects{
			ImageHandles: []string{"h1"},
			CreativeIDs:  []string{"cr_1", "cr_2"},
			CampaignID:   "cmp_1",
		},
	}
	objects, _ := json.Marshal(attempt.CreatedObjects)
	mock.ExpectQuery(`INSERT INTO publish_attempts`).
		WithArgs(campaignID, "creating_adset", 70, "Creating ad set", objects, nil).
		WillReturnRows(sqlmock.NewRows([]string{
			"campaign_id", "stage", "progress", "message", "created_objects", "error_message", "created_at", "updated_at",
		}).AddRow(campaignID, "creating_adset", 70, "Creating ad set", objects, nil, now, now))

	out, err := st.UpsertAttempt(context.Background(), attempt)
	require.NoError(t, err)
	assert.Equal(t, models.StageCreatingAdSet, out.Stage)
	assert.Equal(t, 70, out.Progress)
	assert.Equal(t, []string{"cr_1", "cr_2"}, out.CreatedObjects.CreativeIDs)
	assert.Equal(t, "cmp_1", out.CreatedObjects.CampaignID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreUpsertAttemptNullsEmptyError(t *testing.T) {
	st, mock := newMockStore(t)
	campaignID := uuid.New()
	now := time.Now().UTC()
	objects, _ := json.Marshal(models.CreatedObjects{})

	mock.ExpectQuery(`INSERT INTO publish_attempts`).
		WithArgs(campaignID, "failed", 25, "Publish failed", objects, "upload exploded").
		WillReturnRows(sqlmock.NewRows([]string{
			"campaign_id", "stage", "progress", "message", "created_objects", "error_message", "created_at", "updated_at",
		}).AddRow(campaignID, "failed", 25, "Publish failed", objects, "upload exploded", now, now))

	out, err := st.UpsertAttempt(context.Background(), models.PublishAttempt{
		CampaignID:   campaignID,
		Stage:        models.StageFailed,
		Progress:     25,
		Message:      "Publish failed",
		ErrorMessage: "upload exploded",
	})
	require.NoError(t, err)
	assert.Equal(t, "upload exploded", out.ErrorMessage)
}

func TestPGStoreGetAttemptNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT campaign_id, stage, progress`).
		WithArgs(campaignID).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetAttempt(context.Background(), campaignID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDraftRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	created, err := st.CreateDraft(ctx, models.CampaignDraft{Name: "Spring Sale", UserID: "user_1"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	loaded, err := st.GetDraft(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring Sale", loaded.Name)

	_, err = st.GetDraft(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAttemptUpsertKeepsCreatedAt(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	campaignID := uuid.New()

	first, err := st.UpsertAttempt(ctx, models.PublishAttempt{CampaignID: campaignID, Stage: models.StagePreparing})
	require.NoError(t, err)

	second, err := st.UpsertAttempt(ctx, models.PublishAttempt{CampaignID: campaignID, Stage: models.StageValidating})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, models.StageValidating, second.Stage)
}

func TestMemoryStoreCopiesObjectSlices(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	campaignID := uuid.New()

	attempt := models.PublishAttempt{
		CampaignID:     campaignID,
		Stage:          models.StageCreatingAds,
		CreatedObjects: models.CreatedObjects{AdIDs: []string{"ad_1"}},
	}
	_, err := st.UpsertAttempt(ctx, attempt)
	require.NoError(t, err)

	// Mutating the caller's slice must not leak into the stored record.
	attempt.CreatedObjects.AdIDs[0] = "mutated"
	loaded, err := st.GetAttempt(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ad_1"}, loaded.CreatedObjects.AdIDs)
}
