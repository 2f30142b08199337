// Package publish drives one end-to-end publish attempt: the state machine
// that tracks where the attempt stands, the rollback manager that undoes
// partially created remote state, and the orchestrator that sequences the
// stages.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/models"
	"github.com/adlift/publisher/internal/store"
)

// ErrInvalidTransition marks a stage transition outside the fixed adjacency
// table. Hitting it is a programming error, not a runtime condition.
var ErrInvalidTransition = errors.New("invalid stage transition")

// transitions is the fixed adjacency table: each forward stage is reachable
// only from its immediate predecessor; any active stage may fail; FAILED may
// roll back; FAILED and COMPLETE may reset to IDLE.
var transitions = map[models.Stage][]models.Stage{
	models.StageIdle:             {models.StagePreparing},
	models.StagePreparing:        {models.StageValidating, models.StageFailed},
	models.StageValidating:       {models.StageUploadingImages, models.StageFailed},
	models.StageUploadingImages:  {models.StageCreatingCreative, models.StageFailed},
	models.StageCreatingCreative: {models.StageCreatingCampaign, models.StageFailed},
	models.StageCreatingCampaign: {models.StageCreatingAdSet, models.StageFailed},
	models.StageCreatingAdSet:    {models.StageCreatingAds, models.StageFailed},
	models.StageCreatingAds:      {models.StageVerifying, models.StageFailed},
	models.StageVerifying:        {models.StageComplete, models.StageFailed},
	models.StageComplete:         {models.StageIdle},
	models.StageFailed:           {models.StageRollingBack, models.StageIdle},
	models.StageRollingBack:      {models.StageFailed},
}

// stageProgress maps each forward stage to its fixed progress percentage.
// FAILED and ROLLING_BACK keep the progress reached so far.
var stageProgress = map[models.Stage]int{
	models.StageIdle:             0,
	models.StagePreparing:        5,
	models.StageValidating:       10,
	models.StageUploadingImages:  25,
	models.StageCreatingCreative: 40,
	models.StageCreatingCampaign: 55,
	models.StageCreatingAdSet:    70,
	models.StageCreatingAds:      85,
	models.StageVerifying:        95,
	models.StageComplete:         100,
}

// CanTransition reports whether from -> to appears in the adjacency table.
func CanTransition(from, to models.Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine holds one campaign's publish attempt and persists it through
// the store after every mutation, so a crash mid-publish leaves a durable
// record of the last completed stage and every object created up to then.
type StateMachine struct {
	st      store.Store
	attempt models.PublishAttempt
}

// NewStateMachine returns a machine at IDLE for a fresh attempt.
func NewStateMachine(campaignID uuid.UUID, st store.Store) *StateMachine {
	return &StateMachine{
		st: st,
		attempt: models.PublishAttempt{
			CampaignID: campaignID,
			Stage:      models.StageIdle,
		},
	}
}

// LoadStateMachine restores a machine from the persisted attempt record, or
// returns a fresh IDLE machine when none exists.
func LoadStateMachine(ctx context.Context, campaignID uuid.UUID, st store.Store) (*StateMachine, error) {
	attempt, err := st.GetAttempt(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		return NewStateMachine(campaignID, st), nil
	}
	if err != nil {
		return nil, err
	}
	return &StateMachine{st: st, attempt: attempt}, nil
}

// Attempt returns a copy of the current attempt record.
func (m *StateMachine) Attempt() models.PublishAttempt {
	return m.attempt
}

// Stage returns the current stage.
func (m *StateMachine) Stage() models.Stage {
	return m.attempt.Stage
}

// CreatedObjects returns the remote objects recorded so far.
func (m *StateMachine) CreatedObjects() models.CreatedObjects {
	return m.attempt.CreatedObjects
}

// TransitionTo moves the attempt to the given stage, updates progress and
// message, and persists synchronously. A transition outside the adjacency
// table is rejected without mutating state.
func (m *StateMachine) TransitionTo(ctx context.Context, stage models.Stage, message string) error {
	if !CanTransition(m.attempt.Stage, stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.attempt.Stage, stage)
	}
	next := m.attempt
	next.Stage = stage
	next.Message = message
	if progress, ok := stageProgress[stage]; ok {
		next.Progress = progress
	}
	if stage == models.StageIdle {
		// Reset clears everything accumulated by the previous attempt.
		next.Progress = 0
		next.CreatedObjects = models.CreatedObjects{}
		next.ErrorMessage = ""
		next.Message = message
	}
	return m.persist(ctx, next)
}

// Fail moves the attempt to FAILED from any active stage, recording the
// error. Progress is left at the value the attempt had reached.
func (m *StateMachine) Fail(ctx context.Context, cause error) error {
	if m.attempt.Stage == models.StageFailed {
		return nil
	}
	next := m.attempt
	next.Stage = models.StageFailed
	if cause != nil {
		next.ErrorMessage = cause.Error()
	}
	return m.persist(ctx, next)
}

// RecordImageHandles appends uploaded image handles and persists.
func (m *StateMachine) RecordImageHandles(ctx context.Context, handles []string) error {
	next := m.attempt
	next.CreatedObjects.ImageHandles = append(append([]string(nil), next.CreatedObjects.ImageHandles...), handles...)
	return m.persist(ctx, next)
}

// RecordCreativeID appends one created creative id and persists.
func (m *StateMachine) RecordCreativeID(ctx context.Context, id string) error {
	next := m.attempt
	next.CreatedObjects.CreativeIDs = append(append([]string(nil), next.CreatedObjects.CreativeIDs...), id)
	return m.persist(ctx, next)
}

// RecordCampaignID sets the created campaign id and persists.
func (m *StateMachine) RecordCampaignID(ctx context.Context, id string) error {
	next := m.attempt
	next.CreatedObjects.CampaignID = id
	return m.persist(ctx, next)
}

// RecordAdSetID sets the created ad set id and persists.
func (m *StateMachine) RecordAdSetID(ctx context.Context, id string) error {
	next := m.attempt
	next.CreatedObjects.AdSetID = id
	return m.persist(ctx, next)
}

// RecordAdID appends one created ad id and persists.
func (m *StateMachine) RecordAdID(ctx context.Context, id string) error {
	next := m.attempt
	next.CreatedObjects.AdIDs = append(append([]string(nil), next.CreatedObjects.AdIDs...), id)
	return m.persist(ctx, next)
}

// ClearRolledBack removes the object ids a successful rollback deleted,
// keeping the failed subset visible for manual cleanup. Image handles are
// always kept: uploads are content-addressed and reusable.
func (m *StateMachine) ClearRolledBack(ctx context.Context, deleted []string) error {
	removed := map[string]struct{}{}
	for _, id := range deleted {
		removed[id] = struct{}{}
	}
	next := m.attempt
	objs := &next.CreatedObjects
	objs.AdIDs = without(objs.AdIDs, removed)
	objs.CreativeIDs = without(objs.CreativeIDs, removed)
	if _, ok := removed[objs.AdSetID]; ok {
		objs.AdSetID = ""
	}
	if _, ok := removed[objs.CampaignID]; ok {
		objs.CampaignID = ""
	}
	return m.persist(ctx, next)
}

func without(ids []string, removed map[string]struct{}) []string {
	var out []string
	for _, id := range ids {
		if _, ok := removed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *StateMachine) persist(ctx context.Context, next models.PublishAttempt) error {
	saved, err := m.st.UpsertAttempt(ctx, next)
	if err != nil {
		return fmt.Errorf("persist publish state: %w", err)
	}
	m.attempt = saved
	return nil
}

// ResumePoint infers from the recorded objects which stage a resumed attempt
// would continue at. Advisory only: automatic resume is not implemented.
func ResumePoint(objs models.CreatedObjects) models.Stage {
	switch {
	case len(objs.AdIDs) > 0:
		return models.StageVerifying
	case objs.AdSetID != "":
		return models.StageCreatingAds
	case objs.CampaignID != "":
		return models.StageCreatingAdSet
	case len(objs.CreativeIDs) > 0:
		return models.StageCreatingCampaign
	case len(objs.ImageHandles) > 0:
		return models.StageCreatingCreative
	default:
		return models.StagePreparing
	}
}
