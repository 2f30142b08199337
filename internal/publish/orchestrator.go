package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/adsapi"
	"github.com/adlift/publisher/internal/classify"
	"github.com/adlift/publisher/internal/models"
	"github.com/adlift/publisher/internal/payload"
	"github.com/adlift/publisher/internal/store"
	"github.com/adlift/publisher/internal/upload"
)

// RemoteAPI is the slice of the ads API client the orchestrator drives.
type RemoteAPI interface {
	CreateCampaign(ctx context.Context, fields adsapi.Fields) (string, error)
	CreateAdSet(ctx context.Context, fields adsapi.Fields) (string, error)
	CreateAdCreative(ctx context.Context, fields adsapi.Fields) (string, error)
	CreateAd(ctx context.Context, fields adsapi.Fields) (string, error)
	GetObject(ctx context.Context, objectID string, fields []string) (map[string]json.RawMessage, error)
	DeleteObject(ctx context.Context, objectID string) error
}

// BatchUploader is the upload coordinator contract.
type BatchUploader interface {
	UploadBatch(ctx context.Context, urls []string, format upload.TargetFormat) (upload.BatchResult, error)
}

// Emitter publishes lifecycle events to the event stream. Implementations
// must tolerate being nil-checked by the orchestrator.
type Emitter interface {
	StageChanged(ctx context.Context, attempt models.PublishAttempt)
	RolledBack(ctx context.Context, campaignID uuid.UUID, result RollbackResult)
}

// Archiver stores the final publish record for audit purposes.
type Archiver interface {
	ArchivePublish(ctx context.Context, attempt models.PublishAttempt) error
}

// PublishError is the structured failure the upstream caller receives.
type PublishError struct {
	Code        string       `json:"code"`
	Message     string       `json:"message"`
	UserMessage string       `json:"userMessage"`
	Recoverable bool         `json:"recoverable"`
	Stage       models.Stage `json:"stage"`
	Timestamp   time.Time    `json:"timestamp"`

	cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed at %s: %s", e.Stage, e.Message)
}

func (e *PublishError) Unwrap() error { return e.cause }

// Result is the upstream caller contract for a successful publish.
type Result struct {
	Success        bool                  `json:"success"`
	CreatedObjects models.CreatedObjects `json:"createdObjects"`
	FinalStage     models.Stage          `json:"finalStage"`
	Warnings       []payload.Issue       `json:"warnings,omitempty"`
}

type OrchestratorConfig struct {
	// PageID is the platform page creatives are published under.
	PageID string
	// ImageFormat are the rules uploaded creatives must satisfy.
	ImageFormat upload.TargetFormat
	// Now is injectable for schedule assembly in tests.
	Now func() time.Time
}

// Orchestrator runs one publish attempt end to end. One orchestrator
// instance drives at most one attempt per campaign at a time; concurrent
// attempts for the same campaign race on the persisted record (last writer
// wins) and are an explicit non-goal.
type Orchestrator struct {
	st         store.Store
	api        RemoteAPI
	uploads    BatchUploader
	rollbacker *Rollbacker
	emitter    Emitter
	archiver   Archiver
	pageID     string
	format     upload.TargetFormat
	now        func() time.Time
}

func NewOrchestrator(st store.Store, api RemoteAPI, uploads BatchUploader, emitter Emitter, archiver Archiver, cfg OrchestratorConfig) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	format := cfg.ImageFormat
	if format == (upload.TargetFormat{}) {
		format = upload.FeedImage()
	}
	return &Orchestrator{
		st:         st,
		api:        api,
		uploads:    uploads,
		rollbacker: NewRollbacker(api),
		emitter:    emitter,
		archiver:   archiver,
		pageID:     cfg.PageID,
		format:     format,
		now:        now,
	}
}

// Publish runs the full pipeline for one campaign: assemble and validate
// payloads, upload images, create creatives, campaign, ad set and ads, verify
// every created object, and persist the outcome. Any unrecoverable failure
// after the first remote creation rolls the created objects back.
func (o *Orchestrator) Publish(ctx context.Context, campaignID uuid.UUID, userID string) (Result, error) {
	m, err := LoadStateMachine(ctx, campaignID, o.st)
	if err != nil {
		return Result{}, fmt.Errorf("load publish state: %w", err)
	}
	switch m.Stage() {
	case models.StageIdle:
	case models.StageFailed, models.StageComplete:
		if err := m.TransitionTo(ctx, models.StageIdle, "reset for new attempt"); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("publish already in progress for campaign %s (stage %s)", campaignID, m.Stage())
	}

	log.Printf("[publish] campaign=%s user=%s starting", campaignID, userID)

	if err := o.step(ctx, m, models.StagePreparing, "Loading campaign"); err != nil {
		return Result{}, err
	}
	draft, err := o.st.GetDraft(ctx, campaignID)
	if err != nil {
		return Result{}, o.failed(ctx, m, fmt.Errorf("load campaign draft: %w", err))
	}

	bundle, assembled, err := payload.Assemble(draft, o.pageID, o.now())
	if err != nil {
		return Result{}, o.failed(ctx, m, err)
	}

	if err := o.step(ctx, m, models.StageValidating, "Validating campaign"); err != nil {
		return Result{}, err
	}
	validation := payload.Validate(bundle)
	validation.Issues = append(assembled.Issues, validation.Issues...)
	if !validation.CanPublish() {
		return Result{}, o.failed(ctx, m, validationError(validation))
	}

	if err := o.step(ctx, m, models.StageUploadingImages, "Uploading images"); err != nil {
		return Result{}, err
	}
	batch, err := o.uploads.UploadBatch(ctx, draft.ImageURLs, o.format)
	if err != nil {
		return Result{}, o.failed(ctx, m, err)
	}
	for url, reason := range batch.Failed {
		log.Printf("[publish] campaign=%s image %s failed: %s", campaignID, url, reason)
	}
	handles := make([]string, 0, len(batch.Successful))
	for _, u := range draft.ImageURLs {
		if handle, ok := batch.Successful[u]; ok {
			handles = append(handles, handle)
		}
	}
	if len(handles) == 0 {
		return Result{}, o.failed(ctx, m, fmt.Errorf("no campaign images available"))
	}
	if err := m.RecordImageHandles(ctx, handles); err != nil {
		return Result{}, err
	}
	bundle.FillImageHash(handles[0])

	if err := o.step(ctx, m, models.StageCreatingCreative, "Creating ad creatives"); err != nil {
		return Result{}, err
	}
	for i, creative := range bundle.Creatives {
		id, err := o.api.CreateAdCreative(ctx, creative.Fields())
		if err != nil {
			return Result{}, o.failed(ctx, m, fmt.Errorf("create creative %d: %w", i+1, err))
		}
		if err := m.RecordCreativeID(ctx, id); err != nil {
			return Result{}, err
		}
		bundle.FillCreativeID(i, id)
	}

	if err := o.step(ctx, m, models.StageCreatingCampaign, "Creating campaign"); err != nil {
		return Result{}, err
	}
	remoteCampaignID, err := o.api.CreateCampaign(ctx, bundle.Campaign.Fields())
	if err != nil {
		return Result{}, o.failed(ctx, m, fmt.Errorf("create campaign: %w", err))
	}
	if err := m.RecordCampaignID(ctx, remoteCampaignID); err != nil {
		return Result{}, err
	}
	bundle.FillCampaignID(remoteCampaignID)

	if err := o.step(ctx, m, models.StageCreatingAdSet, "Creating ad set"); err != nil {
		return Result{}, err
	}
	adSetID, err := o.api.CreateAdSet(ctx, bundle.AdSet.Fields())
	if err != nil {
		return Result{}, o.failed(ctx, m, fmt.Errorf("create ad set: %w", err))
	}
	if err := m.RecordAdSetID(ctx, adSetID); err != nil {
		return Result{}, err
	}
	bundle.FillAdSetID(adSetID)

	if err := o.step(ctx, m, models.StageCreatingAds, "Creating ads"); err != nil {
		return Result{}, err
	}
	for i, ad := range bundle.Ads {
		id, err := o.api.CreateAd(ctx, ad.Fields())
		if err != nil {
			return Result{}, o.failed(ctx, m, fmt.Errorf("create ad %d: %w", i+1, err))
		}
		if err := m.RecordAdID(ctx, id); err != nil {
			return Result{}, err
		}
	}

	if err := o.step(ctx, m, models.StageVerifying, "Verifying created objects"); err != nil {
		return Result{}, err
	}
	if err := o.verify(ctx, m.CreatedObjects()); err != nil {
		return Result{}, o.failed(ctx, m, err)
	}

	if err := o.step(ctx, m, models.StageComplete, "Campaign published"); err != nil {
		return Result{}, err
	}
	o.archive(ctx, m.Attempt())

	log.Printf("[publish] campaign=%s complete: %d creatives, %d ads", campaignID,
		len(m.CreatedObjects().CreativeIDs), len(m.CreatedObjects().AdIDs))
	return Result{
		Success:        true,
		CreatedObjects: m.CreatedObjects(),
		FinalStage:     models.StageComplete,
		Warnings:       validation.Warnings(),
	}, nil
}

// step advances the state machine and emits the transition.
func (o *Orchestrator) step(ctx context.Context, m *StateMachine, stage models.Stage, message string) error {
	if err := m.TransitionTo(ctx, stage, message); err != nil {
		return err
	}
	if o.emitter != nil {
		o.emitter.StageChanged(ctx, m.Attempt())
	}
	return nil
}

// verify re-reads each created object so a silently dropped creation is
// caught before the attempt is declared complete.
func (o *Orchestrator) verify(ctx context.Context, objs models.CreatedObjects) error {
	ids := make([]string, 0, 2+len(objs.AdIDs))
	if objs.CampaignID != "" {
		ids = append(ids, objs.CampaignID)
	}
	if objs.AdSetID != "" {
		ids = append(ids, objs.AdSetID)
	}
	ids = append(ids, objs.AdIDs...)
	for _, id := range ids {
		record, err := o.api.GetObject(ctx, id, []string{"id", "status"})
		if err != nil {
			return fmt.Errorf("verify object %s: %w", id, err)
		}
		if _, ok := record["id"]; !ok {
			return fmt.Errorf("verify object %s: response missing id", id)
		}
	}
	return nil
}

// failed routes a stage failure through the classifier, persists the FAILED
// state, rolls back any created remote objects when warranted, and returns
// the structured error. A rollback failure never masks the original publish
// error.
func (o *Orchestrator) failed(ctx context.Context, m *StateMachine, cause error) error {
	stage := m.Stage()
	classification := classify.Classify(cause)
	log.Printf("[publish] campaign=%s failed at %s (%s): %v",
		m.Attempt().CampaignID, stage, classification.Category, cause)

	if err := m.Fail(ctx, cause); err != nil {
		log.Printf("[publish] campaign=%s could not persist failure: %v", m.Attempt().CampaignID, err)
	}
	if o.emitter != nil {
		o.emitter.StageChanged(ctx, m.Attempt())
	}

	objs := m.CreatedObjects()
	if !objs.Empty() {
		if err := m.TransitionTo(ctx, models.StageRollingBack, "Rolling back created objects"); err == nil {
			result := o.rollbacker.RollbackWithRetry(ctx, objs)
			if err := m.ClearRolledBack(ctx, result.Deleted); err != nil {
				log.Printf("[publish] campaign=%s could not record rollback: %v", m.Attempt().CampaignID, err)
			}
			if !result.Success {
				log.Printf("[publish] campaign=%s rollback incomplete, %d objects need manual cleanup",
					m.Attempt().CampaignID, len(result.Failed))
			}
			if o.emitter != nil {
				o.emitter.RolledBack(ctx, m.Attempt().CampaignID, result)
			}
			_ = m.TransitionTo(ctx, models.StageFailed, "Publish failed")
		}
	}
	o.archive(ctx, m.Attempt())

	return &PublishError{
		Code:        string(classification.Category),
		Message:     cause.Error(),
		UserMessage: classification.UserMessage,
		Recoverable: classification.Recoverable,
		Stage:       stage,
		Timestamp:   o.now().UTC(),
		cause:       cause,
	}
}

func (o *Orchestrator) archive(ctx context.Context, attempt models.PublishAttempt) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchivePublish(ctx, attempt); err != nil {
		log.Printf("[publish] campaign=%s archive failed: %v", attempt.CampaignID, err)
	}
}

func validationError(result payload.ValidationResult) error {
	blocking := 0
	first := ""
	for _, issue := range result.Issues {
		if issue.Severity == payload.SeverityCritical || issue.Severity == payload.SeverityError {
			blocking++
			if first == "" {
				first = fmt.Sprintf("%s: %s", issue.Field, issue.Message)
			}
		}
	}
	return fmt.Errorf("campaign validation failed with %d blocking issues (%s)", blocking, first)
}
