package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adlift/publisher/internal/models"
)

// Deleter is the slice of the ads API client rollback needs.
type Deleter interface {
	DeleteObject(ctx context.Context, objectID string) error
}

// RollbackResult reports what a rollback pass achieved. Success is true only
// when the final failed set is empty.
type RollbackResult struct {
	Deleted  []string          `json:"deleted,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Success  bool              `json:"success"`
}

// Rollbacker deletes partially created remote objects in dependency-safe
// reverse order: ads, then the ad set, then the campaign, then creatives
// (best effort). Uploaded images are never deleted; they are content-
// addressed, reusable, and not billable by themselves.
type Rollbacker struct {
	deleter Deleter

	// RetryDelay is the fixed linear backoff between retry passes.
	RetryDelay time.Duration
	// MaxRetries bounds RollbackWithRetry's extra passes.
	MaxRetries int

	sleep func(context.Context, time.Duration) error
}

func NewRollbacker(deleter Deleter) *Rollbacker {
	return &Rollbacker{
		deleter:    deleter,
		RetryDelay: 2 * time.Second,
		MaxRetries: 2,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Rollback attempts every deletion independently: a failure on one object
// never prevents attempts on the others.
func (r *Rollbacker) Rollback(ctx context.Context, objs models.CreatedObjects) RollbackResult {
	result := RollbackResult{Failed: map[string]string{}}

	for _, adID := range objs.AdIDs {
		r.deleteOne(ctx, "ad", adID, &result, false)
	}
	if objs.AdSetID != "" {
		r.deleteOne(ctx, "ad set", objs.AdSetID, &result, false)
	}
	if objs.CampaignID != "" {
		r.deleteOne(ctx, "campaign", objs.CampaignID, &result, false)
	}
	for _, creativeID := range objs.CreativeIDs {
		// Creatives are not billable; a leftover one is only noise.
		r.deleteOne(ctx, "creative", creativeID, &result, true)
	}
	if len(objs.ImageHandles) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d uploaded images kept (reusable, not billable)", len(objs.ImageHandles)))
	}
	result.Success = len(result.Failed) == 0
	return result
}

// RollbackWithRetry runs a full pass, then re-attempts only the failed subset
// with fixed linear backoff, up to MaxRetries extra passes.
func (r *Rollbacker) RollbackWithRetry(ctx context.Context, objs models.CreatedObjects) RollbackResult {
	result := r.Rollback(ctx, objs)
	for attempt := 1; attempt <= r.MaxRetries && !result.Success; attempt++ {
		if err := r.sleep(ctx, r.RetryDelay); err != nil {
			break
		}
		log.Printf("[rollback] retry pass %d for %d failed deletions", attempt, len(result.Failed))
		retryResult := r.Rollback(ctx, remaining(objs, result))
		result.Deleted = append(result.Deleted, retryResult.Deleted...)
		result.Warnings = append(result.Warnings, retryResult.Warnings...)
		result.Failed = retryResult.Failed
		result.Success = retryResult.Success
	}
	return result
}

func (r *Rollbacker) deleteOne(ctx context.Context, kind, id string, result *RollbackResult, bestEffort bool) {
	if err := r.deleter.DeleteObject(ctx, id); err != nil {
		if bestEffort {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not delete %s %s: %v", kind, id, err))
			return
		}
		log.Printf("[rollback] delete %s %s: %v", kind, id, err)
		result.Failed[id] = err.Error()
		return
	}
	result.Deleted = append(result.Deleted, id)
}

// remaining rebuilds the object set still awaiting deletion after a pass.
func remaining(objs models.CreatedObjects, result RollbackResult) models.CreatedObjects {
	var out models.CreatedObjects
	for _, id := range objs.AdIDs {
		if _, failed := result.Failed[id]; failed {
			out.AdIDs = append(out.AdIDs, id)
		}
	}
	if _, failed := result.Failed[objs.AdSetID]; failed {
		out.AdSetID = objs.AdSetID
	}
	if _, failed := result.Failed[objs.CampaignID]; failed {
		out.CampaignID = objs.CampaignID
	}
	return out
}
