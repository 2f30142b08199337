package publish

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adlift/publisher/internal/models"
)

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]int // id -> times to fail before succeeding; -1 fails forever
}

func (f *fakeDeleter) DeleteObject(_ context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.fail[objectID]; ok && n != 0 {
		if n > 0 {
			f.fail[objectID] = n - 1
		}
		return fmt.Errorf("delete %s: remote refused", objectID)
	}
	f.deleted = append(f.deleted, objectID)
	return nil
}

func noSleep(r *Rollbacker) {
	r.sleep = func(context.Context, time.Duration) error { return nil }
}

func fullObjects() models.CreatedObjects {
	return models.CreatedObjects{
		ImageHandles: []string{"h1"},
		CreativeIDs:  []string{"cr_1", "cr_2"},
		CampaignID:   "cmp_1",
		AdSetID:      "as_1",
		AdIDs:        []string{"ad_1", "ad_2"},
	}
}

func TestRollbackDeletesInReverseOrder(t *testing.T) {
	d := &fakeDeleter{}
	r := NewRollbacker(d)
	noSleep(r)

	result := r.Rollback(context.Background(), fullObjects())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	want := []string{"ad_1", "ad_2", "as_1", "cmp_1", "cr_1", "cr_2"}
	if len(d.deleted) != len(want) {
		t.Fatalf("deleted %v, want %v", d.deleted, want)
	}
	for i := range want {
		if d.deleted[i] != want[i] {
			t.Fatalf("deletion order %v, want %v", d.deleted, want)
		}
	}
}

func TestRollbackNeverDeletesImages(t *testing.T) {
	d := &fakeDeleter{}
	r := NewRollbacker(d)
	noSleep(r)

	result := r.Rollback(context.Background(), models.CreatedObjects{ImageHandles: []string{"h1", "h2"}})
	if len(d.deleted) != 0 {
		t.Fatalf("images must never be deleted, got %v", d.deleted)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected a kept-images warning, got %+v", result.Warnings)
	}
}

func TestRollbackFailureDoesNotBlockOthers(t *testing.T) {
	d := &fakeDeleter{fail: map[string]int{"as_1": -1}}
	r := NewRollbacker(d)
	noSleep(r)

	result := r.Rollback(context.Background(), fullObjects())
	if result.Success {
		t.Fatal("expected failure with a stuck ad set")
	}
	if _, ok := result.Failed["as_1"]; !ok {
		t.Fatalf("expected as_1 in failed set, got %+v", result.Failed)
	}
	// The campaign after the stuck ad set must still be attempted.
	found := false
	for _, id := range d.deleted {
		if id == "cmp_1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("campaign must be deleted despite ad set failure, deleted: %v", d.deleted)
	}
}

func TestRollbackCreativeFailureIsBestEffort(t *testing.T) {
	d := &fakeDeleter{fail: map[string]int{"cr_1": -1}}
	r := NewRollbacker(d)
	noSleep(r)

	result := r.Rollback(context.Background(), fullObjects())
	if !result.Success {
		t.Fatalf("creative failures must not fail the rollback, got %+v", result.Failed)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for the stuck creative")
	}
}

func TestRollbackWithRetryRecoversTransientFailure(t *testing.T) {
	d := &fakeDeleter{fail: map[string]int{"as_1": 1}} // fails once, then succeeds
	r := NewRollbacker(d)
	noSleep(r)

	result := r.RollbackWithRetry(context.Background(), fullObjects())
	if !result.Success {
		t.Fatalf("expected retry to recover, got %+v", result.Failed)
	}
	// The retry pass must touch only the failed subset.
	count := map[string]int{}
	for _, id := range d.deleted {
		count[id]++
	}
	if count["ad_1"] != 1 || count["cmp_1"] != 1 {
		t.Fatalf("already-deleted objects must not be re-deleted: %v", d.deleted)
	}
	if count["as_1"] != 1 {
		t.Fatalf("expected exactly one successful as_1 deletion, got %v", d.deleted)
	}
}

func TestRollbackWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	d := &fakeDeleter{fail: map[string]int{"cmp_1": -1}}
	r := NewRollbacker(d)
	noSleep(r)
	r.MaxRetries = 2

	result := r.RollbackWithRetry(context.Background(), fullObjects())
	if result.Success {
		t.Fatal("expected persistent failure to survive retries")
	}
	if _, ok := result.Failed["cmp_1"]; !ok {
		t.Fatalf("expected cmp_1 in failed set, got %+v", result.Failed)
	}
}

func TestRollbackEmptyObjects(t *testing.T) {
	d := &fakeDeleter{}
	r := NewRollbacker(d)
	noSleep(r)

	result := r.Rollback(context.Background(), models.CreatedObjects{})
	if !result.Success || len(d.deleted) != 0 {
		t.Fatalf("empty rollback must be a clean no-op, got %+v", result)
	}
}
