package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/models"
	"github.com/adlift/publisher/internal/publish"
)

// Producer is the subset of KafkaProducer behavior the emitter needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) error
}

// Event is the wire format for one lifecycle event.
type Event struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	CampaignID string                  `json:"campaignId"`
	Stage      models.Stage            `json:"stage,omitempty"`
	Progress   int                     `json:"progress,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Rollback   *publish.RollbackResult `json:"rollback,omitempty"`
	Ts         time.Time               `json:"ts"`
}

// Emitter turns orchestrator callbacks into produced events. Failures are
// logged and swallowed: the durable store, not the stream, is the source of
// truth for publish state.
type Emitter struct {
	producer Producer
}

func NewEmitter(producer Producer) *Emitter {
	return &Emitter{producer: producer}
}

func (e *Emitter) StageChanged(ctx context.Context, attempt models.PublishAttempt) {
	e.emit(ctx, Event{
		ID:         uuid.NewString(),
		Type:       "publish.stage_changed",
		CampaignID: attempt.CampaignID.String(),
		Stage:      attempt.Stage,
		Progress:   attempt.Progress,
		Message:    attempt.Message,
		Ts:         time.Now().UTC(),
	})
}

func (e *Emitter) RolledBack(ctx context.Context, campaignID uuid.UUID, result publish.RollbackResult) {
	e.emit(ctx, Event{
		ID:         uuid.NewString(),
		Type:       "publish.rolled_back",
		CampaignID: campaignID.String(),
		Rollback:   &result,
		Ts:         time.Now().UTC(),
	})
}

func (e *Emitter) emit(ctx context.Context, ev Event) {
	if e == nil || e.producer == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal %s: %v", ev.Type, err)
		return
	}
	if err := e.producer.Produce(ctx, []byte(ev.CampaignID), value); err != nil {
		log.Printf("[events] produce %s for campaign %s: %v", ev.Type, ev.CampaignID, err)
	}
}
