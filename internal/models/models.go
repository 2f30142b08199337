// Package models contains the shared domain types used across the publisher service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies a step in the fixed publishing sequence.
type Stage string

const (
	StageIdle             Stage = "idle"
	StagePreparing        Stage = "preparing"
	StageValidating       Stage = "validating"
	StageUploadingImages  Stage = "uploading_images"
	StageCreatingCreative Stage = "creating_creatives"
	StageCreatingCampaign Stage = "creating_campaign"
	StageCreatingAdSet    Stage = "creating_adset"
	StageCreatingAds      Stage = "creating_ads"
	StageVerifying        Stage = "verifying"
	StageComplete         Stage = "complete"
	StageFailed           Stage = "failed"
	StageRollingBack      Stage = "rolling_back"
)

// CreatedObjects accumulates the remote identifiers created during one
// publish attempt, in the order the remote API hands them out. Fields are
// append-only until a reset or rollback clears them.
type CreatedObjects struct {
	ImageHandles []string `json:"imageHandles,omitempty"`
	CreativeIDs  []string `json:"creativeIds,omitempty"`
	CampaignID   string   `json:"campaignId,omitempty"`
	AdSetID      string   `json:"adSetId,omitempty"`
	AdIDs        []string `json:"adIds,omitempty"`
}

// Empty reports whether no remote object has been recorded yet.
func (c CreatedObjects) Empty() bool {
	return len(c.ImageHandles) == 0 && len(c.CreativeIDs) == 0 &&
		c.CampaignID == "" && c.AdSetID == "" && len(c.AdIDs) == 0
}

// PublishAttempt is the durable record of where a publish attempt stands.
// One row per campaign, last write wins.
type PublishAttempt struct {
	CampaignID     uuid.UUID      `json:"campaignId"`
	Stage          Stage          `json:"stage"`
	Progress       int            `json:"progress"`
	Message        string         `json:"message,omitempty"`
	CreatedObjects CreatedObjects `json:"createdObjects"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Location is one entry in a campaign's geo-targeting list.
type Location struct {
	Country  string  `json:"country,omitempty"`
	Region   string  `json:"region,omitempty"`
	City     string  `json:"city,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	RadiusKm float64 `json:"radiusKm,omitempty"`
	Exclude  bool    `json:"exclude,omitempty"`
}

// AdCopy is one text variation for the campaign's ads. A campaign with N
// copy variations publishes N creatives and N ads.
type AdCopy struct {
	Headline     string `json:"headline"`
	PrimaryText  string `json:"primaryText"`
	Description  string `json:"description,omitempty"`
	CallToAction string `json:"callToAction,omitempty"`
	LinkURL      string `json:"linkUrl"`
}

// CampaignDraft is the locally assembled campaign configuration a publish
// attempt starts from.
type CampaignDraft struct {
	ID             uuid.UUID  `json:"id"`
	UserID         string     `json:"userId"`
	Name           string     `json:"name"`
	Goal           string     `json:"goal"`
	Locations      []Location `json:"locations,omitempty"`
	AgeMin         int        `json:"ageMin,omitempty"`
	AgeMax         int        `json:"ageMax,omitempty"`
	DailyBudget    float64    `json:"dailyBudget,omitempty"`
	LifetimeBudget float64    `json:"lifetimeBudget,omitempty"`
	Currency       string     `json:"currency"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Copies         []AdCopy   `json:"copies"`
	ImageURLs      []string   `json:"imageUrls"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
